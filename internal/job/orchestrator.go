package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledger-dashboard/internal/adapter"
	"github.com/ledger-dashboard/internal/artifact"
	"github.com/ledger-dashboard/internal/config"
	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/events"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/metrics"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/reconcile"
	"github.com/ledger-dashboard/internal/types"
)

// progressStep is added per fetcher progress line while fetching.
const progressStep = 2

// ImportRequest is the input of StartImport
type ImportRequest struct {
	Address    string        `json:"address"`
	Network    types.Network `json:"network"`
	StartBlock string        `json:"startBlock"`
	EndBlock   string        `json:"endBlock"`
	Tokens     []string      `json:"tokens"`
	APIKey     string        `json:"apiKey,omitempty"`
	WalletName string        `json:"walletName,omitempty"`
}

// normalize trims input and fills default block bounds.
func (r *ImportRequest) normalize() {
	r.Address = strings.TrimSpace(r.Address)
	r.Network = types.Network(strings.ToLower(strings.TrimSpace(string(r.Network))))
	r.StartBlock = strings.TrimSpace(r.StartBlock)
	r.EndBlock = strings.ToLower(strings.TrimSpace(r.EndBlock))
	r.APIKey = strings.TrimSpace(r.APIKey)
	r.WalletName = strings.TrimSpace(r.WalletName)
	if r.StartBlock == "" {
		r.StartBlock = "0"
	}
	if r.EndBlock == "" {
		r.EndBlock = types.BlockLatest
	}
}

// Validate returns the first violated constraint as a validation error.
func (r *ImportRequest) Validate() error {
	if !types.IsValidAddress(r.Address) {
		return apperrors.NewValidationError("address", "must be a 0x-prefixed 40 character hex address")
	}
	if !r.Network.IsValid() {
		return apperrors.NewValidationError("network", fmt.Sprintf("unsupported network %q", r.Network))
	}
	if !types.IsValidBlock(r.StartBlock, false) {
		return apperrors.NewValidationError("startBlock", "must be a non-negative integer")
	}
	if !types.IsValidBlock(r.EndBlock, true) {
		return apperrors.NewValidationError("endBlock", `must be a non-negative integer or "latest"`)
	}
	if r.EndBlock != types.BlockLatest {
		start, errStart := strconv.ParseUint(r.StartBlock, 10, 64)
		end, errEnd := strconv.ParseUint(r.EndBlock, 10, 64)
		if errStart != nil || errEnd != nil {
			return apperrors.NewValidationError("startBlock", "block number out of range")
		}
		if start > end {
			return apperrors.NewValidationError("startBlock", "must not exceed endBlock")
		}
	}
	if len(r.Tokens) == 0 {
		return apperrors.NewValidationError("tokens", "at least one token is required")
	}
	for _, sym := range r.Tokens {
		if _, ok := types.LookupAsset(r.Network, strings.TrimSpace(sym)); !ok {
			return apperrors.NewValidationError("tokens", fmt.Sprintf("unknown token %q on %s (known: %s)", sym, r.Network, knownSymbols(r.Network)))
		}
	}
	return nil
}

func knownSymbols(n types.Network) string {
	var syms []string
	for _, a := range types.AssetsFor(n) {
		syms = append(syms, a.Symbol)
	}
	return strings.Join(syms, ", ")
}

// assets resolves the requested symbols, dropping repeats.
func (r *ImportRequest) assets() []types.Asset {
	seen := make(map[string]bool, len(r.Tokens))
	out := make([]types.Asset, 0, len(r.Tokens))
	for _, sym := range r.Tokens {
		a, ok := types.LookupAsset(r.Network, strings.TrimSpace(sym))
		if !ok || seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true
		out = append(out, a)
	}
	return out
}

// WalletStore creates or finds the tracked wallet, reporting whether it was created.
type WalletStore interface {
	Upsert(ctx context.Context, wallet *models.Wallet, defaultName string) (*models.Wallet, bool, error)
}

// CredentialStore finds a stored explorer credential for a network.
type CredentialStore interface {
	ActiveForNetwork(ctx context.Context, network types.Network) (*models.APIKey, error)
}

// Archiver keeps a copy of a job's artifacts under an object prefix.
type Archiver interface {
	Archive(ctx context.Context, prefix string, paths []string) error
}

// Publisher announces finished imports.
type Publisher interface {
	PublishImportCompleted(ctx context.Context, ev events.ImportCompleted) error
}

// CacheInvalidator drops cached ledger reads.
type CacheInvalidator interface {
	InvalidateLedger(ctx context.Context) error
}

// Deps are the collaborators of an Orchestrator. Archive, Events and Cache are optional.
type Deps struct {
	Wallets     WalletStore
	Credentials CredentialStore
	Ledger      reconcile.Store
	Runner      FetchRunner
	Explorer    config.ExplorerConfig
	WorkDir     string
	Archive     Archiver
	Events      Publisher
	Cache       CacheInvalidator
}

// Orchestrator runs import jobs in the background and tracks their progress.
type Orchestrator struct {
	deps       Deps
	store      *Store
	reconciler *reconcile.Reconciler

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator with its own job store.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.WorkDir == "" {
		deps.WorkDir = filepath.Join(os.TempDir(), "ledger-imports")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:       deps,
		store:      NewStore(),
		reconciler: reconcile.NewReconciler(deps.Ledger),
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// StartImport validates req, registers a pending job and runs it in the background.
// It returns the job id without waiting for the fetch.
func (o *Orchestrator) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	req.normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	t := o.store.Create(req.Address, req.Network)
	metrics.ImportsStarted.WithLabelValues(string(req.Network)).Inc()

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"importId": t.ID(),
		"address":  req.Address,
		"network":  req.Network,
	})
	logger.Info("Import accepted")

	o.wg.Add(1)
	go o.run(logging.WithLogger(o.baseCtx, logger), t, req)
	return t.ID(), nil
}

// Progress returns the snapshot of a job.
func (o *Orchestrator) Progress(id string) (Snapshot, error) {
	snap, ok := o.store.Get(id)
	if !ok {
		return Snapshot{}, apperrors.NewNotFoundError("import", id)
	}
	return snap, nil
}

// Active lists jobs that have not finished.
func (o *Orchestrator) Active() []Snapshot {
	return o.store.Active()
}

// ReclaimCompleted drops every finished job.
func (o *Orchestrator) ReclaimCompleted() int {
	return o.store.Reclaim(0)
}

// RunSweeper periodically reclaims finished jobs older than retention.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	o.store.RunSweeper(ctx, interval, retention)
}

// Wait blocks until every started job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown waits for running jobs. When ctx ends first, running fetches are killed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, t *Tracker, req ImportRequest) {
	defer o.wg.Done()
	logger := logging.FromContext(ctx)
	started := time.Now()

	metrics.ActiveImports.Inc()
	defer metrics.ActiveImports.Dec()

	res, err := o.execute(ctx, t, req)
	if err != nil {
		t.Fail(err)
		logger.WithError(err).Error("Import failed")
	} else {
		t.Complete(completionMessage(res, t.Snapshot().Warnings))
		logger.WithFields(map[string]interface{}{
			"inserted":    res.Inserted,
			"duplicates":  res.Duplicates,
			"failed":      res.Failed,
			"parseErrors": res.ParseErrors,
			"duration":    time.Since(started),
		}).Info("Import completed")
	}

	snap := t.Snapshot()
	metrics.ObserveImport(string(req.Network), string(snap.Status), started)
	o.publish(ctx, snap, res)
}

func completionMessage(res *reconcile.Result, warnings []string) string {
	msg := res.Summary()
	if n := len(warnings); n > 0 {
		msg += fmt.Sprintf("; %d asset(s) failed to fetch", n)
	}
	return msg
}

func (o *Orchestrator) execute(ctx context.Context, t *Tracker, req ImportRequest) (*reconcile.Result, error) {
	logger := logging.FromContext(ctx)

	wallet := &models.Wallet{Address: req.Address, Network: req.Network}
	if req.WalletName != "" {
		wallet.Name = &req.WalletName
	}
	if req.StartBlock != "0" {
		wallet.StartBlock = &req.StartBlock
	}
	if req.EndBlock != types.BlockLatest {
		wallet.EndBlock = &req.EndBlock
	}
	wallet, walletCreated, err := o.deps.Wallets.Upsert(ctx, wallet, models.DefaultWalletName(req.Address))
	if err != nil {
		return nil, apperrors.NewPersistenceError("wallet upsert", err)
	}

	t.Advance(types.ImportStatusFetching, types.ProgressFetching, "Fetching transactions from explorer")

	apiKey, err := o.resolveCredential(ctx, req)
	if err != nil {
		return nil, err
	}
	baseURL := o.deps.Explorer.BaseURLs[string(req.Network)]

	workDir := filepath.Join(o.deps.WorkDir, uuid.NewString())
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, apperrors.NewFetchError("failed to create work directory", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.WithError(err).WithField("workDir", workDir).Warn("Failed to clean up import artifacts")
		}
	}()

	cfg := &adapter.FetchConfig{
		Address:    req.Address,
		Network:    req.Network,
		StartBlock: req.StartBlock,
		EndBlock:   req.EndBlock,
		Assets:     req.assets(),
		APIKey:     apiKey,
		BaseURL:    baseURL,
		OutputDir:  workDir,
	}

	t.Advance(types.ImportStatusFetching, types.ProgressLaunched, "Fetcher started")
	arts, err := o.deps.Runner.Run(ctx, cfg, func(ev Event) {
		switch {
		case ev.Kind == EventProgress:
			t.Progress(progressStep, types.ProgressFetchCap, ev.Text)
		case ev.Kind == EventFailed && ev.Asset != "":
			logger.WithField("asset", ev.Asset).Warn(ev.Text)
			t.Warn(ev.Text)
		}
	})
	if err != nil {
		return nil, err
	}

	t.Advance(types.ImportStatusProcessing, types.ProgressProcessing, fmt.Sprintf("Processing %d artifacts", len(arts)))

	res, err := o.reconciler.Run(ctx, reconcile.Target{
		WalletID: wallet.ID,
		Address:  req.Address,
		Network:  req.Network,
	}, arts)
	if err != nil {
		return nil, err
	}
	metrics.RecordsReconciled.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.RecordsReconciled.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	metrics.RecordsReconciled.WithLabelValues("failed").Add(float64(res.Failed))
	metrics.RecordsReconciled.WithLabelValues("unparseable").Add(float64(res.ParseErrors))

	o.archive(ctx, artifact.ArchivePrefix(string(req.Network), t.ID()), arts)
	// A new wallet changes the dashboard even when no record was inserted.
	if o.deps.Cache != nil && (res.Inserted > 0 || walletCreated) {
		if err := o.deps.Cache.InvalidateLedger(ctx); err != nil {
			logger.WithError(err).Warn("Failed to invalidate ledger cache")
		}
	}
	return res, nil
}

// resolveCredential picks the request key, else the newest stored key for the network, else the configured fallback.
func (o *Orchestrator) resolveCredential(ctx context.Context, req ImportRequest) (string, error) {
	if req.APIKey != "" {
		return req.APIKey, nil
	}
	if o.deps.Credentials != nil {
		key, err := o.deps.Credentials.ActiveForNetwork(ctx, req.Network)
		if err != nil {
			return "", apperrors.NewPersistenceError("credential lookup", err)
		}
		if key != nil && key.Key != "" {
			return key.Key, nil
		}
	}
	if key := o.deps.Explorer.APIKeys[string(req.Network)]; key != "" {
		return key, nil
	}
	return "", apperrors.NewFetchError(fmt.Sprintf("no explorer API key available for %s", req.Network), nil)
}

func (o *Orchestrator) archive(ctx context.Context, prefix string, arts []artifact.Artifact) {
	if o.deps.Archive == nil || len(arts) == 0 {
		return
	}
	if err := o.deps.Archive.Archive(ctx, prefix, artifact.Paths(arts)); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to archive import artifacts")
	}
}

func (o *Orchestrator) publish(ctx context.Context, snap Snapshot, res *reconcile.Result) {
	if o.deps.Events == nil {
		return
	}
	ev := events.ImportCompleted{
		ImportID:      snap.ID,
		WalletAddress: strings.ToLower(snap.WalletAddress),
		Network:       string(snap.Network),
		Status:        string(snap.Status),
		Error:         snap.Error,
		FinishedAt:    snap.UpdatedAt,
	}
	for _, w := range snap.Warnings {
		if failure, ok := ParseLine(w); ok && failure.Asset != "" {
			ev.FailedAssets = append(ev.FailedAssets, failure.Asset)
		}
	}
	if res != nil {
		ev.Inserted = res.Inserted
		ev.Duplicates = res.Duplicates
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.deps.Events.PublishImportCompleted(pubCtx, ev); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to publish import event")
	}
}
