package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledger-dashboard/internal/artifact"
	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/metrics"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/reconcile"
	"github.com/ledger-dashboard/internal/storage"
)

// WalletGetter reads one tracked wallet
type WalletGetter interface {
	Get(ctx context.Context, id int64) (*models.Wallet, error)
}

// ArtifactSource lists and streams archived fetch artifacts
type ArtifactSource interface {
	List(ctx context.Context) ([]storage.ArchivedArtifact, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ReprocessResult reports a manual re-reconciliation of archived artifacts
type ReprocessResult struct {
	WalletID  int64             `json:"walletId"`
	ImportID  string            `json:"importId,omitempty"`
	Artifacts []string          `json:"artifacts"`
	Result    *reconcile.Result `json:"result"`
}

// ReprocessService re-runs reconciliation over artifacts kept in the archive.
// Records already stored are skipped, so reprocessing is idempotent.
type ReprocessService struct {
	wallets    WalletGetter
	reconciler *reconcile.Reconciler
	archive    ArtifactSource
	cache      LedgerCache
	workDir    string
}

// NewReprocessService creates a reprocess service. archive and cache may be nil.
func NewReprocessService(wallets WalletGetter, ledger reconcile.Store, archive ArtifactSource, cache LedgerCache, workDir string) *ReprocessService {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &ReprocessService{
		wallets:    wallets,
		reconciler: reconcile.NewReconciler(ledger),
		archive:    archive,
		cache:      cache,
		workDir:    workDir,
	}
}

// Reprocess downloads the archived artifacts of a wallet, limited to one import when
// importID is set, and reconciles them into the ledger.
func (s *ReprocessService) Reprocess(ctx context.Context, walletID int64, importID string) (*ReprocessResult, error) {
	if s.archive == nil {
		return nil, apperrors.NewServiceUnavailableError("artifact archive")
	}
	importID = strings.TrimSpace(importID)
	if importID == "." || importID == ".." || strings.ContainsAny(importID, `/\`) {
		return nil, apperrors.NewValidationError("importId", "must be an import id")
	}

	wallet, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("get wallet", err)
	}
	if wallet == nil {
		return nil, apperrors.NewNotFoundError("wallet", strconv.FormatInt(walletID, 10))
	}

	names, err := s.archivedFor(ctx, wallet, importID)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		what := string(wallet.Network) + "/" + wallet.Address
		if importID != "" {
			what = importID
		}
		return nil, apperrors.NewNotFoundError("archived artifacts", what)
	}

	if err := os.MkdirAll(s.workDir, 0o750); err != nil {
		return nil, apperrors.NewInternalError("failed to create work directory", err)
	}
	tmp, err := os.MkdirTemp(s.workDir, "reprocess-")
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create work directory", err)
	}
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"walletId": wallet.ID,
		"importId": importID,
	})
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			logger.WithError(err).Warn("Failed to clean up reprocess directory")
		}
	}()

	arts := make([]artifact.Artifact, 0, len(names))
	for i, name := range names {
		kind, symbol, _ := artifact.Parse(path.Base(name), wallet.Address)
		// The index keeps same-named files from different imports apart.
		local := filepath.Join(tmp, fmt.Sprintf("%03d-%s", i, path.Base(name)))
		if err := s.download(ctx, name, local); err != nil {
			return nil, err
		}
		arts = append(arts, artifact.Artifact{Path: local, Kind: kind, Symbol: symbol})
	}

	res, err := s.reconciler.Run(ctx, reconcile.Target{
		WalletID: wallet.ID,
		Address:  wallet.Address,
		Network:  wallet.Network,
	}, arts)
	if err != nil {
		return nil, err
	}
	metrics.RecordsReconciled.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.RecordsReconciled.WithLabelValues("duplicate").Add(float64(res.Duplicates))

	if res.Inserted > 0 && s.cache != nil {
		if err := s.cache.InvalidateLedger(ctx); err != nil {
			logger.WithError(err).Warn("Failed to invalidate ledger cache")
		}
	}

	logger.WithFields(map[string]interface{}{
		"artifacts":  len(names),
		"inserted":   res.Inserted,
		"duplicates": res.Duplicates,
	}).Info("Archived artifacts reprocessed")

	return &ReprocessResult{WalletID: wallet.ID, ImportID: importID, Artifacts: names, Result: res}, nil
}

// archivedFor returns the archive keys holding artifacts of wallet, oldest import first.
func (s *ReprocessService) archivedFor(ctx context.Context, wallet *models.Wallet, importID string) ([]string, error) {
	objects, err := s.archive.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list archived artifacts", err)
	}

	prefix := string(wallet.Network) + "/"
	if importID != "" {
		prefix = artifact.ArchivePrefix(string(wallet.Network), importID) + "/"
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.Before(objects[j].LastModified)
	})
	var names []string
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Name, prefix) {
			continue
		}
		if _, _, ok := artifact.Parse(path.Base(obj.Name), wallet.Address); ok {
			names = append(names, obj.Name)
		}
	}
	return names, nil
}

func (s *ReprocessService) download(ctx context.Context, name, local string) error {
	rc, err := s.archive.Open(ctx, name)
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to open archived artifact %s", name), err)
	}
	defer rc.Close()

	f, err := os.Create(local) // #nosec G304 - path is inside a fresh temp directory
	if err != nil {
		return apperrors.NewInternalError("failed to create local artifact", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return apperrors.NewInternalError(fmt.Sprintf("failed to download archived artifact %s", name), err)
	}
	return f.Close()
}
