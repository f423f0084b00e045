package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledger-dashboard/internal/artifact"
	"github.com/ledger-dashboard/internal/types"
)

// FetchConfig is the structured input of one fetch run. It is written by the job runner
// and read by the fetcher executable.
type FetchConfig struct {
	Address           string        `json:"address"`
	Network           types.Network `json:"network"`
	StartBlock        string        `json:"startBlock"`
	EndBlock          string        `json:"endBlock"`
	Assets            []types.Asset `json:"assets"`
	APIKey            string        `json:"apiKey"`
	BaseURL           string        `json:"baseUrl"`
	OutputDir         string        `json:"outputDir"`
	RequestsPerSecond float64       `json:"requestsPerSecond,omitempty"`
}

// Validate checks the fields the fetcher cannot run without.
func (c *FetchConfig) Validate() error {
	switch {
	case !types.IsValidAddress(c.Address):
		return fmt.Errorf("invalid address %q", c.Address)
	case len(c.Assets) == 0:
		return fmt.Errorf("no assets requested")
	case c.BaseURL == "":
		return fmt.Errorf("explorer base URL not set")
	case c.OutputDir == "":
		return fmt.Errorf("output directory not set")
	}
	return nil
}

// WriteFetchConfig serializes cfg to path.
func WriteFetchConfig(path string, cfg *FetchConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fetch config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write fetch config: %w", err)
	}
	return nil
}

// ReadFetchConfig loads and validates a fetch config.
func ReadFetchConfig(path string) (*FetchConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is a command-line argument
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch config: %w", err)
	}
	var cfg FetchConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse fetch config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PageSource is the explorer surface the fetcher pages through.
type PageSource interface {
	FetchTransactions(ctx context.Context, q PageQuery) ([]EtherscanTransaction, error)
	FetchTokenTransfers(ctx context.Context, q PageQuery) ([]EtherscanTokenTransfer, error)
}

// FetchSummary reports what a fetch run produced.
type FetchSummary struct {
	Artifacts []string
	Rows      map[string]int // by symbol
	Failures  map[string]error
}

// Fetcher pages every requested asset into artifacts, reporting progress lines to out.
type Fetcher struct {
	source PageSource
	out    io.Writer
}

// NewFetcher creates a fetcher over source.
func NewFetcher(source PageSource, out io.Writer) *Fetcher {
	return &Fetcher{source: source, out: out}
}

// Run fetches every asset in cfg. It fails only when no asset could be fetched.
func (f *Fetcher) Run(ctx context.Context, cfg *FetchConfig) (*FetchSummary, error) {
	summary := &FetchSummary{Rows: make(map[string]int), Failures: make(map[string]error)}

	var lastErr error
	for _, asset := range cfg.Assets {
		path, rows, err := f.fetchAsset(ctx, cfg, asset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			summary.Failures[asset.Symbol] = err
			lastErr = fmt.Errorf("%s: %w", asset.Symbol, err)
			fmt.Fprintf(f.out, "Failed to fetch %s: %v\n", asset.Symbol, err)
			continue
		}
		summary.Rows[asset.Symbol] = rows
		if path != "" {
			summary.Artifacts = append(summary.Artifacts, path)
		}
	}

	if len(summary.Failures) == len(cfg.Assets) {
		return summary, lastErr
	}
	fmt.Fprintf(f.out, "Done: %d artifacts written\n", len(summary.Artifacts))
	return summary, nil
}

// pageFunc returns one page of records keyed by artifact column.
type pageFunc func(ctx context.Context, page int) ([]map[string]string, error)

func (f *Fetcher) fetchAsset(ctx context.Context, cfg *FetchConfig, asset types.Asset) (string, int, error) {
	q := PageQuery{Address: cfg.Address, StartBlock: cfg.StartBlock, EndBlock: cfg.EndBlock}

	var kind artifact.Kind
	var next pageFunc
	if asset.IsNative() {
		kind = artifact.KindNative
		next = func(ctx context.Context, page int) ([]map[string]string, error) {
			q.Page = page
			txs, err := f.source.FetchTransactions(ctx, q)
			rows := make([]map[string]string, len(txs))
			for i, tx := range txs {
				rows[i] = tx.Fields()
			}
			return rows, err
		}
	} else {
		kind = artifact.KindToken
		q.Contract = asset.Contract
		next = func(ctx context.Context, page int) ([]map[string]string, error) {
			q.Page = page
			transfers, err := f.source.FetchTokenTransfers(ctx, q)
			rows := make([]map[string]string, len(transfers))
			for i, t := range transfers {
				rows[i] = t.Fields()
			}
			return rows, err
		}
	}

	var w *artifact.Writer
	var prevKey string
	total := 0
	for page := 1; ; page++ {
		fmt.Fprintf(f.out, "Fetching page %d for %s...\n", page, asset.Symbol)

		rows, err := next(ctx, page)
		if err != nil {
			discardWriter(w)
			return "", 0, fmt.Errorf("page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}

		// Some explorers repeat the last page instead of returning an empty one.
		key := pageKey(rows)
		if key == prevKey {
			break
		}
		prevKey = key

		if w == nil {
			w, err = artifact.Create(cfg.OutputDir, kind, asset.Symbol, cfg.Address)
			if err != nil {
				return "", 0, err
			}
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				discardWriter(w)
				return "", 0, err
			}
		}
		total += len(rows)

		if len(rows) < PageSize {
			break
		}
	}

	if w == nil {
		return "", 0, nil
	}
	if err := w.Close(); err != nil {
		return "", 0, err
	}
	return w.Path(), total, nil
}

func pageKey(rows []map[string]string) string {
	hashes := make([]string, len(rows))
	for i, r := range rows {
		hashes[i] = r["hash"]
	}
	return strings.Join(hashes, ",")
}

// discardWriter drops a partially written artifact so an aborted asset is never reconciled.
func discardWriter(w *artifact.Writer) {
	if w != nil {
		_ = w.Discard()
	}
}
