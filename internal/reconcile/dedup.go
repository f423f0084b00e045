// Package reconcile turns fetch artifacts into newly persisted canonical records.
package reconcile

import (
	"context"
	"fmt"

	"github.com/ledger-dashboard/internal/models"
)

// lookupChunk bounds the number of hashes sent in one existence query.
const lookupChunk = 1000

// HashLookup reports which hashes are already stored.
type HashLookup interface {
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
}

// Deduplicator drops records whose hash is already known, either stored or seen earlier.
// It is not safe for concurrent use; each import owns its own.
type Deduplicator struct {
	lookup HashLookup
	known  map[string]struct{}
}

// NewDeduplicator creates a deduplicator backed by lookup.
func NewDeduplicator(lookup HashLookup) *Deduplicator {
	return &Deduplicator{lookup: lookup, known: make(map[string]struct{})}
}

// Known reports whether hash has been seen or found in the store.
func (d *Deduplicator) Known(hash string) bool {
	_, ok := d.known[hash]
	return ok
}

// Filter returns the candidates with unseen hashes, in input order, and marks them known.
func (d *Deduplicator) Filter(ctx context.Context, candidates []*models.Transaction) ([]*models.Transaction, error) {
	if err := d.prime(ctx, candidates); err != nil {
		return nil, err
	}

	fresh := make([]*models.Transaction, 0, len(candidates))
	for _, c := range candidates {
		if d.Known(c.Hash) {
			continue
		}
		d.known[c.Hash] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// prime loads stored hashes for candidates not already known.
func (d *Deduplicator) prime(ctx context.Context, candidates []*models.Transaction) error {
	pending := make([]string, 0, len(candidates))
	queued := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if d.Known(c.Hash) {
			continue
		}
		if _, ok := queued[c.Hash]; ok {
			continue
		}
		queued[c.Hash] = struct{}{}
		pending = append(pending, c.Hash)
	}

	for start := 0; start < len(pending); start += lookupChunk {
		end := min(start+lookupChunk, len(pending))
		stored, err := d.lookup.ExistingHashes(ctx, pending[start:end])
		if err != nil {
			return fmt.Errorf("failed to look up existing hashes: %w", err)
		}
		for h := range stored {
			d.known[h] = struct{}{}
		}
	}
	return nil
}
