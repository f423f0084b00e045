package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledger-dashboard/internal/artifact"
	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/normalize"
	"github.com/ledger-dashboard/internal/types"
)

// Store is the persistence the reconciler needs.
type Store interface {
	HashLookup
	InsertBatch(ctx context.Context, txs []*models.Transaction) (int, error)
}

// Target identifies the wallet the artifacts were fetched for.
type Target struct {
	WalletID int64
	Address  string
	Network  types.Network
}

// Result counts what happened to every artifact row.
type Result struct {
	Rows        int `json:"rows"`
	Normalized  int `json:"normalized"`
	Failed      int `json:"failed"`      // native rows dropped for failure markers
	ParseErrors int `json:"parseErrors"` // malformed or incomplete rows
	Duplicates  int `json:"duplicates"`
	Inserted    int `json:"inserted"`
}

// Reconciler parses, normalizes, deduplicates and persists fetch artifacts.
type Reconciler struct {
	store Store
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Parse reads every artifact and normalizes its rows into candidate records.
// Malformed rows are counted, logged and skipped.
func Parse(ctx context.Context, target Target, arts []artifact.Artifact) ([]*models.Transaction, *Result, error) {
	logger := logging.FromContext(ctx)
	res := &Result{}
	var candidates []*models.Transaction

	for _, a := range arts {
		read, err := artifact.Read(a)
		if err != nil {
			var schemaErr *artifact.SchemaError
			if errors.As(err, &schemaErr) {
				return nil, nil, apperrors.NewParseError(a.Path, 1, schemaErr.Error())
			}
			return nil, nil, err
		}

		res.Rows += len(read.Rows) + len(read.Malformed)
		res.ParseErrors += len(read.Malformed)
		for _, line := range read.Malformed {
			logger.WithField("artifact", a.Path).Debug(apperrors.NewParseError(a.Path, line, "wrong field count").Message)
		}

		for _, row := range read.Rows {
			var rec *models.Transaction
			var reason normalize.Reason
			if a.Kind == artifact.KindNative {
				rec, reason = normalize.Native(target.Address, target.Network, target.WalletID, normalize.NativeFromRow(row))
			} else {
				rec, reason = normalize.Token(target.Address, target.WalletID, normalize.TokenFromRow(row, a.Symbol))
			}

			switch {
			case rec != nil:
				candidates = append(candidates, rec)
			case reason.IsParseError():
				res.ParseErrors++
				logger.WithField("artifact", a.Path).Debug(apperrors.NewParseError(a.Path, row.Line, string(reason)).Message)
			default:
				res.Failed++
			}
		}
	}

	res.Normalized = len(candidates)
	return candidates, res, nil
}

// Run reconciles arts for target: parse, filter out known hashes, and insert the rest in one batch.
func (r *Reconciler) Run(ctx context.Context, target Target, arts []artifact.Artifact) (*Result, error) {
	candidates, res, err := Parse(ctx, target, arts)
	if err != nil {
		return nil, err
	}

	fresh, err := NewDeduplicator(r.store).Filter(ctx, candidates)
	if err != nil {
		return nil, apperrors.NewPersistenceError("hash lookup", err)
	}

	inserted, err := r.store.InsertBatch(ctx, fresh)
	if err != nil {
		return nil, apperrors.NewPersistenceError("insert transactions", err)
	}

	res.Inserted = inserted
	res.Duplicates = len(candidates) - inserted
	return res, nil
}

// Summary renders the result for a job status message.
func (r *Result) Summary() string {
	return fmt.Sprintf("Imported %d new transactions (%d duplicates, %d failed, %d unparseable)",
		r.Inserted, r.Duplicates, r.Failed, r.ParseErrors)
}
