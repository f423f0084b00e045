package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/storage"
)

// ExportHeader is the CSV header row of a transaction export
var ExportHeader = []string{"Time", "Token", "Type", "From", "To", "Amount", "Hash"}

// isoMillis renders instants like 2024-01-02T03:04:05.000Z
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// TransactionLister lists stored records
type TransactionLister interface {
	List(ctx context.Context, filters *storage.TransactionFilters) ([]*models.Transaction, error)
}

// ExportService serializes records as CSV
type ExportService struct {
	transactions TransactionLister
}

func NewExportService(transactions TransactionLister) *ExportService {
	return &ExportService{transactions: transactions}
}

// WriteTransactionsCSV writes every record (or one wallet's) newest first.
func (s *ExportService) WriteTransactionsCSV(ctx context.Context, w io.Writer, walletID *int64) error {
	txs, err := s.transactions.List(ctx, &storage.TransactionFilters{WalletID: walletID, SortOrder: "desc"})
	if err != nil {
		return apperrors.NewPersistenceError("export transactions", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range txs {
		if err := cw.Write(exportRow(t)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(t *models.Transaction) []string {
	ts := ""
	if _, ok := t.Unix(); ok {
		ts = t.Time().Format(isoMillis)
	}
	return []string{
		ts,
		t.TokenSymbol,
		string(t.Classification),
		t.From,
		t.To,
		strconv.FormatFloat(t.Amount, 'f', -1, 64),
		t.Hash,
	}
}
