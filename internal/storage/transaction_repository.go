package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ledger-dashboard/internal/models"
)

// TransactionRepository handles canonical record persistence
type TransactionRepository struct {
	db *PostgresDB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *PostgresDB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// TransactionFilters narrows a record listing. Limit 0 means unbounded.
type TransactionFilters struct {
	WalletID    *int64
	TokenSymbol string // exact match
	Search      string // case-insensitive substring of hash, from, to or symbol
	SortOrder   string // asc or desc over the integer timestamp
	Limit       int
	Offset      int
}

// AggregateFilter narrows a signed-amount fold.
type AggregateFilter struct {
	WalletID      *int64
	ExcludeNative bool
	FromUnix      *int64 // inclusive
	ToUnix        *int64 // exclusive
}

const transactionColumns = `id, hash, block_number, time_stamp, from_address, to_address, value, amount,
	token_symbol, token_name, token_decimal, contract_address, gas_used, gas_price,
	transaction_type, wallet_id, created_at`

// signedAmount is +amount for TO records and -amount for FROM records
const signedAmount = `CASE WHEN transaction_type = 'TO' THEN amount ELSE -amount END`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID,
		&t.Hash,
		&t.BlockNumber,
		&t.TimeStamp,
		&t.From,
		&t.To,
		&t.Value,
		&t.Amount,
		&t.TokenSymbol,
		&t.TokenName,
		&t.TokenDecimal,
		&t.ContractAddress,
		&t.GasUsed,
		&t.GasPrice,
		&t.Classification,
		&t.WalletID,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// escapeLike escapes LIKE metacharacters so the search text matches literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func buildTransactionWhere(f *TransactionFilters) (string, []any) {
	var conds []string
	var args []any

	if f == nil {
		return "", nil
	}
	if f.WalletID != nil {
		args = append(args, *f.WalletID)
		conds = append(conds, fmt.Sprintf("wallet_id = $%d", len(args)))
	}
	if f.TokenSymbol != "" {
		args = append(args, f.TokenSymbol)
		conds = append(conds, fmt.Sprintf("token_symbol = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(hash ILIKE $%[1]d OR from_address ILIKE $%[1]d OR to_address ILIKE $%[1]d OR token_symbol ILIKE $%[1]d)", n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of records matching the filters
func (r *TransactionRepository) List(ctx context.Context, filters *TransactionFilters) ([]*models.Transaction, error) {
	where, args := buildTransactionWhere(filters)

	dir := "DESC"
	if filters != nil && strings.EqualFold(filters.SortOrder, "asc") {
		dir = "ASC"
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		fmt.Sprintf(" ORDER BY CAST(time_stamp AS BIGINT) %s, id %s", dir, dir)

	if filters != nil && filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters != nil && filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := []*models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// Count returns the number of records matching the filters, ignoring pagination
func (r *TransactionRepository) Count(ctx context.Context, filters *TransactionFilters) (int64, error) {
	where, args := buildTransactionWhere(filters)

	var n int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// ExistingHashes returns the subset of hashes already stored
func (r *TransactionRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	if len(hashes) == 0 {
		return known, nil
	}

	rows, err := r.db.Pool().Query(ctx, `SELECT hash FROM transactions WHERE hash = ANY($1)`, hashes)
	if err != nil {
		return nil, fmt.Errorf("failed to look up hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		known[h] = struct{}{}
	}
	return known, rows.Err()
}

// InsertBatch inserts records in one transaction. Rows whose hash already exists are skipped
// by the hash constraint and not counted; the returned count is the number of rows actually written.
func (r *TransactionRepository) InsertBatch(ctx context.Context, txs []*models.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO transactions (
			hash, block_number, time_stamp, from_address, to_address, value, amount,
			token_symbol, token_name, token_decimal, contract_address, gas_used, gas_price,
			transaction_type, wallet_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (hash) DO NOTHING`

	dbTx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback(ctx) // no-op after commit
	}()

	batch := &pgx.Batch{}
	for _, t := range txs {
		batch.Queue(query,
			t.Hash,
			t.BlockNumber,
			t.TimeStamp,
			t.From,
			t.To,
			t.Value,
			t.Amount,
			t.TokenSymbol,
			t.TokenName,
			t.TokenDecimal,
			t.ContractAddress,
			t.GasUsed,
			t.GasPrice,
			t.Classification,
			t.WalletID,
		)
	}

	results := dbTx.SendBatch(ctx, batch)
	inserted := 0
	for range txs {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("failed to insert transaction: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// SumSigned folds matching records into (sum of signed amounts, record count)
func (r *TransactionRepository) SumSigned(ctx context.Context, f AggregateFilter) (float64, int64, error) {
	var conds []string
	var args []any

	if f.WalletID != nil {
		args = append(args, *f.WalletID)
		conds = append(conds, fmt.Sprintf("wallet_id = $%d", len(args)))
	}
	if f.ExcludeNative {
		conds = append(conds, "contract_address IS NOT NULL")
	}
	if f.FromUnix != nil {
		args = append(args, *f.FromUnix)
		conds = append(conds, fmt.Sprintf("CAST(time_stamp AS BIGINT) >= $%d", len(args)))
	}
	if f.ToUnix != nil {
		args = append(args, *f.ToUnix)
		conds = append(conds, fmt.Sprintf("CAST(time_stamp AS BIGINT) < $%d", len(args)))
	}

	query := `SELECT COALESCE(SUM(` + signedAmount + `), 0), COUNT(*) FROM transactions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var sum float64
	var n int64
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&sum, &n); err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	return sum, n, nil
}

// DeleteAll removes every record and returns how many were deleted
func (r *TransactionRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation (23505)
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
