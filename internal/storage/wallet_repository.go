package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/models"
)

// WalletRepository handles wallet persistence
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

const walletColumns = `id, address, network, name, start_block, end_block, is_active, created_at`

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(
		&w.ID,
		&w.Address,
		&w.Network,
		&w.Name,
		&w.StartBlock,
		&w.EndBlock,
		&w.IsActive,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Upsert creates the wallet for (address, network) or returns the existing one, reporting
// whether the row was created. On an existing wallet only a non-nil name is applied;
// concurrent callers race last-write-wins on it.
func (r *WalletRepository) Upsert(ctx context.Context, wallet *models.Wallet, defaultName string) (*models.Wallet, bool, error) {
	address := strings.ToLower(wallet.Address)

	// $3 is the caller's name; $6 only names a newly created row.
	// xmax is zero only for a row this statement inserted.
	query := `
		INSERT INTO wallets (address, network, name, start_block, end_block, is_active)
		VALUES ($1, $2, COALESCE($3::text, NULLIF($6::text, '')), $4, $5, TRUE)
		ON CONFLICT (address, network) DO UPDATE
		SET name = COALESCE($3::text, wallets.name)
		RETURNING ` + walletColumns + `, (xmax = 0)`

	var w models.Wallet
	var created bool
	err := r.db.Pool().QueryRow(ctx, query,
		address,
		wallet.Network,
		wallet.Name,
		wallet.StartBlock,
		wallet.EndBlock,
		defaultName,
	).Scan(
		&w.ID,
		&w.Address,
		&w.Network,
		&w.Name,
		&w.StartBlock,
		&w.EndBlock,
		&w.IsActive,
		&w.CreatedAt,
		&created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return &w, created, nil
}

// Create inserts a new wallet, failing if (address, network) already exists
func (r *WalletRepository) Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	query := `
		INSERT INTO wallets (address, network, name, start_block, end_block, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING ` + walletColumns

	w, err := scanWallet(r.db.Pool().QueryRow(ctx, query,
		strings.ToLower(wallet.Address),
		wallet.Network,
		wallet.Name,
		wallet.StartBlock,
		wallet.EndBlock,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflictError(fmt.Sprintf("wallet %s already tracked on %s", wallet.Address, wallet.Network))
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return w, nil
}

// Get retrieves a wallet by id; returns nil when not found
func (r *WalletRepository) Get(ctx context.Context, id int64) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

// List returns all wallets, newest first
func (r *WalletRepository) List(ctx context.Context) ([]*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	wallets := []*models.Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// Rename sets the display name; returns false when the wallet does not exist
func (r *WalletRepository) Rename(ctx context.Context, id int64, name string) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `UPDATE wallets SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return false, fmt.Errorf("failed to rename wallet: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a wallet and, by cascade, its transactions
func (r *WalletRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM wallets WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete wallet: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
