package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/types"
)

// APIKeyRepository handles explorer credential persistence
type APIKeyRepository struct {
	db *PostgresDB
}

// NewAPIKeyRepository creates a new credential repository
func NewAPIKeyRepository(db *PostgresDB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, name, network, api_key, is_active, created_at`

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	if err := row.Scan(&k.ID, &k.Name, &k.Network, &k.Key, &k.IsActive, &k.CreatedAt); err != nil {
		return nil, err
	}
	return &k, nil
}

// Create stores a credential
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	query := `
		INSERT INTO api_keys (name, network, api_key, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING ` + apiKeyColumns

	k, err := scanAPIKey(r.db.Pool().QueryRow(ctx, query, key.Name, key.Network, key.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}
	return k, nil
}

// List returns all credentials, newest first
func (r *APIKeyRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ActiveForNetwork returns the most recent active credential for a network, or nil
func (r *APIKeyRepository) ActiveForNetwork(ctx context.Context, network types.Network) (*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE network = $1 AND is_active
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	k, err := scanAPIKey(r.db.Pool().QueryRow(ctx, query, network))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return k, nil
}

// Delete removes a credential
func (r *APIKeyRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
