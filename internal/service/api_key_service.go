package service

import (
	"context"
	"strconv"
	"strings"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/types"
)

// APIKeyRepository is the credential store
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	List(ctx context.Context) ([]*models.APIKey, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// APIKeyService manages explorer credentials. Secrets leave it masked.
type APIKeyService struct {
	repo APIKeyRepository
}

func NewAPIKeyService(repo APIKeyRepository) *APIKeyService {
	return &APIKeyService{repo: repo}
}

// CreateAPIKeyInput is the body of a credential creation request
type CreateAPIKeyInput struct {
	Name    string        `json:"name"`
	Network types.Network `json:"network"`
	APIKey  string        `json:"apiKey"`
}

func (s *APIKeyService) List(ctx context.Context) ([]models.APIKey, error) {
	keys, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list api keys", err)
	}
	out := make([]models.APIKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Masked())
	}
	return out, nil
}

func (s *APIKeyService) Create(ctx context.Context, input CreateAPIKeyInput) (*models.APIKey, error) {
	name := strings.TrimSpace(input.Name)
	network := types.Network(strings.ToLower(strings.TrimSpace(string(input.Network))))
	secret := strings.TrimSpace(input.APIKey)

	if name == "" {
		return nil, apperrors.NewValidationError("name", "must not be empty")
	}
	if !network.IsValid() {
		return nil, apperrors.NewValidationError("network", "unsupported network")
	}
	if secret == "" {
		return nil, apperrors.NewValidationError("apiKey", "must not be empty")
	}

	k, err := s.repo.Create(ctx, &models.APIKey{Name: name, Network: network, Key: secret})
	if err != nil {
		return nil, apperrors.NewPersistenceError("create api key", err)
	}
	masked := k.Masked()
	return &masked, nil
}

func (s *APIKeyService) Delete(ctx context.Context, id int64) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apperrors.NewPersistenceError("delete api key", err)
	}
	if !ok {
		return apperrors.NewNotFoundError("api key", strconv.FormatInt(id, 10))
	}
	return nil
}
