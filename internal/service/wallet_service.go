package service

import (
	"context"
	"strconv"
	"strings"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/types"
)

// WalletRepository is the wallet store used by WalletService
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	List(ctx context.Context) ([]*models.Wallet, error)
	Rename(ctx context.Context, id int64, name string) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// WalletService manages tracked wallets
type WalletService struct {
	repo  WalletRepository
	cache LedgerCache
}

// NewWalletService creates a new wallet service. cache may be nil.
func NewWalletService(repo WalletRepository, cache LedgerCache) *WalletService {
	return &WalletService{repo: repo, cache: cache}
}

// CreateWalletInput is the body of a wallet creation request
type CreateWalletInput struct {
	Address    string        `json:"address"`
	Network    types.Network `json:"network"`
	Name       string        `json:"name,omitempty"`
	StartBlock string        `json:"startBlock,omitempty"`
	EndBlock   string        `json:"endBlock,omitempty"`
}

// List returns every wallet
func (s *WalletService) List(ctx context.Context) ([]*models.Wallet, error) {
	wallets, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list wallets", err)
	}
	return wallets, nil
}

// Create adds a wallet; an existing (address, network) pair is a conflict
func (s *WalletService) Create(ctx context.Context, input CreateWalletInput) (*models.Wallet, error) {
	address := strings.TrimSpace(input.Address)
	network := types.Network(strings.ToLower(strings.TrimSpace(string(input.Network))))

	if !types.IsValidAddress(address) {
		return nil, apperrors.NewValidationError("address", "must be a 0x-prefixed 40 character hex address")
	}
	if !network.IsValid() {
		return nil, apperrors.NewValidationError("network", "unsupported network")
	}
	if input.StartBlock != "" && !types.IsValidBlock(input.StartBlock, false) {
		return nil, apperrors.NewValidationError("startBlock", "must be a non-negative integer")
	}
	if input.EndBlock != "" && !types.IsValidBlock(input.EndBlock, true) {
		return nil, apperrors.NewValidationError("endBlock", `must be a non-negative integer or "latest"`)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = models.DefaultWalletName(address)
	}
	wallet := &models.Wallet{Address: address, Network: network, Name: &name}
	if input.StartBlock != "" {
		wallet.StartBlock = &input.StartBlock
	}
	if input.EndBlock != "" {
		wallet.EndBlock = &input.EndBlock
	}

	created, err := s.repo.Create(ctx, wallet)
	if err != nil {
		if catErr := apperrors.Categorize(err); catErr.Category == apperrors.CategoryConflict {
			return nil, catErr
		}
		return nil, apperrors.NewPersistenceError("create wallet", err)
	}

	s.invalidate(ctx)
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"walletId": created.ID,
		"address":  created.Address,
		"network":  created.Network,
	}).Info("Wallet created")
	return created, nil
}

// Rename sets a wallet's display name
func (s *WalletService) Rename(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.NewValidationError("name", "must not be empty")
	}
	ok, err := s.repo.Rename(ctx, id, name)
	if err != nil {
		return apperrors.NewPersistenceError("rename wallet", err)
	}
	if !ok {
		return apperrors.NewNotFoundError("wallet", strconv.FormatInt(id, 10))
	}
	s.invalidate(ctx)
	return nil
}

// Delete removes a wallet together with its records
func (s *WalletService) Delete(ctx context.Context, id int64) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apperrors.NewPersistenceError("delete wallet", err)
	}
	if !ok {
		return apperrors.NewNotFoundError("wallet", strconv.FormatInt(id, 10))
	}

	s.invalidate(ctx)
	logging.FromContext(ctx).WithField("walletId", id).Info("Wallet deleted")
	return nil
}

// invalidate drops cached dashboard and page reads after a wallet change.
func (s *WalletService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateLedger(ctx); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to invalidate ledger cache")
	}
}
