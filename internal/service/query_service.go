package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/storage"
)

const (
	// DefaultLimit is the page size used when none (or an invalid one) is given.
	DefaultLimit = 50
	// MaxLimit caps the page size.
	MaxLimit = 1000
	// TokenFilterAll disables the token filter.
	TokenFilterAll = "all"
)

// TransactionQuerier defines the interface for querying transactions
type TransactionQuerier interface {
	List(ctx context.Context, filters *storage.TransactionFilters) ([]*models.Transaction, error)
	Count(ctx context.Context, filters *storage.TransactionFilters) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// LedgerCache is the read-model cache used by the query and analytics services.
type LedgerCache interface {
	GenerateCacheKey(keyType storage.CacheKeyType, params ...string) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	InvalidateLedger(ctx context.Context) error
}

// QueryService handles transaction listing with filtering, search, sorting and pagination
type QueryService struct {
	transactionRepo TransactionQuerier
	cache           LedgerCache
}

// NewQueryService creates a new query service. cache may be nil.
func NewQueryService(transactionRepo TransactionQuerier, cache LedgerCache) *QueryService {
	return &QueryService{
		transactionRepo: transactionRepo,
		cache:           cache,
	}
}

// QueryInput defines input parameters for transaction queries
type QueryInput struct {
	Offset      int
	Limit       int
	WalletID    *int64
	TokenFilter string // exact symbol; empty or "all" disables
	SearchQuery string // case-insensitive substring of hash, from, to or symbol
	SortOrder   string // asc or desc (default)
}

// QueryResult is one page of records plus the size of the whole filtered set
type QueryResult struct {
	Transactions []*models.Transaction `json:"transactions"`
	Total        int64                 `json:"total"`
}

// applyDefaults clamps pagination and normalizes the sort order
func (s *QueryService) applyDefaults(input *QueryInput) {
	if input.Offset < 0 {
		input.Offset = 0
	}
	if input.Limit <= 0 {
		input.Limit = DefaultLimit
	}
	if input.Limit > MaxLimit {
		input.Limit = MaxLimit
	}
	input.TokenFilter = strings.TrimSpace(input.TokenFilter)
	if strings.EqualFold(input.TokenFilter, TokenFilterAll) {
		input.TokenFilter = ""
	}
	input.SearchQuery = strings.TrimSpace(input.SearchQuery)
	if strings.EqualFold(input.SortOrder, "asc") {
		input.SortOrder = "asc"
	} else {
		input.SortOrder = "desc"
	}
}

// shouldUseCache routes unfiltered pages to the cache. Token and search filters are
// case sensitive and too varied to be worth caching.
func (s *QueryService) shouldUseCache(input *QueryInput) bool {
	return s.cache != nil && input.TokenFilter == "" && input.SearchQuery == ""
}

func (s *QueryService) cacheKey(input *QueryInput) string {
	wallet := "all"
	if input.WalletID != nil {
		wallet = strconv.FormatInt(*input.WalletID, 10)
	}
	return s.cache.GenerateCacheKey(storage.CacheKeyTransactions,
		wallet, input.SortOrder, strconv.Itoa(input.Offset), strconv.Itoa(input.Limit))
}

// ListTransactions returns one page of matching records. The total is counted independently
// of the page and ignores pagination. No match is an empty page, not an error.
func (s *QueryService) ListTransactions(ctx context.Context, input QueryInput) (*QueryResult, error) {
	s.applyDefaults(&input)
	logger := logging.FromContext(ctx)

	useCache := s.shouldUseCache(&input)
	if useCache {
		var cached QueryResult
		hit, err := s.cache.Get(ctx, s.cacheKey(&input), &cached)
		if err != nil {
			logger.WithError(err).Warn("Transaction page cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	filters := &storage.TransactionFilters{
		WalletID:    input.WalletID,
		TokenSymbol: input.TokenFilter,
		Search:      input.SearchQuery,
		SortOrder:   input.SortOrder,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}

	result := &QueryResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.transactionRepo.List(gctx, filters)
		if err != nil {
			return err
		}
		result.Transactions = txs
		return nil
	})
	g.Go(func() error {
		n, err := s.transactionRepo.Count(gctx, filters)
		if err != nil {
			return err
		}
		result.Total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewPersistenceError("list transactions", err)
	}
	if result.Transactions == nil {
		result.Transactions = []*models.Transaction{}
	}

	if useCache {
		if err := s.cache.Set(ctx, s.cacheKey(&input), result); err != nil {
			logger.WithError(err).Warn("Transaction page cache write failed")
		}
	}
	return result, nil
}

// ClearTransactions deletes every stored record
func (s *QueryService) ClearTransactions(ctx context.Context) (int64, error) {
	n, err := s.transactionRepo.DeleteAll(ctx)
	if err != nil {
		return 0, apperrors.NewPersistenceError("clear transactions", err)
	}
	if s.cache != nil {
		if err := s.cache.InvalidateLedger(ctx); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to invalidate ledger cache")
		}
	}
	logging.FromContext(ctx).WithField("deleted", n).Info("Transactions cleared")
	return n, nil
}

// ParseWalletID parses an optional wallet id query value
func ParseWalletID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperrors.NewInvalidParameterError("walletId", fmt.Sprintf("invalid wallet id %q", raw))
	}
	return &id, nil
}
