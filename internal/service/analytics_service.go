package service

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledger-dashboard/internal/adapter"
	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/storage"
)

// LedgerAggregator folds stored records into signed sums
type LedgerAggregator interface {
	SumSigned(ctx context.Context, f storage.AggregateFilter) (float64, int64, error)
}

// WalletReader reads tracked wallets
type WalletReader interface {
	Get(ctx context.Context, id int64) (*models.Wallet, error)
	List(ctx context.Context) ([]*models.Wallet, error)
}

// NativeQuoter prices the live native balance of a wallet set
type NativeQuoter interface {
	Quote(ctx context.Context, wallets []*models.Wallet) (*adapter.NativeQuote, error)
}

// DashboardStats are the dashboard aggregates
type DashboardStats struct {
	TotalBalance      float64  `json:"totalBalance"`
	ActiveWallets     int      `json:"activeWallets"`
	TotalTransactions int64    `json:"totalTransactions"`
	MonthlyPnL        float64  `json:"monthlyPnL"`
	NativeBalance     *float64 `json:"nativeBalance,omitempty"`
	NativeValueUSD    *float64 `json:"nativeValueUsd,omitempty"`
}

// WalletBalance is the signed fold over one wallet's records
type WalletBalance struct {
	WalletID          int64   `json:"walletId"`
	Address           string  `json:"address"`
	Balance           float64 `json:"balance"`
	TotalTransactions int64   `json:"totalTransactions"`
}

// AnalyticsService derives dashboard aggregates. Incoming records count +amount and outgoing -amount.
type AnalyticsService struct {
	transactions LedgerAggregator
	wallets      WalletReader
	quoter       NativeQuoter
	cache        LedgerCache
	now          func() time.Time
}

// NewAnalyticsService creates an analytics service. quoter and cache may be nil.
func NewAnalyticsService(transactions LedgerAggregator, wallets WalletReader, quoter NativeQuoter, cache LedgerCache) *AnalyticsService {
	return &AnalyticsService{
		transactions: transactions,
		wallets:      wallets,
		quoter:       quoter,
		cache:        cache,
		now:          time.Now,
	}
}

// MonthWindow returns the [start, end) unix bounds of the calendar month containing now, in UTC.
func MonthWindow(now time.Time) (int64, int64) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start.Unix(), start.AddDate(0, 1, 0).Unix()
}

// Dashboard computes total balance, active wallet count, record count and this month's P&L.
// With a quoter the total balance is the token fold plus the quoted native value; a failed
// quote falls back to the fold over every record.
func (s *AnalyticsService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	logger := logging.FromContext(ctx)
	from, to := MonthWindow(s.now())

	var key string
	if s.cache != nil {
		key = s.cache.GenerateCacheKey(storage.CacheKeyDashboard, strconv.FormatInt(from, 10))
		var cached DashboardStats
		if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
			logger.WithError(err).Warn("Dashboard cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	var (
		stats      DashboardStats
		wallets    []*models.Wallet
		allSum     float64
		tokenSum   float64
		monthlySum float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		wallets, err = s.wallets.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		allSum, stats.TotalTransactions, err = s.transactions.SumSigned(gctx, storage.AggregateFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		monthlySum, _, err = s.transactions.SumSigned(gctx, storage.AggregateFilter{FromUnix: &from, ToUnix: &to})
		return err
	})
	if s.quoter != nil {
		g.Go(func() error {
			var err error
			tokenSum, _, err = s.transactions.SumSigned(gctx, storage.AggregateFilter{ExcludeNative: true})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewPersistenceError("dashboard aggregates", err)
	}

	for _, w := range wallets {
		if w.IsActive {
			stats.ActiveWallets++
		}
	}
	stats.MonthlyPnL = monthlySum
	stats.TotalBalance = allSum

	if s.quoter != nil {
		quote, err := s.quoter.Quote(ctx, wallets)
		if err != nil {
			logger.WithError(err).Warn("Native balance quote failed, using record fold")
		} else {
			stats.TotalBalance = tokenSum + quote.ValueUSD
			stats.NativeBalance = &quote.Balance
			stats.NativeValueUSD = &quote.ValueUSD
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, &stats); err != nil {
			logger.WithError(err).Warn("Dashboard cache write failed")
		}
	}
	return &stats, nil
}

// WalletBalance folds one wallet's records
func (s *AnalyticsService) WalletBalance(ctx context.Context, walletID int64) (*WalletBalance, error) {
	var key string
	if s.cache != nil {
		key = s.cache.GenerateCacheKey(storage.CacheKeyWalletBalance, strconv.FormatInt(walletID, 10))
		var cached WalletBalance
		if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Wallet balance cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("get wallet", err)
	}
	if w == nil {
		return nil, apperrors.NewNotFoundError("wallet", strconv.FormatInt(walletID, 10))
	}

	sum, n, err := s.transactions.SumSigned(ctx, storage.AggregateFilter{WalletID: &walletID})
	if err != nil {
		return nil, apperrors.NewPersistenceError("wallet balance", err)
	}
	bal := &WalletBalance{
		WalletID:          w.ID,
		Address:           w.Address,
		Balance:           sum,
		TotalTransactions: n,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, bal); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Wallet balance cache write failed")
		}
	}
	return bal, nil
}
