package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/storage"
	"github.com/ledger-dashboard/internal/types"
)

// mockTransactionRepo applies filters in memory the way the Postgres repository does
type mockTransactionRepo struct {
	transactions []*models.Transaction
	listCalls    atomic.Int32
	err          error
}

func (m *mockTransactionRepo) match(f *storage.TransactionFilters) []*models.Transaction {
	result := make([]*models.Transaction, 0)
	for _, tx := range m.transactions {
		if f != nil {
			if f.WalletID != nil && tx.WalletID != *f.WalletID {
				continue
			}
			if f.TokenSymbol != "" && tx.TokenSymbol != f.TokenSymbol {
				continue
			}
			if f.Search != "" {
				q := strings.ToLower(f.Search)
				if !strings.Contains(strings.ToLower(tx.Hash), q) &&
					!strings.Contains(strings.ToLower(tx.From), q) &&
					!strings.Contains(strings.ToLower(tx.To), q) &&
					!strings.Contains(strings.ToLower(tx.TokenSymbol), q) {
					continue
				}
			}
		}
		result = append(result, tx)
	}

	asc := f != nil && f.SortOrder == "asc"
	sort.SliceStable(result, func(i, j int) bool {
		a, _ := result[i].Unix()
		b, _ := result[j].Unix()
		if a == b {
			if asc {
				return result[i].ID < result[j].ID
			}
			return result[i].ID > result[j].ID
		}
		if asc {
			return a < b
		}
		return a > b
	})
	return result
}

func (m *mockTransactionRepo) List(_ context.Context, f *storage.TransactionFilters) ([]*models.Transaction, error) {
	m.listCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	result := m.match(f)
	if f != nil {
		if f.Offset >= len(result) {
			return []*models.Transaction{}, nil
		}
		result = result[f.Offset:]
		if f.Limit > 0 && f.Limit < len(result) {
			result = result[:f.Limit]
		}
	}
	return result, nil
}

func (m *mockTransactionRepo) Count(_ context.Context, f *storage.TransactionFilters) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.match(f))), nil
}

func (m *mockTransactionRepo) DeleteAll(context.Context) (int64, error) {
	n := int64(len(m.transactions))
	m.transactions = nil
	return n, nil
}

func tx(id int64, hash, ts, symbol string, kind types.Classification, amount float64) *models.Transaction {
	return &models.Transaction{
		ID:             id,
		Hash:           hash,
		TimeStamp:      ts,
		From:           "0xaaaa000000000000000000000000000000000001",
		To:             "0xbbbb000000000000000000000000000000000002",
		TokenSymbol:    symbol,
		Classification: kind,
		Amount:         amount,
		WalletID:       1,
	}
}

func hashes(txs []*models.Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.Hash
	}
	return out
}

func newTestCache(t *testing.T) *storage.CacheService {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return storage.NewCacheService(storage.NewRedisCacheFromClient(client), time.Minute)
}

func TestQueryService_SortsByIntegerTimestamp(t *testing.T) {
	repo := &mockTransactionRepo{transactions: []*models.Transaction{
		tx(1, "0xa", "100", "USDC", types.ClassificationTo, 1),
		tx(2, "0xb", "50", "USDC", types.ClassificationTo, 1),
		tx(3, "0xc", "75", "USDC", types.ClassificationTo, 1),
	}}
	svc := NewQueryService(repo, nil)

	asc, err := svc.ListTransactions(context.Background(), QueryInput{SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xb", "0xc", "0xa"}, hashes(asc.Transactions))

	desc, err := svc.ListTransactions(context.Background(), QueryInput{SortOrder: "sideways"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xc", "0xb"}, hashes(desc.Transactions))
}

func TestQueryService_Filters(t *testing.T) {
	other := int64(2)
	repo := &mockTransactionRepo{transactions: []*models.Transaction{
		tx(1, "0xABC123", "10", "USDC", types.ClassificationTo, 1),
		tx(2, "0xdef456", "20", "ETH", types.ClassificationFrom, 1),
		tx(3, "0x777", "30", "USDT", types.ClassificationTo, 1),
	}}
	repo.transactions[2].WalletID = other
	svc := NewQueryService(repo, nil)

	tests := []struct {
		name  string
		input QueryInput
		want  []string
	}{
		{"search is case-insensitive", QueryInput{SearchQuery: "abc1"}, []string{"0xABC123"}},
		{"search matches symbol", QueryInput{SearchQuery: "eth"}, []string{"0xdef456"}},
		{"search matches addresses", QueryInput{SearchQuery: "BBBB"}, []string{"0x777", "0xdef456", "0xABC123"}},
		{"token filter", QueryInput{TokenFilter: "USDT"}, []string{"0x777"}},
		{"token filter is exact", QueryInput{TokenFilter: "usdt"}, []string{}},
		{"all sentinel", QueryInput{TokenFilter: "all"}, []string{"0x777", "0xdef456", "0xABC123"}},
		{"wallet filter", QueryInput{WalletID: &other}, []string{"0x777"}},
		{"no match", QueryInput{SearchQuery: "zzz"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.ListTransactions(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hashes(res.Transactions))
			assert.Equal(t, int64(len(tt.want)), res.Total)
		})
	}
}

func TestQueryService_TotalIgnoresPagination(t *testing.T) {
	repo := &mockTransactionRepo{}
	for i := 0; i < 7; i++ {
		repo.transactions = append(repo.transactions,
			tx(int64(i+1), fmt.Sprintf("0x%02d", i), fmt.Sprint(1000+i), "USDC", types.ClassificationTo, 1))
	}
	svc := NewQueryService(repo, nil)

	res, err := svc.ListTransactions(context.Background(), QueryInput{Offset: 5, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
	assert.Equal(t, int64(7), res.Total)

	res, err = svc.ListTransactions(context.Background(), QueryInput{Offset: 50, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, res.Transactions)
	assert.NotNil(t, res.Transactions)
	assert.Equal(t, int64(7), res.Total)
}

func TestQueryService_ApplyDefaults(t *testing.T) {
	svc := NewQueryService(&mockTransactionRepo{}, nil)

	tests := []struct {
		name  string
		input QueryInput
		want  QueryInput
	}{
		{"zero values", QueryInput{}, QueryInput{Limit: DefaultLimit, SortOrder: "desc"}},
		{"negative", QueryInput{Offset: -3, Limit: -1}, QueryInput{Limit: DefaultLimit, SortOrder: "desc"}},
		{"capped", QueryInput{Limit: 5000, SortOrder: "ASC"}, QueryInput{Limit: MaxLimit, SortOrder: "asc"}},
		{"sentinel cleared", QueryInput{Limit: 10, TokenFilter: " ALL "}, QueryInput{Limit: 10, SortOrder: "desc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			svc.applyDefaults(&in)
			assert.Equal(t, tt.want, in)
		})
	}
}

func TestQueryService_RepositoryErrorIsPersistence(t *testing.T) {
	svc := NewQueryService(&mockTransactionRepo{err: errors.New("connection reset")}, nil)
	_, err := svc.ListTransactions(context.Background(), QueryInput{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryPersistence))
}

func TestQueryService_CachesUnfilteredPages(t *testing.T) {
	repo := &mockTransactionRepo{transactions: []*models.Transaction{
		tx(1, "0xa", "1", "USDC", types.ClassificationTo, 1),
	}}
	cache := newTestCache(t)
	svc := NewQueryService(repo, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := svc.ListTransactions(ctx, QueryInput{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Total)
	}
	assert.Equal(t, int32(1), repo.listCalls.Load())

	_, err := svc.ListTransactions(ctx, QueryInput{SearchQuery: "0xa"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.listCalls.Load(), "filtered queries bypass the cache")

	n, err := svc.ClearTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err := svc.ListTransactions(ctx, QueryInput{})
	require.NoError(t, err)
	assert.Zero(t, res.Total, "clearing invalidates cached pages")
}

func TestParseWalletID(t *testing.T) {
	id, err := ParseWalletID("")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = ParseWalletID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), *id)

	for _, bad := range []string{"abc", "0", "-4"} {
		_, err := ParseWalletID(bad)
		assert.True(t, apperrors.Is(err, apperrors.CategoryValidation), bad)
	}
}

// Concatenating every page reproduces the whole filtered set in order.
func TestQueryService_PaginationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("pages concatenate to the full set", prop.ForAll(
		func(timestamps []int64, limit int, asc bool) bool {
			repo := &mockTransactionRepo{}
			for i, ts := range timestamps {
				repo.transactions = append(repo.transactions,
					tx(int64(i+1), fmt.Sprintf("0x%04d", i), fmt.Sprint(ts), "USDC", types.ClassificationTo, 1))
			}
			svc := NewQueryService(repo, nil)
			order := "desc"
			if asc {
				order = "asc"
			}

			full, err := svc.ListTransactions(context.Background(), QueryInput{Limit: MaxLimit, SortOrder: order})
			if err != nil {
				return false
			}

			var pages []*models.Transaction
			for offset := 0; ; offset += limit {
				res, err := svc.ListTransactions(context.Background(), QueryInput{Offset: offset, Limit: limit, SortOrder: order})
				if err != nil || res.Total != int64(len(timestamps)) {
					return false
				}
				if len(res.Transactions) == 0 {
					break
				}
				pages = append(pages, res.Transactions...)
			}

			if len(pages) != len(full.Transactions) {
				return false
			}
			for i := range pages {
				if pages[i].Hash != full.Transactions[i].Hash {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 2_000_000_000)),
		gen.IntRange(1, 10),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
