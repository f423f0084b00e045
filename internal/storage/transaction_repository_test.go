package storage

import (
	"fmt"
	"testing"

	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTransactionWhere(t *testing.T) {
	walletID := int64(7)
	where, args := buildTransactionWhere(&TransactionFilters{
		WalletID:    &walletID,
		TokenSymbol: "USDC",
		Search:      "50%_off",
	})

	assert.Equal(t,
		" WHERE wallet_id = $1 AND token_symbol = $2 AND (hash ILIKE $3 OR from_address ILIKE $3 OR to_address ILIKE $3 OR token_symbol ILIKE $3)",
		where)
	assert.Equal(t, []any{int64(7), "USDC", `%50\%\_off%`}, args)

	where, args = buildTransactionWhere(&TransactionFilters{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func seedWallet(t *testing.T, db *PostgresDB, address string) *models.Wallet {
	t.Helper()
	w, _, err := NewWalletRepository(db).Upsert(testContext(t), &models.Wallet{
		Address: address,
		Network: types.NetworkEthereum,
	}, "")
	require.NoError(t, err)
	return w
}

func record(walletID int64, hash, ts string, class types.Classification, amount float64) *models.Transaction {
	return &models.Transaction{
		Hash:           hash,
		BlockNumber:    "1",
		TimeStamp:      ts,
		From:           "0xaaaa000000000000000000000000000000000001",
		To:             "0xbbbb000000000000000000000000000000000002",
		Value:          "1",
		Amount:         amount,
		TokenSymbol:    "USDC",
		TokenName:      "USD Coin",
		TokenDecimal:   6,
		Classification: class,
		WalletID:       walletID,
	}
}

func TestTransactionRepository_InsertBatchSkipsKnownHashes(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)
	repo := NewTransactionRepository(db)
	w := seedWallet(t, db, "0x1111111111111111111111111111111111111111")

	batch := []*models.Transaction{
		record(w.ID, "0xa1", "100", types.ClassificationTo, 1),
		record(w.ID, "0xa2", "200", types.ClassificationFrom, 1),
	}

	n, err := repo.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	known, err := repo.ExistingHashes(ctx, []string{"0xa1", "0xzz"})
	require.NoError(t, err)
	assert.Contains(t, known, "0xa1")
	assert.NotContains(t, known, "0xzz")
}

func TestTransactionRepository_SortIsNumeric(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)
	repo := NewTransactionRepository(db)
	w := seedWallet(t, db, "0x2222222222222222222222222222222222222222")

	_, err := repo.InsertBatch(ctx, []*models.Transaction{
		record(w.ID, "0xt100", "100", types.ClassificationTo, 1),
		record(w.ID, "0xt50", "50", types.ClassificationTo, 1),
		record(w.ID, "0xt75", "75", types.ClassificationTo, 1),
	})
	require.NoError(t, err)

	txs, err := repo.List(ctx, &TransactionFilters{SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"50", "75", "100"}, []string{txs[0].TimeStamp, txs[1].TimeStamp, txs[2].TimeStamp})

	txs, err = repo.List(ctx, &TransactionFilters{})
	require.NoError(t, err)
	assert.Equal(t, "100", txs[0].TimeStamp)
}

func TestTransactionRepository_SearchAndPaginate(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)
	repo := NewTransactionRepository(db)
	w := seedWallet(t, db, "0x3333333333333333333333333333333333333333")

	var batch []*models.Transaction
	for i := 0; i < 7; i++ {
		batch = append(batch, record(w.ID, fmt.Sprintf("0xdead%02d", i), fmt.Sprint(1000+i), types.ClassificationTo, 1))
	}
	batch = append(batch, record(w.ID, "0xABC123", "5000", types.ClassificationFrom, 1))
	_, err := repo.InsertBatch(ctx, batch)
	require.NoError(t, err)

	found, err := repo.List(ctx, &TransactionFilters{Search: "abc1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "0xABC123", found[0].Hash)

	filters := TransactionFilters{Search: "dead", SortOrder: "asc"}
	total, err := repo.Count(ctx, &filters)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)

	var seen []string
	for offset := 0; ; offset += 3 {
		page := filters
		page.Offset, page.Limit = offset, 3
		txs, err := repo.List(ctx, &page)
		require.NoError(t, err)
		if len(txs) == 0 {
			break
		}
		for _, tx := range txs {
			seen = append(seen, tx.Hash)
		}
	}
	assert.Equal(t, []string{"0xdead00", "0xdead01", "0xdead02", "0xdead03", "0xdead04", "0xdead05", "0xdead06"}, seen)
}

func TestTransactionRepository_SumSigned(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)
	repo := NewTransactionRepository(db)
	w := seedWallet(t, db, "0x4444444444444444444444444444444444444444")

	native := record(w.ID, "0xn1", "150", types.ClassificationTo, 10)
	native.TokenSymbol = "ETH"
	token := record(w.ID, "0xk1", "250", types.ClassificationFrom, 4)
	contract := "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	token.ContractAddress = &contract
	_, err := repo.InsertBatch(ctx, []*models.Transaction{native, token})
	require.NoError(t, err)

	sum, n, err := repo.SumSigned(ctx, AggregateFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, sum, 1e-9)
	assert.Equal(t, int64(2), n)

	sum, _, err = repo.SumSigned(ctx, AggregateFilter{ExcludeNative: true})
	require.NoError(t, err)
	assert.InDelta(t, -4.0, sum, 1e-9)

	from, to := int64(100), int64(200)
	sum, n, err = repo.SumSigned(ctx, AggregateFilter{FromUnix: &from, ToUnix: &to})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, sum, 1e-9)
	assert.Equal(t, int64(1), n)
}

func TestWalletRepository_UpsertKeepsNameUnlessSupplied(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)
	repo := NewWalletRepository(db)

	name := "Treasury"
	first, created, err := repo.Upsert(ctx, &models.Wallet{Address: "0x5555555555555555555555555555555555555555", Network: types.NetworkBase, Name: &name}, "")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.Upsert(ctx, &models.Wallet{Address: "0x5555555555555555555555555555555555555555", Network: types.NetworkBase}, "Wallet 0x5555...5555")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Name)
	assert.Equal(t, "Treasury", *second.Name)

	_, err = repo.Create(ctx, &models.Wallet{Address: "0x5555555555555555555555555555555555555555", Network: types.NetworkBase})
	require.Error(t, err)
	var catErr *apperrors.CategorizedError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, apperrors.CategoryConflict, catErr.Category)
}

func TestWalletRepository_UpsertAppliesDefaultNameOnCreate(t *testing.T) {
	db := openTestDB(t)
	w, _, err := NewWalletRepository(db).Upsert(testContext(t), &models.Wallet{
		Address: "0x6666666666666666666666666666666666666666",
		Network: types.NetworkEthereum,
	}, "Wallet 0x6666...6666")
	require.NoError(t, err)
	require.NotNil(t, w.Name)
	assert.Equal(t, "Wallet 0x6666...6666", *w.Name)
}

func TestWalletRepository_DeleteCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := testContext(t)
	w := seedWallet(t, db, "0x6666666666666666666666666666666666666666")
	txRepo := NewTransactionRepository(db)

	_, err := txRepo.InsertBatch(ctx, []*models.Transaction{record(w.ID, "0xc1", "1", types.ClassificationTo, 1)})
	require.NoError(t, err)

	ok, err := NewWalletRepository(db).Delete(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := txRepo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
