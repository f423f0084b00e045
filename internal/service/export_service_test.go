package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/types"
)

func TestExportService_WriteTransactionsCSV(t *testing.T) {
	repo := &mockTransactionRepo{transactions: []*models.Transaction{
		tx(1, "0xold", "1700000000", "USDC", types.ClassificationTo, 1.5),
		tx(2, "0xnew", "1700003600", "ETH", types.ClassificationFrom, 0.25),
	}}
	repo.transactions[1].WalletID = 2

	var buf bytes.Buffer
	require.NoError(t, NewExportService(repo).WriteTransactionsCSV(context.Background(), &buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Time", "Token", "Type", "From", "To", "Amount", "Hash"}, records[0])
	assert.Equal(t, []string{
		"2023-11-14T23:13:20.000Z", "ETH", "FROM",
		"0xaaaa000000000000000000000000000000000001",
		"0xbbbb000000000000000000000000000000000002",
		"0.25", "0xnew",
	}, records[1])
	assert.Equal(t, "2023-11-14T22:13:20.000Z", records[2][0])
	assert.Equal(t, "1.5", records[2][5])
}

func TestExportService_WalletSubset(t *testing.T) {
	repo := &mockTransactionRepo{transactions: []*models.Transaction{
		tx(1, "0xa", "1", "USDC", types.ClassificationTo, 1),
		tx(2, "0xb", "2", "USDC", types.ClassificationTo, 1),
	}}
	repo.transactions[1].WalletID = 2
	wallet := int64(2)

	var buf bytes.Buffer
	require.NoError(t, NewExportService(repo).WriteTransactionsCSV(context.Background(), &buf, &wallet))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "0xb", records[1][6])
}

func TestExportRow_UnparseableTimestamp(t *testing.T) {
	row := exportRow(&models.Transaction{TimeStamp: "soon", Hash: "0x1", Classification: types.ClassificationTo})
	assert.Equal(t, "", row[0])
	assert.Equal(t, "TO", row[2])
}
