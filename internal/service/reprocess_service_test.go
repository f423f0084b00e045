package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-dashboard/internal/artifact"
	apperrors "github.com/ledger-dashboard/internal/errors"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/storage"
	"github.com/ledger-dashboard/internal/types"
)

const reprocessAddr = "0xAAAA000000000000000000000000000000000001"

// memArchive serves objects from memory in insertion order.
type memArchive struct {
	objects []storage.ArchivedArtifact
	data    map[string][]byte
}

func (a *memArchive) put(name string, at time.Time, data []byte) {
	if a.data == nil {
		a.data = make(map[string][]byte)
	}
	a.objects = append(a.objects, storage.ArchivedArtifact{Name: name, Size: int64(len(data)), LastModified: at})
	a.data[name] = data
}

func (a *memArchive) List(context.Context) ([]storage.ArchivedArtifact, error) {
	return append([]storage.ArchivedArtifact(nil), a.objects...), nil
}

func (a *memArchive) Open(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := a.data[name]
	if !ok {
		return nil, storage.ErrArtifactNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// hashLedger stores records keyed by hash.
type hashLedger struct {
	rows map[string]*models.Transaction
}

func (l *hashLedger) ExistingHashes(_ context.Context, hashes []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, h := range hashes {
		if _, ok := l.rows[h]; ok {
			out[h] = struct{}{}
		}
	}
	return out, nil
}

func (l *hashLedger) InsertBatch(_ context.Context, txs []*models.Transaction) (int, error) {
	n := 0
	for _, tx := range txs {
		if _, ok := l.rows[tx.Hash]; !ok {
			l.rows[tx.Hash] = tx
			n++
		}
	}
	return n, nil
}

func tokenCSV(t *testing.T, hashes ...string) []byte {
	t.Helper()
	dir := t.TempDir()
	w, err := artifact.Create(dir, artifact.KindToken, "USDC", reprocessAddr)
	require.NoError(t, err)
	for _, h := range hashes {
		require.NoError(t, w.Write(map[string]string{
			"blockNumber": "11", "timeStamp": "1700000100", "hash": h,
			"from": "0x2222222222222222222222222222222222222222", "to": reprocessAddr,
			"value": "2500000", "contractAddress": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			"tokenSymbol": "USDC", "tokenDecimal": "6",
		}))
	}
	require.NoError(t, w.Close())
	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	return data
}

func reprocessFixture(t *testing.T) (*ReprocessService, *memArchive, *hashLedger) {
	wallet := &models.Wallet{ID: 9, Address: "0xaaaa000000000000000000000000000000000001", Network: types.NetworkEthereum}
	archive := &memArchive{}
	ledger := &hashLedger{rows: map[string]*models.Transaction{}}
	workDir := t.TempDir()
	svc := NewReprocessService(&staticWallets{wallets: []*models.Wallet{wallet}}, ledger, archive, nil, workDir)
	return svc, archive, ledger
}

func TestReprocessService_ReconcilesArchivedArtifacts(t *testing.T) {
	svc, archive, ledger := reprocessFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	name := artifact.Name(artifact.KindToken, "USDC", reprocessAddr)

	archive.put("ethereum/imp-1/"+name, base, tokenCSV(t, "0xa", "0xb"))
	archive.put("ethereum/imp-2/"+name, base.Add(time.Hour), tokenCSV(t, "0xb", "0xc"))
	archive.put("base/imp-3/"+name, base, tokenCSV(t, "0xother-network"))
	archive.put("ethereum/imp-4/token_transfers_USDC_ffff.csv", base, tokenCSV(t, "0xother-wallet"))

	res, err := svc.Reprocess(context.Background(), 9, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ethereum/imp-1/" + name, "ethereum/imp-2/" + name}, res.Artifacts)
	assert.Equal(t, 3, res.Result.Inserted)
	assert.Equal(t, 1, res.Result.Duplicates)
	assert.Len(t, ledger.rows, 3)
	assert.Equal(t, int64(9), ledger.rows["0xc"].WalletID)
	assert.Equal(t, types.ClassificationTo, ledger.rows["0xc"].Classification)

	again, err := svc.Reprocess(context.Background(), 9, "imp-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"ethereum/imp-2/" + name}, again.Artifacts)
	assert.Zero(t, again.Result.Inserted, "reprocessing is idempotent")

	entries, err := os.ReadDir(svc.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "downloaded artifacts are removed")
}

func TestReprocessService_Errors(t *testing.T) {
	svc, archive, _ := reprocessFixture(t)
	ctx := context.Background()

	_, err := svc.Reprocess(ctx, 404, "")
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotFound))

	_, err = svc.Reprocess(ctx, 9, "")
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotFound), "nothing archived yet")

	archive.put("ethereum/imp-1/"+artifact.Name(artifact.KindNative, "", reprocessAddr), time.Now(), []byte("blockNumber\n"))
	_, err = svc.Reprocess(ctx, 9, "imp-9")
	assert.True(t, apperrors.Is(err, apperrors.CategoryNotFound))

	_, err = svc.Reprocess(ctx, 9, "../imp-1")
	assert.True(t, apperrors.Is(err, apperrors.CategoryValidation))

	noArchive := NewReprocessService(&staticWallets{}, &hashLedger{}, nil, nil, filepath.Join(t.TempDir(), "w"))
	_, err = noArchive.Reprocess(ctx, 9, "")
	require.Error(t, err)
	assert.Equal(t, 503, apperrors.Categorize(err).StatusCode)
}
