package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tracked = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

func TestNameAndParse(t *testing.T) {
	native := Name(KindNative, "", tracked)
	assert.Equal(t, "native_transfers_abcdef0123456789abcdef0123456789abcdef01.csv", native)

	token := Name(KindToken, "usdc", tracked)
	assert.Equal(t, "token_transfers_USDC_abcdef0123456789abcdef0123456789abcdef01.csv", token)

	kind, sym, ok := Parse(token, strings.ToLower(tracked))
	require.True(t, ok)
	assert.Equal(t, KindToken, kind)
	assert.Equal(t, "USDC", sym)

	kind, _, ok = Parse(native, tracked)
	require.True(t, ok)
	assert.Equal(t, KindNative, kind)

	_, _, ok = Parse("token_transfers_USDC_ffff.csv", tracked)
	assert.False(t, ok)
	_, _, ok = Parse("token_transfers__abcdef0123456789abcdef0123456789abcdef01.csv", tracked)
	assert.False(t, ok)
}

func TestWriteDiscoverRead(t *testing.T) {
	dir := t.TempDir()

	for _, sym := range []string{"USDT", "USDC"} {
		w, err := Create(dir, KindToken, sym, tracked)
		require.NoError(t, err)
		require.NoError(t, w.Write(map[string]string{"hash": "0x" + sym, "timeStamp": "1", "value": "5", "contractAddress": "0xc"}))
		require.NoError(t, w.Close())
	}
	w, err := Create(dir, KindNative, "", tracked)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	arts, err := Discover(dir, tracked)
	require.NoError(t, err)
	require.Len(t, arts, 3)
	assert.Equal(t, KindNative, arts[0].Kind)
	assert.Equal(t, "USDC", arts[1].Symbol)
	assert.Equal(t, "USDT", arts[2].Symbol)

	res, err := Read(arts[1])
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "0xUSDC", res.Rows[0].Get("hash"))
	assert.Equal(t, 2, res.Rows[0].Line)
	assert.True(t, res.Rows[0].Has("tokenDecimal"))
	assert.Equal(t, "", res.Rows[0].Get("tokenDecimal"))

	empty, err := Read(arts[0])
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)
}

func TestReadResolvesColumnsByName(t *testing.T) {
	data := "value,hash,to,from,timeStamp,blockNumber,contractAddress\n" +
		"42,0xh1,0xto,0xfrom,1700000000,10,0xc\n" +
		"short,row\n" +
		"7,0xh2,0xto,0xfrom,1700000001,11,0xc\n"

	res, err := ReadFrom(strings.NewReader(data), Artifact{Path: "mem", Kind: KindToken})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "42", res.Rows[0].Get("value"))
	assert.Equal(t, "0xh2", res.Rows[1].Get("hash"))
	assert.Equal(t, []int{3}, res.Malformed)
}

func TestReadRejectsMissingRequiredColumn(t *testing.T) {
	data := "blockNumber,timeStamp,hash,from,to\n1,2,0xh,0xa,0xb\n"

	_, err := ReadFrom(strings.NewReader(data), Artifact{Path: "native.csv", Kind: KindNative})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "value", schemaErr.Column)
}
