package normalize

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ledger-dashboard/internal/artifact"
	"github.com/ledger-dashboard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tracked = "0x1111111111111111111111111111111111111111"
const other = "0x2222222222222222222222222222222222222222"

func TestNative(t *testing.T) {
	tests := []struct {
		name   string
		in     NativeTransfer
		reason Reason
	}{
		{"success", NativeTransfer{Hash: "0xa", TimeStamp: "100", Value: "1000000000000000000", From: other, To: tracked, IsError: "0", TxReceiptStatus: "1"}, ReasonNone},
		{"isError", NativeTransfer{Hash: "0xa", TimeStamp: "100", Value: "1", IsError: "1"}, ReasonFailed},
		{"reverted receipt", NativeTransfer{Hash: "0xa", TimeStamp: "100", Value: "1", TxReceiptStatus: "0"}, ReasonFailed},
		{"no hash", NativeTransfer{TimeStamp: "100", Value: "1"}, ReasonMissingHash},
		{"no timestamp", NativeTransfer{Hash: "0xa", Value: "1"}, ReasonMissingTime},
		{"no value", NativeTransfer{Hash: "0xa", TimeStamp: "100"}, ReasonMissingValue},
		{"bad timestamp", NativeTransfer{Hash: "0xa", TimeStamp: "2024-01-01", Value: "1"}, ReasonInvalidTime},
		{"bad value", NativeTransfer{Hash: "0xa", TimeStamp: "100", Value: "1.5e18"}, ReasonInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reason := Native(tracked, types.NetworkEthereum, 9, tt.in)
			assert.Equal(t, tt.reason, reason)
			if tt.reason != ReasonNone {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, 1.0, rec.Amount)
			assert.Equal(t, "ETH", rec.TokenSymbol)
			assert.Equal(t, "Ethereum", rec.TokenName)
			assert.Equal(t, 18, rec.TokenDecimal)
			assert.Nil(t, rec.ContractAddress)
			assert.Equal(t, types.ClassificationTo, rec.Classification)
			assert.Equal(t, int64(9), rec.WalletID)
		})
	}
	assert.False(t, ReasonFailed.IsParseError())
	assert.True(t, ReasonMissingHash.IsParseError())
}

func TestToken(t *testing.T) {
	rec, reason := Token(tracked, 3, TokenTransfer{
		Hash:            "0xb",
		TimeStamp:       "1700000000",
		From:            tracked,
		To:              other,
		Value:           "2500000",
		ContractAddress: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenName:       "USD Coin",
		TokenSymbol:     "USDC",
		TokenDecimal:    "6",
	})
	require.Equal(t, ReasonNone, reason)
	assert.Equal(t, 2.5, rec.Amount)
	assert.Equal(t, 6, rec.TokenDecimal)
	assert.Equal(t, types.ClassificationFrom, rec.Classification)
	require.NotNil(t, rec.ContractAddress)
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", *rec.ContractAddress)
}

func TestParseDecimals(t *testing.T) {
	assert.Equal(t, 6, ParseDecimals("6"))
	assert.Equal(t, 0, ParseDecimals("0"))
	assert.Equal(t, DefaultDecimals, ParseDecimals(""))
	assert.Equal(t, DefaultDecimals, ParseDecimals("six"))
	assert.Equal(t, DefaultDecimals, ParseDecimals("-2"))
}

func TestTokenFromRowFallsBackToArtifactSymbol(t *testing.T) {
	row := artifact.NewRow(2, map[string]string{"hash": "0xc", "tokenSymbol": "", "tokenDecimal": "6"})
	tt := TokenFromRow(row, "USDT")
	assert.Equal(t, "USDT", tt.TokenSymbol)
	assert.Equal(t, "USDT", tt.TokenName)
	assert.Equal(t, "6", tt.TokenDecimal)
}

func TestAmountScalingProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("amount is value / 10^decimals", prop.ForAll(
		func(value uint64, decimals int) bool {
			rec, reason := Token(tracked, 1, TokenTransfer{
				Hash:         "0xp",
				TimeStamp:    "1",
				To:           tracked,
				Value:        strconv.FormatUint(value, 10),
				TokenDecimal: strconv.Itoa(decimals),
			})
			if reason != ReasonNone {
				return false
			}
			want := float64(value) / math.Pow10(decimals)
			if want == 0 {
				return rec.Amount == 0
			}
			return math.Abs(rec.Amount-want)/math.Abs(want) <= 1e-9
		},
		gen.UInt64(),
		gen.IntRange(0, 30),
	))

	properties.Property("non-numeric decimals default to 18", prop.ForAll(
		func(value uint64, junk string) bool {
			rec, _ := Token(tracked, 1, TokenTransfer{
				Hash:         "0xp",
				TimeStamp:    "1",
				Value:        strconv.FormatUint(value, 10),
				TokenDecimal: "x" + junk,
			})
			want := float64(value) / 1e18
			return rec.TokenDecimal == DefaultDecimals && (want == 0 || math.Abs(rec.Amount-want)/want <= 1e-9)
		},
		gen.UInt64(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestClassificationProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	recase := func(s string, mode int) string {
		switch mode {
		case 0:
			return strings.ToLower(s)
		case 1:
			return strings.ToUpper(s)
		default:
			var sb strings.Builder
			for i, c := range s {
				if i%2 == 0 {
					sb.WriteString(strings.ToUpper(string(c)))
				} else {
					sb.WriteRune(c)
				}
			}
			return sb.String()
		}
	}

	properties.Property("TO iff recipient equals tracked ignoring case", prop.ForAll(
		func(digits string, mode int, toTracked bool) bool {
			addr := "0x" + digits
			recipient := other
			if toTracked {
				recipient = recase(addr, mode)
			}
			rec, _ := Token(recase(addr, (mode+1)%3), 1, TokenTransfer{
				Hash: "0xq", TimeStamp: "1", Value: "1", From: other, To: recipient,
			})
			want := types.ClassificationFrom
			if toTracked {
				want = types.ClassificationTo
			}
			return rec.Classification == want
		},
		gen.RegexMatch("[0-9a-f]{40}"),
		gen.IntRange(0, 2),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
