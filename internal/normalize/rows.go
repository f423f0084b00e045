package normalize

import (
	"strings"

	"github.com/ledger-dashboard/internal/artifact"
)

// NativeFromRow maps a native artifact row onto its named fields.
func NativeFromRow(r artifact.Row) NativeTransfer {
	return NativeTransfer{
		BlockNumber:     r.Get("blockNumber"),
		TimeStamp:       r.Get("timeStamp"),
		Hash:            r.Get("hash"),
		From:            r.Get("from"),
		To:              r.Get("to"),
		Value:           r.Get("value"),
		GasUsed:         r.Get("gasUsed"),
		GasPrice:        r.Get("gasPrice"),
		IsError:         r.Get("isError"),
		TxReceiptStatus: r.Get("txreceipt_status"),
	}
}

// TokenFromRow maps a token artifact row onto its named fields.
// fallbackSymbol (from the artifact name) is used when the row has no symbol.
func TokenFromRow(r artifact.Row, fallbackSymbol string) TokenTransfer {
	t := TokenTransfer{
		BlockNumber:     r.Get("blockNumber"),
		TimeStamp:       r.Get("timeStamp"),
		Hash:            r.Get("hash"),
		From:            r.Get("from"),
		To:              r.Get("to"),
		Value:           r.Get("value"),
		ContractAddress: r.Get("contractAddress"),
		TokenName:       r.Get("tokenName"),
		TokenSymbol:     r.Get("tokenSymbol"),
		TokenDecimal:    r.Get("tokenDecimal"),
		GasUsed:         r.Get("gasUsed"),
		GasPrice:        r.Get("gasPrice"),
	}
	if strings.TrimSpace(t.TokenSymbol) == "" {
		t.TokenSymbol = fallbackSymbol
	}
	if strings.TrimSpace(t.TokenName) == "" {
		t.TokenName = t.TokenSymbol
	}
	return t
}
