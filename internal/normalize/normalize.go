// Package normalize converts raw explorer transfer rows into canonical transaction records.
// Every function here is pure.
package normalize

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/types"
)

// DefaultDecimals is used when a token row carries no usable decimal count.
const DefaultDecimals = 18

// NativeTransfer is a chain-native transfer row.
type NativeTransfer struct {
	BlockNumber     string
	TimeStamp       string
	Hash            string
	From            string
	To              string
	Value           string
	GasUsed         string
	GasPrice        string
	IsError         string
	TxReceiptStatus string
}

// TokenTransfer is a token transfer row.
type TokenTransfer struct {
	BlockNumber     string
	TimeStamp       string
	Hash            string
	From            string
	To              string
	Value           string
	ContractAddress string
	TokenName       string
	TokenSymbol     string
	TokenDecimal    string
	GasUsed         string
	GasPrice        string
}

// Reason explains why a row produced no record.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonFailed       Reason = "failed transaction"
	ReasonMissingHash  Reason = "missing hash"
	ReasonMissingTime  Reason = "missing timestamp"
	ReasonMissingValue Reason = "missing value"
	ReasonInvalidTime  Reason = "timestamp is not an integer"
	ReasonInvalidValue Reason = "value is not a non-negative integer"
)

// IsParseError reports whether the row was dropped for being malformed rather than filtered by rule.
func (r Reason) IsParseError() bool {
	return r != ReasonNone && r != ReasonFailed
}

// Classify returns TO when recipient equals tracked (ignoring case), else FROM.
func Classify(tracked, recipient string) types.Classification {
	if strings.EqualFold(strings.TrimSpace(recipient), strings.TrimSpace(tracked)) {
		return types.ClassificationTo
	}
	return types.ClassificationFrom
}

// ParseDecimals parses a decimal count, substituting DefaultDecimals when absent or non-numeric.
func ParseDecimals(s string) int {
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || d < 0 || d > 255 {
		return DefaultDecimals
	}
	return d
}

// Scale computes value / 10^decimals as a float64.
func Scale(value string, decimals int) (float64, bool) {
	v, ok := new(big.Float).SetPrec(256).SetString(value)
	if !ok {
		return 0, false
	}
	f, _ := v.Float64()
	return f / math.Pow10(decimals), true
}

// isFailed reports whether the native row's markers indicate a reverted transaction.
func (n NativeTransfer) isFailed() bool {
	return strings.TrimSpace(n.IsError) == "1" || strings.TrimSpace(n.TxReceiptStatus) == "0"
}

func checkCommon(hash, ts, value string) Reason {
	switch {
	case strings.TrimSpace(hash) == "":
		return ReasonMissingHash
	case strings.TrimSpace(ts) == "":
		return ReasonMissingTime
	case strings.TrimSpace(value) == "":
		return ReasonMissingValue
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64); err != nil {
		return ReasonInvalidTime
	}
	if !isUnsignedInteger(strings.TrimSpace(value)) {
		return ReasonInvalidValue
	}
	return ReasonNone
}

func isUnsignedInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Native converts a native transfer. It returns nil and the reason when the row is dropped.
func Native(tracked string, network types.Network, walletID int64, n NativeTransfer) (*models.Transaction, Reason) {
	if n.isFailed() {
		return nil, ReasonFailed
	}
	if r := checkCommon(n.Hash, n.TimeStamp, n.Value); r != ReasonNone {
		return nil, r
	}

	asset := types.NativeAsset(network)
	value := strings.TrimSpace(n.Value)
	amount, _ := Scale(value, asset.Decimals)

	return &models.Transaction{
		Hash:           strings.TrimSpace(n.Hash),
		BlockNumber:    strings.TrimSpace(n.BlockNumber),
		TimeStamp:      strings.TrimSpace(n.TimeStamp),
		From:           strings.TrimSpace(n.From),
		To:             strings.TrimSpace(n.To),
		Value:          value,
		Amount:         amount,
		TokenSymbol:    asset.Symbol,
		TokenName:      asset.Name,
		TokenDecimal:   asset.Decimals,
		GasUsed:        optional(n.GasUsed),
		GasPrice:       optional(n.GasPrice),
		Classification: Classify(tracked, n.To),
		WalletID:       walletID,
	}, ReasonNone
}

// Token converts a token transfer. It returns nil and the reason when the row is dropped.
func Token(tracked string, walletID int64, t TokenTransfer) (*models.Transaction, Reason) {
	if r := checkCommon(t.Hash, t.TimeStamp, t.Value); r != ReasonNone {
		return nil, r
	}

	decimals := ParseDecimals(t.TokenDecimal)
	value := strings.TrimSpace(t.Value)
	amount, _ := Scale(value, decimals)

	return &models.Transaction{
		Hash:            strings.TrimSpace(t.Hash),
		BlockNumber:     strings.TrimSpace(t.BlockNumber),
		TimeStamp:       strings.TrimSpace(t.TimeStamp),
		From:            strings.TrimSpace(t.From),
		To:              strings.TrimSpace(t.To),
		Value:           value,
		Amount:          amount,
		TokenSymbol:     strings.TrimSpace(t.TokenSymbol),
		TokenName:       strings.TrimSpace(t.TokenName),
		TokenDecimal:    decimals,
		ContractAddress: optional(t.ContractAddress),
		GasUsed:         optional(t.GasUsed),
		GasPrice:        optional(t.GasPrice),
		Classification:  Classify(tracked, t.To),
		WalletID:        walletID,
	}, ReasonNone
}
