package models

import (
	"strconv"
	"time"

	"github.com/ledger-dashboard/internal/types"
)

// Transaction is a canonical transfer record. Rows are immutable once stored and hash is unique.
type Transaction struct {
	ID              int64                `json:"id" db:"id"`
	Hash            string               `json:"hash" db:"hash"`
	BlockNumber     string               `json:"blockNumber" db:"block_number"`
	TimeStamp       string               `json:"timeStamp" db:"time_stamp"` // unix seconds, integer-valued
	From            string               `json:"from" db:"from_address"`
	To              string               `json:"to" db:"to_address"`
	Value           string               `json:"value" db:"value"` // smallest unit
	Amount          float64              `json:"amount" db:"amount"`
	TokenSymbol     string               `json:"tokenSymbol" db:"token_symbol"`
	TokenName       string               `json:"tokenName" db:"token_name"`
	TokenDecimal    int                  `json:"tokenDecimal" db:"token_decimal"`
	ContractAddress *string              `json:"contractAddress,omitempty" db:"contract_address"`
	GasUsed         *string              `json:"gasUsed,omitempty" db:"gas_used"`
	GasPrice        *string              `json:"gasPrice,omitempty" db:"gas_price"`
	Classification  types.Classification `json:"transactionType" db:"transaction_type"`
	WalletID        int64                `json:"walletId" db:"wallet_id"`
	CreatedAt       time.Time            `json:"createdAt" db:"created_at"`
}

// Unix returns the record timestamp as seconds; ok is false when it is not an integer.
func (t *Transaction) Unix() (int64, bool) {
	sec, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	return sec, err == nil
}

// Time returns the record timestamp in UTC, or the zero time when unparseable.
func (t *Transaction) Time() time.Time {
	sec, ok := t.Unix()
	if !ok {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// SignedAmount is +amount for incoming and -amount for outgoing records.
func (t *Transaction) SignedAmount() float64 {
	if t.Classification == types.ClassificationTo {
		return t.Amount
	}
	return -t.Amount
}
