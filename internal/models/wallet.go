package models

import (
	"time"

	"github.com/ledger-dashboard/internal/types"
)

// Wallet is a tracked address on one network (unique on address + network)
type Wallet struct {
	ID         int64         `json:"id" db:"id"`
	Address    string        `json:"address" db:"address"`
	Network    types.Network `json:"network" db:"network"`
	Name       *string       `json:"name,omitempty" db:"name"`
	StartBlock *string       `json:"startBlock,omitempty" db:"start_block"`
	EndBlock   *string       `json:"endBlock,omitempty" db:"end_block"`
	IsActive   bool          `json:"isActive" db:"is_active"`
	CreatedAt  time.Time     `json:"createdAt" db:"created_at"`
}

// DefaultWalletName is the display name given to a wallet created without one, e.g. "Wallet 0x1234...abcd".
func DefaultWalletName(address string) string {
	if len(address) <= 10 {
		return "Wallet " + address
	}
	return "Wallet " + address[:6] + "..." + address[len(address)-4:]
}
