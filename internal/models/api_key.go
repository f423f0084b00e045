package models

import (
	"time"

	"github.com/ledger-dashboard/internal/types"
)

// APIKey is an explorer credential scoped to one network
type APIKey struct {
	ID        int64         `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Network   types.Network `json:"network" db:"network"`
	Key       string        `json:"apiKey" db:"api_key"`
	IsActive  bool          `json:"isActive" db:"is_active"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
}

// Masked returns a copy safe to return from listings: first 8 and last 4 characters of the key.
func (k APIKey) Masked() APIKey {
	if len(k.Key) > 12 {
		k.Key = k.Key[:8] + "..." + k.Key[len(k.Key)-4:]
	} else if k.Key != "" {
		k.Key = "..."
	}
	return k
}
