// Package types provides common type definitions for the ledger dashboard.
package types

import (
	"regexp"
	"strings"
)

// Network represents a supported blockchain network
type Network string

const (
	// NetworkEthereum represents the Ethereum mainnet
	NetworkEthereum Network = "ethereum"
	// NetworkBase represents the Base network
	NetworkBase Network = "base"
)

// SupportedNetworks lists every network an import can target.
var SupportedNetworks = []Network{NetworkEthereum, NetworkBase}

// IsValid reports whether n is a supported network.
func (n Network) IsValid() bool {
	for _, s := range SupportedNetworks {
		if n == s {
			return true
		}
	}
	return false
}

// Classification represents the direction of a transfer relative to the tracked wallet
type Classification string

const (
	// ClassificationTo means the tracked wallet is the recipient
	ClassificationTo Classification = "TO"
	// ClassificationFrom means the tracked wallet is the sender
	ClassificationFrom Classification = "FROM"
)

// ImportStatus represents the lifecycle state of an import job
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusFetching   ImportStatus = "fetching"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusError      ImportStatus = "error"
)

// IsTerminal reports whether no further transitions are possible.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusError
}

// Progress floors for each lifecycle stage.
const (
	ProgressPending    = 0
	ProgressFetching   = 10
	ProgressLaunched   = 30
	ProgressFetchCap   = 65
	ProgressProcessing = 70
	ProgressCompleted  = 100
)

// BlockLatest is the only non-numeric block bound accepted, and only as an end bound.
const BlockLatest = "latest"

// NativeDecimals is the precision of every supported chain's native asset.
const NativeDecimals = 18

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	blockPattern   = regexp.MustCompile(`^\d+$`)
)

// IsValidAddress reports whether address is a 0x-prefixed 20-byte hex address.
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// IsValidBlock reports whether b is a non-negative integer, or "latest" when allowLatest is set.
func IsValidBlock(b string, allowLatest bool) bool {
	if allowLatest && b == BlockLatest {
		return true
	}
	return blockPattern.MatchString(b)
}

// Asset describes an importable asset on one network.
type Asset struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Contract string `json:"contract,omitempty"` // empty for the native asset
	Decimals int    `json:"decimals"`
}

// IsNative reports whether the asset is the chain's native coin.
func (a Asset) IsNative() bool {
	return a.Contract == ""
}

// NativeAsset returns the chain-native asset for a network.
func NativeAsset(n Network) Asset {
	return Asset{Symbol: "ETH", Name: "Ethereum", Decimals: NativeDecimals}
}

var assetCatalogue = map[Network][]Asset{
	NetworkEthereum: {
		NativeAsset(NetworkEthereum),
		{Symbol: "USDC", Name: "USD Coin", Contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Contract: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
	},
	NetworkBase: {
		NativeAsset(NetworkBase),
		{Symbol: "USDC", Name: "USD Coin", Contract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "USDT", Name: "Tether USD", Contract: "0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2", Decimals: 6},
	},
}

// AssetsFor returns the known assets of a network.
func AssetsFor(n Network) []Asset {
	return append([]Asset(nil), assetCatalogue[n]...)
}

// LookupAsset finds a known asset by symbol (case-insensitive) on a network.
func LookupAsset(n Network, symbol string) (Asset, bool) {
	for _, a := range assetCatalogue[n] {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return Asset{}, false
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
