// Package artifact defines the files exchanged between the fetcher and the import orchestrator:
// one CSV per asset category, named by a fixed prefix and the tracked address.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind identifies the record variant held by an artifact
type Kind string

const (
	KindNative Kind = "native"
	KindToken  Kind = "token"
)

const (
	nativePrefix = "native_transfers_"
	tokenPrefix  = "token_transfers_"
	extension    = ".csv"
)

// NativeColumns is the column order written for native-asset transfers.
var NativeColumns = []string{
	"blockNumber", "timeStamp", "hash", "nonce", "blockHash", "transactionIndex",
	"from", "to", "value", "gas", "gasPrice", "isError", "txreceipt_status",
	"input", "contractAddress", "cumulativeGasUsed", "gasUsed", "confirmations",
}

// TokenColumns is the column order written for token transfers.
var TokenColumns = []string{
	"blockNumber", "timeStamp", "hash", "nonce", "blockHash", "from", "contractAddress",
	"to", "value", "tokenName", "tokenSymbol", "tokenDecimal", "transactionIndex",
	"gas", "gasPrice", "gasUsed", "cumulativeGasUsed", "input", "confirmations",
}

// requiredColumns must be present in an artifact header for its rows to be readable.
var requiredColumns = map[Kind][]string{
	KindNative: {"blockNumber", "timeStamp", "hash", "from", "to", "value"},
	KindToken:  {"blockNumber", "timeStamp", "hash", "from", "to", "value", "contractAddress"},
}

// Columns returns the written column order for a kind.
func Columns(k Kind) []string {
	if k == KindNative {
		return NativeColumns
	}
	return TokenColumns
}

// Artifact is one discovered file
type Artifact struct {
	Path   string
	Kind   Kind
	Symbol string // token symbol; empty for native
}

// Name returns the file name of an artifact. The suffix is the lowercase address without 0x.
func Name(kind Kind, symbol, address string) string {
	suffix := addressSuffix(address)
	if kind == KindNative {
		return nativePrefix + suffix + extension
	}
	return tokenPrefix + strings.ToUpper(symbol) + "_" + suffix + extension
}

func addressSuffix(address string) string {
	a := strings.ToLower(address)
	return strings.TrimPrefix(a, "0x")
}

// Parse recognizes an artifact file name for address. ok is false for unrelated files.
func Parse(name, address string) (kind Kind, symbol string, ok bool) {
	tail := "_" + addressSuffix(address) + extension
	switch {
	case name == nativePrefix+addressSuffix(address)+extension:
		return KindNative, "", true
	case strings.HasPrefix(name, tokenPrefix) && strings.HasSuffix(name, tail):
		symbol = strings.TrimSuffix(strings.TrimPrefix(name, tokenPrefix), tail)
		if symbol == "" {
			return "", "", false
		}
		return KindToken, symbol, true
	default:
		return "", "", false
	}
}

// Discover lists the artifacts written for address in dir, native first then tokens by symbol.
func Discover(dir, address string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var found []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind, symbol, ok := Parse(e.Name(), address)
		if !ok {
			continue
		}
		found = append(found, Artifact{Path: filepath.Join(dir, e.Name()), Kind: kind, Symbol: symbol})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Kind != found[j].Kind {
			return found[i].Kind == KindNative
		}
		return found[i].Symbol < found[j].Symbol
	})
	return found, nil
}

// ArchivePrefix is the object prefix one import's artifacts are archived under.
func ArchivePrefix(network, importID string) string {
	return network + "/" + importID
}

// Paths returns the file paths of artifacts.
func Paths(arts []Artifact) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.Path
	}
	return out
}
