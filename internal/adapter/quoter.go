package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/ledger-dashboard/internal/circuitbreaker"
	"github.com/ledger-dashboard/internal/config"
	"github.com/ledger-dashboard/internal/logging"
	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/types"
)

// maxConcurrentBalanceReads bounds parallel RPC calls for one quote.
const maxConcurrentBalanceReads = 4

// NativeQuote is the on-chain native balance of a wallet set and its USD value.
type NativeQuote struct {
	Balance  float64 `json:"nativeBalance"`
	ValueUSD float64 `json:"nativeValueUsd"`
	PriceUSD float64 `json:"priceUsd"`
}

// NativeQuoter reads live native balances for tracked wallets and prices them at a fixed rate.
type NativeQuoter struct {
	readers  map[types.Network]BalanceReader
	breakers map[types.Network]*circuitbreaker.CircuitBreaker
	priceUSD float64
	balances *cache.Cache
}

// NewNativeQuoter creates a quoter over per-network balance readers.
func NewNativeQuoter(readers map[types.Network]BalanceReader, priceUSD float64, ttl time.Duration) *NativeQuoter {
	breakers := make(map[types.Network]*circuitbreaker.CircuitBreaker, len(readers))
	for n := range readers {
		breakers[n] = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("rpc-" + string(n)))
	}
	return &NativeQuoter{
		readers:  readers,
		breakers: breakers,
		priceUSD: priceUSD,
		balances: cache.New(ttl, 2*ttl),
	}
}

// NewNativeQuoterFromConfig builds RPC pools for every configured network. It returns nil when none is set.
func NewNativeQuoterFromConfig(cfg *config.QuoteConfig) (*NativeQuoter, error) {
	readers := make(map[types.Network]BalanceReader)
	for network, urls := range cfg.RPCURLs {
		n := types.Network(network)
		if !n.IsValid() || strings.TrimSpace(urls) == "" {
			continue
		}
		pool, err := NewRPCPoolFromURLs(urls)
		if err != nil {
			return nil, fmt.Errorf("failed to create RPC pool for %s: %w", network, err)
		}
		readers[n] = pool
	}
	if len(readers) == 0 {
		return nil, nil
	}
	return NewNativeQuoter(readers, cfg.NativePriceUSD, cfg.CacheTTL), nil
}

// Quote sums the native balance of every active wallet on a network with a reader.
func (q *NativeQuoter) Quote(ctx context.Context, wallets []*models.Wallet) (*NativeQuote, error) {
	var (
		mu    sync.Mutex
		total float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBalanceReads)
	for _, w := range wallets {
		if !w.IsActive {
			continue
		}
		if _, ok := q.readers[w.Network]; !ok {
			continue
		}
		g.Go(func() error {
			bal, err := q.balance(gctx, w.Network, w.Address)
			if err != nil {
				return fmt.Errorf("balance of %s on %s: %w", w.Address, w.Network, err)
			}
			mu.Lock()
			total += bal
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &NativeQuote{Balance: total, ValueUSD: total * q.priceUSD, PriceUSD: q.priceUSD}, nil
}

// balance returns the cached or freshly read native balance in whole coins.
func (q *NativeQuoter) balance(ctx context.Context, network types.Network, address string) (float64, error) {
	key := string(network) + ":" + strings.ToLower(address)
	if v, ok := q.balances.Get(key); ok {
		return v.(float64), nil
	}

	var wei *big.Int
	err := q.breakers[network].Execute(ctx, func() error {
		var err error
		wei, err = q.readers[network].BalanceAt(ctx, common.HexToAddress(address), nil)
		return err
	})
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("network", network).Warn("Native balance read failed")
		return 0, err
	}

	coins := weiToCoins(wei)
	q.balances.SetDefault(key, coins)
	return coins, nil
}

func weiToCoins(wei *big.Int) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(types.NativeDecimals), nil)))
	v, _ := f.Float64()
	return v
}

// Close releases RPC connections.
func (q *NativeQuoter) Close() {
	for _, r := range q.readers {
		if p, ok := r.(*RPCPool); ok {
			p.Close()
		}
	}
}
