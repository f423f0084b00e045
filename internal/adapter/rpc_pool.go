package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ledger-dashboard/internal/logging"
)

// RPCPool manages multiple RPC endpoints of one network with failover on rate limiting.
// It sticks to the current endpoint until it is rate limited, then moves to the next.
type RPCPool struct {
	endpoints    []string
	dial         func(ctx context.Context, url string) (BalanceReader, error)
	clients      []BalanceReader
	currentIndex int
	cooldowns    map[int]time.Time
	cooldownTime time.Duration
	mu           sync.Mutex
}

// BalanceReader reads an account's native balance.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// NewRPCPoolFromURLs creates a pool from comma-separated URLs. Endpoints are dialed lazily.
func NewRPCPoolFromURLs(urls string) (*RPCPool, error) {
	var endpoints []string
	for _, ep := range strings.Split(urls, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	return &RPCPool{
		endpoints:    endpoints,
		dial:         dialEthClient,
		clients:      make([]BalanceReader, len(endpoints)),
		cooldowns:    make(map[int]time.Time),
		cooldownTime: 60 * time.Second,
	}, nil
}

func dialEthClient(ctx context.Context, url string) (BalanceReader, error) {
	return ethclient.DialContext(ctx, url)
}

// BalanceAt reads from the current endpoint, failing over once per endpoint on rate limiting.
func (p *RPCPool) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var lastErr error
	for i := 0; i < len(p.endpoints); i++ {
		client, err := p.current(ctx)
		if err != nil {
			return nil, err
		}
		bal, err := client.BalanceAt(ctx, account, blockNumber)
		if err == nil {
			return bal, nil
		}
		lastErr = err
		if !IsRateLimitError(err) {
			return nil, err
		}
		if err := p.onRateLimited(); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *RPCPool) current(ctx context.Context) (BalanceReader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.currentIndex
	if p.clients[idx] == nil {
		client, err := p.dial(ctx, p.endpoints[idx])
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RPC endpoint %d: %w", idx, err)
		}
		p.clients[idx] = client
	}
	return p.clients[idx], nil
}

// onRateLimited puts the current endpoint in cooldown and switches to the next available one.
func (p *RPCPool) onRateLimited() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cooldowns[p.currentIndex] = time.Now()
	for i := 1; i <= len(p.endpoints); i++ {
		next := (p.currentIndex + i) % len(p.endpoints)
		if at, ok := p.cooldowns[next]; ok {
			if time.Since(at) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, next)
		}
		logging.WithFields(map[string]interface{}{
			"from": p.currentIndex,
			"to":   next,
		}).Warn("RPC endpoint rate limited, switching")
		p.currentIndex = next
		return nil
	}
	return fmt.Errorf("all %d RPC endpoints are rate limited", len(p.endpoints))
}

// IsRateLimitError checks if an error indicates rate limiting (429)
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "throttl")
}

// Close closes all dialed clients.
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.clients {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
		p.clients[i] = nil
	}
}
