package ledger

import (
	"context"
	"sync"
)

// Memory is a thread-safe in-memory ledger keyed by account and asset.
// It applies legs one at a time and does not implement Atomic, so
// settlement against it relies on compensation.
type Memory struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // account → asset → balance
}

// NewMemory creates an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]map[string]int64),
	}
}

// Apply moves one balance. Debits below zero fail with
// domain.ErrInsufficientFunds.
func (m *Memory) Apply(ctx context.Context, leg Leg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := next(leg, m.balances[leg.Account][leg.Asset])
	if err != nil {
		return err
	}
	assets := m.balances[leg.Account]
	if assets == nil {
		assets = make(map[string]int64)
		m.balances[leg.Account] = assets
	}
	assets[leg.Asset] = n
	return nil
}

// Deposit credits amount of asset to account.
func (m *Memory) Deposit(ctx context.Context, account, asset string, amount int64) error {
	leg, err := depositLeg(account, asset, amount)
	if err != nil {
		return err
	}
	return m.Apply(ctx, leg)
}

// Balance returns the balance of one asset, zero when never touched.
func (m *Memory) Balance(account, asset string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account][asset]
}

// Balances returns a copy of every asset balance the account holds.
func (m *Memory) Balances(_ context.Context, account string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.balances[account]))
	for asset, v := range m.balances[account] {
		out[asset] = v
	}
	return out, nil
}
