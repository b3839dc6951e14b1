package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/clob/internal/domain"
)

func newTestPebble(t *testing.T) *Pebble {
	t.Helper()
	p, err := OpenPebble("ledger", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestMemory_ApplyAndBalances(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Deposit(ctx, "alice", "USDC", 1000))
	require.NoError(t, m.Apply(ctx, Leg{Asset: "USDC", Account: "alice", Delta: -400}))
	require.NoError(t, m.Apply(ctx, Leg{Asset: "USDC", Account: "bob", Delta: 400}))

	assert.Equal(t, int64(600), m.Balance("alice", "USDC"))
	assert.Equal(t, int64(400), m.Balance("bob", "USDC"))

	got, err := m.Balances(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USDC": 600}, got)
}

func TestMemory_InsufficientFundsLeavesBalance(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Deposit(ctx, "alice", "SOL", 5))

	err := m.Apply(ctx, Leg{Asset: "SOL", Account: "alice", Delta: -6})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(5), m.Balance("alice", "SOL"))
}

func TestMemory_CreditOverflow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Deposit(ctx, "alice", "SOL", domain.MaxAmount))

	err := m.Apply(ctx, Leg{Asset: "SOL", Account: "alice", Delta: 1})
	assert.ErrorIs(t, err, domain.ErrOverflow)
	assert.Equal(t, int64(domain.MaxAmount), m.Balance("alice", "SOL"))
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemory().Apply(ctx, Leg{Asset: "SOL", Account: "alice", Delta: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	for _, amount := range []int64{0, -1} {
		err := NewMemory().Deposit(ctx, "alice", "SOL", amount)
		var ve *domain.ValidationError
		assert.True(t, errors.As(err, &ve), "amount %d: got %v", amount, err)
	}
}

func TestLeg_Reverse(t *testing.T) {
	l := Leg{Asset: "SOL", Account: "alice", Delta: 7}
	assert.Equal(t, Leg{Asset: "SOL", Account: "alice", Delta: -7}, l.Reverse())
}

func TestPebble_ApplyAllAtomic(t *testing.T) {
	ctx := context.Background()
	p := newTestPebble(t)
	require.NoError(t, p.Deposit(ctx, "alice", "USDC", 1000))
	require.NoError(t, p.Deposit(ctx, "bob", "SOL", 10))

	legs := []Leg{
		{Asset: "USDC", Account: "alice", Delta: -400},
		{Asset: "USDC", Account: "bob", Delta: 400},
		{Asset: "SOL", Account: "bob", Delta: -4},
		{Asset: "SOL", Account: "alice", Delta: 4},
	}
	require.NoError(t, p.ApplyAll(ctx, "t1", legs))

	alice, err := p.Balances(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USDC": 600, "SOL": 4}, alice)

	bob, err := p.Balances(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USDC": 400, "SOL": 6}, bob)
}

func TestPebble_FailedLegRollsBackTransfer(t *testing.T) {
	ctx := context.Background()
	p := newTestPebble(t)
	require.NoError(t, p.Deposit(ctx, "alice", "USDC", 1000))

	// bob holds no SOL, so the base leg fails after the quote legs staged.
	legs := []Leg{
		{Asset: "USDC", Account: "alice", Delta: -400},
		{Asset: "USDC", Account: "bob", Delta: 400},
		{Asset: "SOL", Account: "bob", Delta: -4},
		{Asset: "SOL", Account: "alice", Delta: 4},
	}
	err := p.ApplyAll(ctx, "t1", legs)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal, err := p.Balance("alice", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
	bal, err = p.Balance("bob", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	// the failed id was not recorded, so a funded retry goes through
	require.NoError(t, p.Deposit(ctx, "bob", "SOL", 4))
	require.NoError(t, p.ApplyAll(ctx, "t1", legs))
	bal, err = p.Balance("alice", "SOL")
	require.NoError(t, err)
	assert.Equal(t, int64(4), bal)
}

func TestPebble_TransferIDIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newTestPebble(t)
	require.NoError(t, p.Deposit(ctx, "alice", "USDC", 100))

	legs := []Leg{
		{Asset: "USDC", Account: "alice", Delta: -10},
		{Asset: "USDC", Account: "bob", Delta: 10},
	}
	require.NoError(t, p.ApplyAll(ctx, "fill-1", legs))
	require.NoError(t, p.ApplyAll(ctx, "fill-1", legs))

	bal, err := p.Balance("alice", "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(90), bal)
}

func TestPebble_BalancesScopedToAccount(t *testing.T) {
	ctx := context.Background()
	p := newTestPebble(t)
	require.NoError(t, p.Deposit(ctx, "al", "SOL", 1))
	require.NoError(t, p.Deposit(ctx, "alice", "SOL", 2))
	require.NoError(t, p.Deposit(ctx, "al", "USDC", 3))

	got, err := p.Balances(ctx, "al")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"SOL": 1, "USDC": 3}, got)

	empty, err := p.Balances(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

var (
	_ Ledger   = (*Memory)(nil)
	_ Accounts = (*Memory)(nil)
	_ Ledger   = (*Pebble)(nil)
	_ Atomic   = (*Pebble)(nil)
	_ Accounts = (*Pebble)(nil)
)
