// Package ledger holds the balance-transfer collaborator used by
// settlement, plus two implementations: an in-memory ledger that applies
// legs one at a time and a pebble-backed ledger that applies a whole
// transfer atomically.
package ledger

import (
	"context"
	"fmt"

	"github.com/efreitasn/clob/internal/domain"
)

// Leg is one single-asset balance movement.
type Leg struct {
	Asset   string
	Account string
	Delta   int64
}

// Reverse returns the leg that undoes l.
func (l Leg) Reverse() Leg {
	return Leg{Asset: l.Asset, Account: l.Account, Delta: -l.Delta}
}

// Ledger applies single legs. Apply either moves the balance or fails
// without effect.
type Ledger interface {
	Apply(ctx context.Context, leg Leg) error
}

// Atomic is implemented by ledgers that can apply several legs as one
// unit: all of them or none.
type Atomic interface {
	ApplyAll(ctx context.Context, transferID string, legs []Leg) error
}

// Accounts exposes funding and balance reads.
type Accounts interface {
	Deposit(ctx context.Context, account, asset string, amount int64) error
	Balances(ctx context.Context, account string) (map[string]int64, error)
}

// next returns balance+delta, rejecting results below zero or above
// domain.MaxAmount.
func next(leg Leg, balance int64) (int64, error) {
	if leg.Delta > 0 && balance > domain.MaxAmount-leg.Delta {
		return 0, fmt.Errorf("credit %s/%s: %w", leg.Account, leg.Asset, domain.ErrOverflow)
	}
	n := balance + leg.Delta
	if n < 0 {
		return 0, &domain.FundsError{Account: leg.Account, Asset: leg.Asset, Amount: -leg.Delta, Balance: balance}
	}
	return n, nil
}

func depositLeg(account, asset string, amount int64) (Leg, error) {
	if amount <= 0 {
		return Leg{}, &domain.ValidationError{Message: "amount must be a positive integer"}
	}
	return Leg{Asset: asset, Account: account, Delta: amount}, nil
}
