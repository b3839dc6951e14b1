// Package settlement turns fills into balanced multi-leg ledger transfers.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efreitasn/clob/internal/domain"
	"github.com/efreitasn/clob/internal/ledger"
)

// MarketLookup resolves the assets traded in a market.
type MarketLookup interface {
	Get(id domain.MarketID) (*domain.Market, error)
}

// Coordinator settles fills against a ledger. With a ledger.Atomic
// ledger the four legs of a fill are applied in one call; otherwise they
// are applied one by one and compensated on failure.
type Coordinator struct {
	ledger  ledger.Ledger
	markets MarketLookup
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(l ledger.Ledger, markets MarketLookup, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{ledger: l, markets: markets, logger: logger}
}

// Legs returns the balance movements of a fill: the quote pair first,
// then the base pair. They sum to zero per asset.
func Legs(fill domain.Fill, base, quote string) []ledger.Leg {
	return []ledger.Leg{
		{Asset: quote, Account: fill.Buyer, Delta: -fill.QuoteAmount},
		{Asset: quote, Account: fill.Seller, Delta: fill.QuoteAmount},
		{Asset: base, Account: fill.Seller, Delta: -fill.Quantity},
		{Asset: base, Account: fill.Buyer, Delta: fill.Quantity},
	}
}

// Settle applies the value exchange of fill. Any error wraps
// domain.ErrSettlementFailed and means no leg of the fill is retained.
// When the resting order's owner is the one who cannot cover its debit,
// the error also wraps domain.ErrMakerUnfunded.
func (c *Coordinator) Settle(ctx context.Context, fill domain.Fill) error {
	market, err := c.markets.Get(fill.MarketID)
	if err != nil {
		return fmt.Errorf("%w: fill %s: %w", domain.ErrSettlementFailed, fill.FillID, err)
	}
	legs := Legs(fill, market.BaseAsset, market.QuoteAsset)

	if atomic, ok := c.ledger.(ledger.Atomic); ok {
		if err := atomic.ApplyAll(ctx, fill.FillID, legs); err != nil {
			return failure(fill, market, err)
		}
		return nil
	}

	for i, leg := range legs {
		if err := c.ledger.Apply(ctx, leg); err != nil {
			if rerr := c.reverse(ctx, fill, legs[:i]); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return failure(fill, market, err)
		}
	}
	return nil
}

func failure(fill domain.Fill, market *domain.Market, err error) error {
	if short, ok := shortSide(fill, market, err); ok && short != fill.TakerSide {
		return fmt.Errorf("%w: %w: fill %s: %w",
			domain.ErrSettlementFailed, domain.ErrMakerUnfunded, fill.FillID, err)
	}
	return fmt.Errorf("%w: fill %s: %w", domain.ErrSettlementFailed, fill.FillID, err)
}

// shortSide reports which side of fill could not cover its debit leg.
// The asset disambiguates when buyer and seller are the same account.
func shortSide(fill domain.Fill, market *domain.Market, err error) (domain.Side, bool) {
	var fe *domain.FundsError
	if !errors.As(err, &fe) {
		return "", false
	}
	switch {
	case fe.Asset == market.QuoteAsset && fe.Account == fill.Buyer:
		return domain.SideBuy, true
	case fe.Asset == market.BaseAsset && fe.Account == fill.Seller:
		return domain.SideSell, true
	}
	return "", false
}

// reverse undoes applied legs, newest first. It runs even when ctx is
// already cancelled.
func (c *Coordinator) reverse(ctx context.Context, fill domain.Fill, applied []ledger.Leg) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		if err := c.ledger.Apply(ctx, applied[i].Reverse()); err != nil {
			c.logger.Error("failed to reverse settlement leg",
				"fill_id", fill.FillID,
				"market_id", fill.MarketID,
				"account", applied[i].Account,
				"asset", applied[i].Asset,
				"delta", -applied[i].Delta,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("reverse %s/%s: %w", applied[i].Account, applied[i].Asset, err))
		}
	}
	return errors.Join(errs...)
}
