package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/efreitasn/clob/internal/domain"
)

// fillNamespace scopes the name-based fill ids so the same input
// sequence always yields the same ids.
var fillNamespace = uuid.MustParse("6f1c62c4-3b0e-4f43-9a52-6f0e2f1f4c11")

// Settler executes the value exchange for a fill. A non-nil error means
// nothing of the fill was applied.
type Settler interface {
	Settle(ctx context.Context, fill domain.Fill) error
}

// Matcher implements continuous price-time matching for limit orders.
type Matcher struct {
	settler Settler
}

// NewMatcher creates a new Matcher that settles fills through settler.
func NewMatcher(settler Settler) *Matcher {
	return &Matcher{settler: settler}
}

// Match crosses an incoming order against the opposite side of the book.
//
// Each fill executes at the resting order's price for the smaller of the
// two remaining quantities. A fill is settled before either order is
// touched, so an order mutation is only ever committed together with its
// confirmed settlement. Fully filled resting orders leave the book.
//
// A resting order whose owner cannot cover its side of a fill is
// cancelled and removed from the book, and matching moves on to the next
// resting order. Such orders are returned as evicted.
//
// When the loop ends normally the remainder rests on the book (gtc) or
// is cancelled (ioc). When a fill fails (settlement, overflow, context)
// matching halts: fills already settled stand and are returned along
// with the error. If at least one fill went through, the incoming
// order's remainder is cancelled, since resting it would cross the
// order that failed to settle.
//
// The caller must hold the book's write lock and must have set the
// incoming order's id, status, and created_at. Fills are stamped with the
// incoming order's created_at, so the output depends only on the input
// sequence.
func (m *Matcher) Match(ctx context.Context, book *OrderBook, incoming *domain.Order) (fills []domain.Fill, evicted []*domain.Order, err error) {
	fills, evicted, err = m.cross(ctx, book, incoming)
	if err != nil {
		if len(fills) > 0 && incoming.Active() {
			incoming.Cancel(incoming.CreatedAt)
		}
		return fills, evicted, err
	}

	if incoming.Remaining() > 0 {
		if incoming.TimeInForce == domain.TimeInForceIOC {
			incoming.Cancel(incoming.CreatedAt)
		} else if err := book.Insert(incoming); err != nil {
			return fills, evicted, err
		}
	}
	return fills, evicted, nil
}

func (m *Matcher) cross(ctx context.Context, book *OrderBook, incoming *domain.Order) ([]domain.Fill, []*domain.Order, error) {
	var (
		fills   []domain.Fill
		evicted []*domain.Order
	)

	for incoming.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return fills, evicted, err
		}

		resting, found := book.Best(incoming.Side.Opposite())
		if !found || !crosses(incoming.Side, incoming.Price, resting.Price) {
			break
		}

		qty := incoming.Remaining()
		if resting.Remaining() < qty {
			qty = resting.Remaining()
		}
		price := resting.Price

		quote, err := domain.QuoteAmount(price, qty)
		if err != nil {
			return fills, evicted, err
		}

		fill := domain.Fill{
			FillID:       fillID(incoming, resting),
			MarketID:     incoming.MarketID,
			TakerOrderID: incoming.OrderID,
			MakerOrderID: resting.OrderID,
			TakerSide:    incoming.Side,
			Price:        price,
			Quantity:     qty,
			QuoteAmount:  quote,
			ExecutedAt:   incoming.CreatedAt,
		}
		if incoming.Side == domain.SideBuy {
			fill.Buyer, fill.Seller = incoming.Owner, resting.Owner
		} else {
			fill.Buyer, fill.Seller = resting.Owner, incoming.Owner
		}

		if err := m.settler.Settle(ctx, fill); err != nil {
			if !errors.Is(err, domain.ErrMakerUnfunded) {
				return fills, evicted, err
			}
			if _, err := book.Remove(resting.OrderID); err != nil {
				return fills, evicted, err
			}
			resting.Cancel(incoming.CreatedAt)
			evicted = append(evicted, resting)
			continue
		}

		// Settlement confirmed: commit both order mutations.
		incoming.ApplyFill(qty)
		resting.ApplyFill(qty)
		if resting.Remaining() == 0 {
			if _, err := book.Remove(resting.OrderID); err != nil {
				return fills, evicted, err
			}
		}
		fills = append(fills, fill)
	}
	return fills, evicted, nil
}

// fillID derives a stable id from the pair of orders involved. A taker
// meets a given maker at most once per placement, so the pair is unique.
// The taker's created_at keeps ids distinct when order ids restart against
// a durable ledger.
func fillID(taker, maker *domain.Order) string {
	name := fmt.Sprintf("%d/%d/%d/%d", taker.MarketID, taker.OrderID, maker.OrderID, taker.CreatedAt.UnixNano())
	return uuid.NewSHA1(fillNamespace, []byte(name)).String()
}
