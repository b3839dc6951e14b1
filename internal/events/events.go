// Package events publishes fill and order notifications to downstream
// consumers once the market lock has been released.
package events

import (
	"context"
	"time"

	"github.com/efreitasn/clob/internal/domain"
)

// Event names.
const (
	EventFillExecuted   = "fill.executed"
	EventOrderPlaced    = "order.placed"
	EventOrderFilled    = "order.filled"
	EventOrderCancelled = "order.cancelled"
)

// Publisher delivers events. Implementations are fire-and-forget from
// the caller's point of view: errors are handled (logged) internally.
type Publisher interface {
	PublishFills(ctx context.Context, fills []domain.Fill)
	PublishOrder(ctx context.Context, order domain.Order)
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishFills(context.Context, []domain.Fill) {}
func (Nop) PublishOrder(context.Context, domain.Order)  {}

// envelope is the JSON shape of every message.
type envelope struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

type fillData struct {
	FillID       string `json:"fill_id"`
	MarketID     uint64 `json:"market_id"`
	TakerOrderID uint64 `json:"taker_order_id"`
	MakerOrderID uint64 `json:"maker_order_id"`
	TakerSide    string `json:"taker_side"`
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
	QuoteAmount  int64  `json:"quote_amount"`
}

type orderData struct {
	OrderID           uint64 `json:"order_id"`
	MarketID          uint64 `json:"market_id"`
	Owner             string `json:"owner"`
	Side              string `json:"side"`
	Price             int64  `json:"price"`
	Quantity          int64  `json:"quantity"`
	FilledQuantity    int64  `json:"filled_quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Status            string `json:"status"`
	TimeInForce       string `json:"time_in_force"`
}

func fillEnvelope(f domain.Fill) envelope {
	return envelope{
		Event:     EventFillExecuted,
		Timestamp: f.ExecutedAt.UTC().Format(time.RFC3339Nano),
		Data: fillData{
			FillID:       f.FillID,
			MarketID:     uint64(f.MarketID),
			TakerOrderID: uint64(f.TakerOrderID),
			MakerOrderID: uint64(f.MakerOrderID),
			TakerSide:    string(f.TakerSide),
			Buyer:        f.Buyer,
			Seller:       f.Seller,
			Price:        f.Price,
			Quantity:     f.Quantity,
			QuoteAmount:  f.QuoteAmount,
		},
	}
}

// orderEvent names the event for an order's current status.
func orderEvent(o domain.Order) string {
	switch o.Status {
	case domain.OrderStatusFilled:
		return EventOrderFilled
	case domain.OrderStatusCancelled:
		return EventOrderCancelled
	default:
		return EventOrderPlaced
	}
}

func orderEnvelope(o domain.Order) envelope {
	at := o.CreatedAt
	if o.CancelledAt != nil {
		at = *o.CancelledAt
	}
	remaining := o.Remaining()
	if o.Status == domain.OrderStatusCancelled {
		remaining = 0
	}
	return envelope{
		Event:     orderEvent(o),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Data: orderData{
			OrderID:           uint64(o.OrderID),
			MarketID:          uint64(o.MarketID),
			Owner:             o.Owner,
			Side:              string(o.Side),
			Price:             o.Price,
			Quantity:          o.Quantity,
			FilledQuantity:    o.FilledQuantity,
			RemainingQuantity: remaining,
			Status:            string(o.Status),
			TimeInForce:       string(o.TimeInForce),
		},
	}
}
