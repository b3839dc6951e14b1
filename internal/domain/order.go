package domain

import "time"

// OrderID identifies an order within its market. IDs are allocated from
// the market's sequence counter and start at 1.
type OrderID uint64

// Side indicates whether an order buys or sells the base asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// TimeInForce controls what happens to the unfilled remainder of an
// incoming order once matching stops.
type TimeInForce string

const (
	// TimeInForceGTC rests the remainder on the book.
	TimeInForceGTC TimeInForce = "gtc"
	// TimeInForceIOC cancels the remainder.
	TimeInForceIOC TimeInForce = "ioc"
)

// Order is one trading intent, resting or historical.
type Order struct {
	OrderID        OrderID
	MarketID       MarketID
	Owner          string
	Side           Side
	Price          int64 // quote units per base unit
	Quantity       int64
	FilledQuantity int64
	Status         OrderStatus
	TimeInForce    TimeInForce
	CreatedAt      time.Time
	CancelledAt    *time.Time
}

// Remaining returns the quantity still open for matching.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// Active reports whether the order can still be matched or cancelled.
func (o *Order) Active() bool {
	return o.Status == OrderStatusActive
}

// ApplyFill adds qty to the filled quantity and moves the order to
// filled when nothing remains. The caller guarantees qty <= Remaining().
func (o *Order) ApplyFill(qty int64) {
	o.FilledQuantity += qty
	if o.FilledQuantity == o.Quantity {
		o.Status = OrderStatusFilled
	}
}

// Cancel freezes the filled quantity and moves the order to cancelled.
func (o *Order) Cancel(at time.Time) {
	o.Status = OrderStatusCancelled
	o.CancelledAt = &at
}

// Snapshot returns a copy safe to hand out after the market lock is released.
func (o *Order) Snapshot() Order {
	c := *o
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		c.CancelledAt = &at
	}
	return c
}
