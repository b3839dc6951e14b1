package domain

import "time"

// MarketID identifies a base/quote trading pair.
type MarketID uint64

// Market is the configuration of one trading pair. Everything except
// the order sequence is immutable after initialization.
type Market struct {
	MarketID   MarketID
	Authority  string
	BaseAsset  string
	QuoteAsset string
	CreatedAt  time.Time

	// guarded by the market's book lock
	lastOrderID   OrderID
	lastCreatedAt time.Time
}

// NextOrderID advances the market sequence and returns the new id.
// Callers must hold the market's write lock.
func (m *Market) NextOrderID() OrderID {
	m.lastOrderID++
	return m.lastOrderID
}

// LastOrderID returns the most recently allocated order id.
func (m *Market) LastOrderID() OrderID {
	return m.lastOrderID
}

// ReleaseOrderID gives id back to the sequence when it is the most
// recent allocation and no order record was created for it.
func (m *Market) ReleaseOrderID(id OrderID) {
	if id != 0 && id == m.lastOrderID {
		m.lastOrderID--
	}
}

// Stamp returns the placement time for a new order: now, unless the
// clock has gone backwards since the previous placement, in which case
// the previous time is reused. created_at never decreases within a
// market. Callers must hold the market's write lock.
func (m *Market) Stamp(now time.Time) time.Time {
	if now.Before(m.lastCreatedAt) {
		return m.lastCreatedAt
	}
	m.lastCreatedAt = now
	return now
}
