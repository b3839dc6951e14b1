package store

import (
	"sync"

	"github.com/efreitasn/clob/internal/domain"
)

type orderKey struct {
	market domain.MarketID
	order  domain.OrderID
}

// OrderStore is the historical record of every placed order, with a
// primary index by (market_id, order_id) and a secondary index by owner.
//
// The store holds the same *domain.Order the order book matches against.
// Its own lock only guards the indexes; the order fields are guarded by
// the owning market's book lock.
type OrderStore struct {
	mu          sync.RWMutex
	orders      map[orderKey]*domain.Order
	ownerOrders map[string][]*domain.Order // owner → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:      make(map[orderKey]*domain.Order),
		ownerOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the owner's
// secondary index. It returns domain.ErrDuplicateOrder if the market
// already has an order with the same id.
func (s *OrderStore) Create(o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderKey{o.MarketID, o.OrderID}
	if _, exists := s.orders[key]; exists {
		return domain.ErrDuplicateOrder
	}
	s.orders[key] = o
	s.ownerOrders[o.Owner] = append(s.ownerOrders[o.Owner], o)
	return nil
}

// Get retrieves an order. It returns domain.ErrNotFound if the order
// does not exist.
func (s *OrderStore) Get(marketID domain.MarketID, id domain.OrderID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderKey{marketID, id}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// ListByOwner returns the owner's orders newest first. Status filtering
// and pagination happen in the caller, under the market locks.
func (s *OrderStore) ListByOwner(owner string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.ownerOrders[owner]
	out := make([]*domain.Order, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return out
}

// Page slices items for a 1-based page of the given size and returns it
// with the total item count.
func Page[T any](items []T, page, limit int) ([]T, int) {
	total := len(items)
	start := (page - 1) * limit
	if start >= total || start < 0 {
		return []T{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], total
}
