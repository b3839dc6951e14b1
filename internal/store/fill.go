package store

import (
	"sync"

	"github.com/efreitasn/clob/internal/domain"
)

// FillStore is a thread-safe in-memory store for fills, keyed by
// market. Fills are append-only and kept in execution order.
type FillStore struct {
	mu    sync.RWMutex
	fills map[domain.MarketID][]domain.Fill
}

// NewFillStore creates an empty FillStore.
func NewFillStore() *FillStore {
	return &FillStore{
		fills: make(map[domain.MarketID][]domain.Fill),
	}
}

// Append adds fills to the market's list.
func (s *FillStore) Append(marketID domain.MarketID, fills ...domain.Fill) {
	if len(fills) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fills[marketID] = append(s.fills[marketID], fills...)
}

// ListByMarket returns up to limit fills of a market, most recent
// first. A limit <= 0 returns all of them. Returns an empty slice if
// the market has no fills.
func (s *FillStore) ListByMarket(marketID domain.MarketID, limit int) []domain.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.fills[marketID]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]domain.Fill, 0, n)
	for i := len(all) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, all[i])
	}
	return result
}

// Last returns the most recent fill of a market.
func (s *FillStore) Last(marketID domain.MarketID) (domain.Fill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.fills[marketID]
	if len(all) == 0 {
		return domain.Fill{}, false
	}
	return all[len(all)-1], true
}
