package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/clob/internal/domain"
)

// MarketStore is a thread-safe in-memory store for market
// configurations, keyed by market_id.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[domain.MarketID]*domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		markets: make(map[domain.MarketID]*domain.Market),
	}
}

// Create adds a market to the store. It returns
// domain.ErrDuplicateMarket if a market with the same ID
// already exists.
func (s *MarketStore) Create(m *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.markets[m.MarketID]; exists {
		return domain.ErrDuplicateMarket
	}
	s.markets[m.MarketID] = m
	return nil
}

// Get retrieves a market by ID. It returns
// domain.ErrMarketNotFound if the market does not exist.
func (s *MarketStore) Get(id domain.MarketID) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m, nil
}

// List returns all markets ordered by ID.
func (s *MarketStore) List() []*domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}
