package engine

import (
	"sync"
	"time"

	"github.com/efreitasn/clob/internal/domain"
	"github.com/google/btree"
)

// bookEntry is the sort key of a resting order. The order itself lives
// in the book's arena and is looked up by id.
type bookEntry struct {
	Price     int64
	CreatedAt time.Time
	OrderID   domain.OrderID
}

func entryOf(o *domain.Order) bookEntry {
	return bookEntry{Price: o.Price, CreatedAt: o.CreatedAt, OrderID: o.OrderID}
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// bidLess defines ordering for the bid side: price descending, then
// created_at ascending, then order_id ascending. This means Min()
// returns the best bid (highest price, earliest time).
func bidLess(a, b bookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// askLess defines ordering for the ask side: price ascending, then
// created_at ascending, then order_id ascending. Min() returns the
// best ask (lowest price, earliest time).
func askLess(a, b bookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// OrderBook maintains the active orders of a single market. Each side is
// a B-tree of sort keys; the orders themselves sit in an arena keyed by
// order id, which also gives O(1) lookup for removal.
//
// The embedded lock is the market's critical section: placement,
// matching and cancellation take the write lock, queries the read lock.
// The book's own methods do not lock.
type OrderBook struct {
	marketID domain.MarketID
	mu       sync.RWMutex
	bids     *btree.BTreeG[bookEntry]
	asks     *btree.BTreeG[bookEntry]
	orders   map[domain.OrderID]*domain.Order
}

// NewOrderBook creates an empty order book for the given market.
func NewOrderBook(marketID domain.MarketID) *OrderBook {
	const degree = 32
	return &OrderBook{
		marketID: marketID,
		bids:     btree.NewG[bookEntry](degree, bidLess),
		asks:     btree.NewG[bookEntry](degree, askLess),
		orders:   make(map[domain.OrderID]*domain.Order),
	}
}

// MarketID returns the market this book belongs to.
func (ob *OrderBook) MarketID() domain.MarketID {
	return ob.marketID
}

// Lock acquires the write lock on the order book.
func (ob *OrderBook) Lock() {
	ob.mu.Lock()
}

// Unlock releases the write lock on the order book.
func (ob *OrderBook) Unlock() {
	ob.mu.Unlock()
}

// RLock acquires the read lock on the order book.
func (ob *OrderBook) RLock() {
	ob.mu.RLock()
}

// RUnlock releases the read lock on the order book.
func (ob *OrderBook) RUnlock() {
	ob.mu.RUnlock()
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[bookEntry] {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Insert adds an active order to its side of the book. It returns
// domain.ErrDuplicateOrder if an order with the same id is present.
func (ob *OrderBook) Insert(o *domain.Order) error {
	if _, exists := ob.orders[o.OrderID]; exists {
		return domain.ErrDuplicateOrder
	}
	ob.orders[o.OrderID] = o
	ob.side(o.Side).ReplaceOrInsert(entryOf(o))
	return nil
}

// Remove deletes an order from the book and returns it. It returns
// domain.ErrNotFound if the order is not resting on the book.
func (ob *OrderBook) Remove(id domain.OrderID) (*domain.Order, error) {
	o, ok := ob.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(ob.orders, id)
	ob.side(o.Side).Delete(entryOf(o))
	return o, nil
}

// Order returns the resting order with the given id.
func (ob *OrderBook) Order(id domain.OrderID) (*domain.Order, bool) {
	o, ok := ob.orders[id]
	return o, ok
}

// BestBid returns the highest-priority bid (highest price, earliest time).
func (ob *OrderBook) BestBid() (*domain.Order, bool) {
	return ob.best(ob.bids)
}

// BestAsk returns the highest-priority ask (lowest price, earliest time).
func (ob *OrderBook) BestAsk() (*domain.Order, bool) {
	return ob.best(ob.asks)
}

// Best returns the highest-priority order on the given side.
func (ob *OrderBook) Best(s domain.Side) (*domain.Order, bool) {
	return ob.best(ob.side(s))
}

func (ob *OrderBook) best(tree *btree.BTreeG[bookEntry]) (*domain.Order, bool) {
	entry, ok := tree.Min()
	if !ok {
		return nil, false
	}
	return ob.orders[entry.OrderID], true
}

// PeekCrossable reports whether the best order opposite to an incoming
// order of the given side and limit price would match it. A buy crosses
// an ask priced at or below its limit; a sell crosses a bid priced at or
// above its limit.
func (ob *OrderBook) PeekCrossable(s domain.Side, limit int64) bool {
	best, ok := ob.Best(s.Opposite())
	if !ok {
		return false
	}
	return crosses(s, limit, best.Price)
}

func crosses(s domain.Side, limit, restingPrice int64) bool {
	if s == domain.SideBuy {
		return restingPrice <= limit
	}
	return restingPrice >= limit
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (ob *OrderBook) TopBids(n int) []PriceLevel {
	return ob.topLevels(ob.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (ob *OrderBook) TopAsks(n int) []PriceLevel {
	return ob.topLevels(ob.asks, n)
}

// topLevels iterates the B-tree in order and aggregates entries into
// at most n price levels.
func (ob *OrderBook) topLevels(tree *btree.BTreeG[bookEntry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(entry bookEntry) bool {
		remaining := ob.orders[entry.OrderID].Remaining()
		if len(levels) > 0 && levels[len(levels)-1].Price == entry.Price {
			levels[len(levels)-1].TotalQuantity += remaining
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         entry.Price,
			TotalQuantity: remaining,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// BidCount returns the number of individual bid orders on the book.
func (ob *OrderBook) BidCount() int {
	return ob.bids.Len()
}

// AskCount returns the number of individual ask orders on the book.
func (ob *OrderBook) AskCount() int {
	return ob.asks.Len()
}

// BookManager is a thread-safe map of market id → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[domain.MarketID]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[domain.MarketID]*OrderBook),
	}
}

// Create registers an empty book for the market. It returns
// domain.ErrDuplicateMarket if the market already has one.
func (bm *BookManager) Create(marketID domain.MarketID) (*OrderBook, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if _, ok := bm.books[marketID]; ok {
		return nil, domain.ErrDuplicateMarket
	}
	book := NewOrderBook(marketID)
	bm.books[marketID] = book
	return book, nil
}

// Get returns the book of a market, or domain.ErrMarketNotFound.
func (bm *BookManager) Get(marketID domain.MarketID) (*OrderBook, error) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	book, ok := bm.books[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return book, nil
}
