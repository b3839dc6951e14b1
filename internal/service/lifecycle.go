package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/clob/internal/domain"
	"github.com/efreitasn/clob/internal/engine"
	"github.com/efreitasn/clob/internal/events"
	"github.com/efreitasn/clob/internal/metrics"
	"github.com/efreitasn/clob/internal/store"
)

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	assetRegex      = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,15}$`)
)

// Operation names used in errors and metrics.
const (
	opInitializeMarket = "initialize_market"
	opPlaceOrder       = "place_order"
	opCancelOrder      = "cancel_order"
	opQueryMarket      = "query_market"
	opGetOrder         = "get_order"
	opListFills        = "list_fills"
	opListOrders       = "list_orders"
)

// Clock supplies order placement and cancellation times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// InitializeMarketRequest represents the input for creating a market.
type InitializeMarketRequest struct {
	MarketID   domain.MarketID
	BaseAsset  string
	QuoteAsset string
	Authority  string
}

// PlaceOrderRequest represents the input for order placement.
type PlaceOrderRequest struct {
	MarketID    domain.MarketID
	Owner       string
	Side        domain.Side
	Price       int64
	Quantity    int64
	TimeInForce domain.TimeInForce // empty means gtc
}

// PlaceResult is the outcome of a placement: the order as it stands
// after matching and the fills it produced, in execution order.
type PlaceResult struct {
	Order domain.Order
	Fills []domain.Fill
}

// Quote is the top-priority order of one side of the book.
type Quote struct {
	OrderID  domain.OrderID
	Price    int64
	Quantity int64
}

// MarketView is a read-only snapshot of a market.
type MarketView struct {
	Market      domain.Market
	LastOrderID domain.OrderID
	BestBid     *Quote
	BestAsk     *Quote
	Bids        []engine.PriceLevel
	Asks        []engine.PriceLevel
	Spread      *int64
	MidPrice    *decimal.Decimal
	LastPrice   *int64
	LastFillAt  *time.Time
}

// LifecycleManager runs market initialization, order placement and
// cancellation, and the read paths over markets, orders and fills.
type LifecycleManager struct {
	initMu    sync.Mutex
	markets   *store.MarketStore
	books     *engine.BookManager
	orders    *store.OrderStore
	fills     *store.FillStore
	matcher   *engine.Matcher
	publisher events.Publisher
	clock     Clock
	depth     int
	logger    *slog.Logger
}

// NewLifecycleManager creates a new LifecycleManager with the given
// dependencies. A nil publisher discards events, a nil clock uses the
// system clock and depth is the number of price levels per side
// returned by QueryMarket.
func NewLifecycleManager(
	markets *store.MarketStore,
	books *engine.BookManager,
	orders *store.OrderStore,
	fills *store.FillStore,
	matcher *engine.Matcher,
	publisher events.Publisher,
	clock Clock,
	depth int,
	logger *slog.Logger,
) *LifecycleManager {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleManager{
		markets:   markets,
		books:     books,
		orders:    orders,
		fills:     fills,
		matcher:   matcher,
		publisher: publisher,
		clock:     clock,
		depth:     depth,
		logger:    logger,
	}
}

// InitializeMarket registers a new market with an empty book and an
// order sequence starting at 1.
func (s *LifecycleManager) InitializeMarket(ctx context.Context, req InitializeMarketRequest) (domain.Market, error) {
	if err := validateMarket(req); err != nil {
		return domain.Market{}, s.fail(opInitializeMarket, domain.MarketErr(opInitializeMarket, req.MarketID, err))
	}

	m := &domain.Market{
		MarketID:   req.MarketID,
		Authority:  req.Authority,
		BaseAsset:  req.BaseAsset,
		QuoteAsset: req.QuoteAsset,
		CreatedAt:  s.clock.Now(),
	}

	// Both registrations succeed or neither does.
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if err := s.markets.Create(m); err != nil {
		return domain.Market{}, s.fail(opInitializeMarket, domain.MarketErr(opInitializeMarket, req.MarketID, err))
	}
	if _, err := s.books.Create(req.MarketID); err != nil {
		return domain.Market{}, s.fail(opInitializeMarket, domain.MarketErr(opInitializeMarket, req.MarketID, err))
	}

	s.logger.InfoContext(ctx, "market initialized",
		"market_id", m.MarketID, "base", m.BaseAsset, "quote", m.QuoteAsset, "authority", m.Authority)
	return *m, nil
}

func validateMarket(req InitializeMarketRequest) error {
	if req.MarketID == 0 {
		return &domain.ValidationError{Message: "market_id must be a positive integer"}
	}
	if !assetRegex.MatchString(req.BaseAsset) {
		return &domain.ValidationError{Message: "base_asset must match ^[A-Z][A-Z0-9]{0,15}$"}
	}
	if !assetRegex.MatchString(req.QuoteAsset) {
		return &domain.ValidationError{Message: "quote_asset must match ^[A-Z][A-Z0-9]{0,15}$"}
	}
	if req.BaseAsset == req.QuoteAsset {
		return &domain.ValidationError{Message: "base_asset and quote_asset must differ"}
	}
	if !identifierRegex.MatchString(req.Authority) {
		return &domain.ValidationError{Message: "authority must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return nil
}

// PlaceOrder validates the request, allocates the next order id of the
// market and matches the order against the book. Resting orders whose
// owner cannot pay for their side of a fill are cancelled along the way.
//
// When settlement fails before any fill, no order record is created and
// the id is given back to the sequence. When it fails after some fills,
// the order is recorded with its remainder cancelled and both the
// result and the error are returned.
func (s *LifecycleManager) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceResult, error) {
	if req.TimeInForce == "" {
		req.TimeInForce = domain.TimeInForceGTC
	}
	if err := validatePlacement(req); err != nil {
		return nil, s.fail(opPlaceOrder, domain.MarketErr(opPlaceOrder, req.MarketID, err))
	}

	market, err := s.markets.Get(req.MarketID)
	if err != nil {
		return nil, s.fail(opPlaceOrder, domain.MarketErr(opPlaceOrder, req.MarketID, err))
	}
	book, err := s.books.Get(req.MarketID)
	if err != nil {
		return nil, s.fail(opPlaceOrder, domain.MarketErr(opPlaceOrder, req.MarketID, err))
	}

	book.Lock()
	start := time.Now()

	order := &domain.Order{
		OrderID:     market.NextOrderID(),
		MarketID:    req.MarketID,
		Owner:       req.Owner,
		Side:        req.Side,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Status:      domain.OrderStatusActive,
		TimeInForce: req.TimeInForce,
		CreatedAt:   market.Stamp(s.clock.Now()),
	}

	fills, evicted, matchErr := s.matcher.Match(ctx, book, order)
	cancelled := snapshots(evicted)
	if matchErr != nil && len(fills) == 0 {
		market.ReleaseOrderID(order.OrderID)
		book.Unlock()
		s.publishEvictions(ctx, cancelled)
		if domain.Classify(matchErr) == domain.ClassSettlement {
			metrics.SettlementFailures.Inc()
		}
		return nil, s.fail(opPlaceOrder, domain.MarketErr(opPlaceOrder, req.MarketID, matchErr))
	}

	if err := s.orders.Create(order); err != nil {
		// Ids come from the market sequence under the lock; a collision
		// means the store and the sequence disagree.
		book.Unlock()
		return nil, s.fail(opPlaceOrder, domain.OrderErr(opPlaceOrder, req.MarketID, order.OrderID, err))
	}
	s.fills.Append(req.MarketID, fills...)

	result := &PlaceResult{Order: order.Snapshot(), Fills: fills}
	makers := s.makerSnapshots(req.MarketID, fills)
	book.Unlock()

	metrics.MatchLatency.Observe(time.Since(start).Seconds())
	metrics.OrdersPlaced.WithLabelValues(string(req.Side)).Inc()
	for _, f := range fills {
		metrics.Fills.Inc()
		metrics.FilledQuantity.Add(float64(f.Quantity))
	}

	s.publishEvictions(ctx, cancelled)
	s.publisher.PublishFills(ctx, fills)
	s.publisher.PublishOrder(ctx, result.Order)
	for _, m := range makers {
		s.publisher.PublishOrder(ctx, m)
	}

	s.logger.InfoContext(ctx, "order placed",
		"market_id", req.MarketID,
		"order_id", result.Order.OrderID,
		"owner", req.Owner,
		"side", req.Side,
		"status", result.Order.Status,
		"fills", len(fills),
	)

	if matchErr != nil {
		if domain.Classify(matchErr) == domain.ClassSettlement {
			metrics.SettlementFailures.Inc()
		}
		return result, s.fail(opPlaceOrder, domain.OrderErr(opPlaceOrder, req.MarketID, order.OrderID, matchErr))
	}
	return result, nil
}

func validatePlacement(req PlaceOrderRequest) error {
	if !identifierRegex.MatchString(req.Owner) {
		return &domain.ValidationError{Message: "owner must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if !req.Side.Valid() {
		return &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if req.TimeInForce != domain.TimeInForceGTC && req.TimeInForce != domain.TimeInForceIOC {
		return &domain.ValidationError{Message: "time_in_force must be 'gtc' or 'ioc'"}
	}
	if req.Price <= 0 {
		return domain.ErrInvalidPrice
	}
	if req.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	// Every fill of this order settles at most price × quantity of the
	// quote asset, so checking the whole order up front rules out an
	// overflow halfway through matching.
	if _, err := domain.QuoteAmount(req.Price, req.Quantity); err != nil {
		return err
	}
	return nil
}

// makerSnapshots copies the resting orders touched by fills, once each.
// Callers hold the market's write lock.
func (s *LifecycleManager) makerSnapshots(marketID domain.MarketID, fills []domain.Fill) []domain.Order {
	var out []domain.Order
	seen := make(map[domain.OrderID]bool, len(fills))
	for _, f := range fills {
		if seen[f.MakerOrderID] {
			continue
		}
		seen[f.MakerOrderID] = true
		o, err := s.orders.Get(marketID, f.MakerOrderID)
		if err != nil {
			s.logger.Error("maker order missing from store",
				"market_id", marketID, "order_id", f.MakerOrderID, "error", err)
			continue
		}
		out = append(out, o.Snapshot())
	}
	return out
}

func snapshots(orders []*domain.Order) []domain.Order {
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Snapshot()
	}
	return out
}

// publishEvictions reports resting orders the matcher cancelled because
// their owner could not settle.
func (s *LifecycleManager) publishEvictions(ctx context.Context, orders []domain.Order) {
	for _, o := range orders {
		metrics.Evictions.Inc()
		metrics.SettlementFailures.Inc()
		s.logger.WarnContext(ctx, "resting order evicted: owner cannot settle",
			"market_id", o.MarketID,
			"order_id", o.OrderID,
			"owner", o.Owner,
		)
		s.publisher.PublishOrder(ctx, o)
	}
}

// CancelOrder removes an active order from the book on behalf of its
// owner and returns the cancelled order.
func (s *LifecycleManager) CancelOrder(ctx context.Context, marketID domain.MarketID, orderID domain.OrderID, requester string) (domain.Order, error) {
	book, err := s.books.Get(marketID)
	if err != nil {
		return domain.Order{}, s.fail(opCancelOrder, domain.OrderErr(opCancelOrder, marketID, orderID, err))
	}

	book.Lock()
	o, err := s.orders.Get(marketID, orderID)
	if err != nil {
		book.Unlock()
		return domain.Order{}, s.fail(opCancelOrder, domain.OrderErr(opCancelOrder, marketID, orderID, err))
	}
	if o.Owner != requester {
		book.Unlock()
		return domain.Order{}, s.fail(opCancelOrder, domain.OrderErr(opCancelOrder, marketID, orderID, domain.ErrUnauthorized))
	}
	if !o.Active() {
		book.Unlock()
		return domain.Order{}, s.fail(opCancelOrder, domain.OrderErr(opCancelOrder, marketID, orderID, domain.ErrOrderNotActive))
	}
	if _, err := book.Remove(orderID); err != nil {
		book.Unlock()
		return domain.Order{}, s.fail(opCancelOrder, domain.OrderErr(opCancelOrder, marketID, orderID, err))
	}
	o.Cancel(s.clock.Now())
	cancelled := o.Snapshot()
	book.Unlock()

	metrics.Cancellations.Inc()
	s.publisher.PublishOrder(ctx, cancelled)
	s.logger.InfoContext(ctx, "order cancelled",
		"market_id", marketID,
		"order_id", orderID,
		"filled_quantity", cancelled.FilledQuantity,
	)
	return cancelled, nil
}

// QueryMarket returns the market configuration together with the top of
// the book, up to depth price levels per side and the last trade price.
func (s *LifecycleManager) QueryMarket(ctx context.Context, marketID domain.MarketID) (*MarketView, error) {
	market, err := s.markets.Get(marketID)
	if err != nil {
		return nil, s.fail(opQueryMarket, domain.MarketErr(opQueryMarket, marketID, err))
	}
	book, err := s.books.Get(marketID)
	if err != nil {
		return nil, s.fail(opQueryMarket, domain.MarketErr(opQueryMarket, marketID, err))
	}

	book.RLock()
	view := &MarketView{Market: *market}
	view.LastOrderID = market.LastOrderID()
	if o, ok := book.BestBid(); ok {
		view.BestBid = &Quote{OrderID: o.OrderID, Price: o.Price, Quantity: o.Remaining()}
	}
	if o, ok := book.BestAsk(); ok {
		view.BestAsk = &Quote{OrderID: o.OrderID, Price: o.Price, Quantity: o.Remaining()}
	}
	view.Bids = book.TopBids(s.depth)
	view.Asks = book.TopAsks(s.depth)
	book.RUnlock()

	if view.BestBid != nil && view.BestAsk != nil {
		spread := view.BestAsk.Price - view.BestBid.Price
		view.Spread = &spread
		mid := decimal.NewFromInt(view.BestBid.Price).
			Add(decimal.NewFromInt(view.BestAsk.Price)).
			Div(decimal.NewFromInt(2))
		view.MidPrice = &mid
	}

	if f, ok := s.fills.Last(marketID); ok {
		view.LastPrice = &f.Price
		at := f.ExecutedAt
		view.LastFillAt = &at
	}
	return view, nil
}

// ListMarkets returns the configuration of every market, ordered by id.
func (s *LifecycleManager) ListMarkets(ctx context.Context) []domain.Market {
	all := s.markets.List()
	out := make([]domain.Market, len(all))
	for i, m := range all {
		out[i] = domain.Market{
			MarketID:   m.MarketID,
			Authority:  m.Authority,
			BaseAsset:  m.BaseAsset,
			QuoteAsset: m.QuoteAsset,
			CreatedAt:  m.CreatedAt,
		}
	}
	return out
}

// GetOrder returns a copy of an order, active or historical.
func (s *LifecycleManager) GetOrder(ctx context.Context, marketID domain.MarketID, orderID domain.OrderID) (domain.Order, error) {
	book, err := s.books.Get(marketID)
	if err != nil {
		return domain.Order{}, s.fail(opGetOrder, domain.OrderErr(opGetOrder, marketID, orderID, err))
	}

	book.RLock()
	defer book.RUnlock()
	o, err := s.orders.Get(marketID, orderID)
	if err != nil {
		return domain.Order{}, s.fail(opGetOrder, domain.OrderErr(opGetOrder, marketID, orderID, err))
	}
	return o.Snapshot(), nil
}

// ListFills returns up to limit fills of a market, most recent first.
// A limit of zero or less returns all of them.
func (s *LifecycleManager) ListFills(ctx context.Context, marketID domain.MarketID, limit int) ([]domain.Fill, error) {
	if _, err := s.markets.Get(marketID); err != nil {
		return nil, s.fail(opListFills, domain.MarketErr(opListFills, marketID, err))
	}
	return s.fills.ListByMarket(marketID, limit), nil
}

// ListOrdersRequest represents the input for listing an owner's orders.
type ListOrdersRequest struct {
	Owner  string
	Status *domain.OrderStatus // nil means any
	Page   int
	Limit  int
}

// ListOrders returns a page of the owner's orders across all markets,
// newest first, with the total number of matching orders.
func (s *LifecycleManager) ListOrders(ctx context.Context, req ListOrdersRequest) ([]domain.Order, int, error) {
	if !identifierRegex.MatchString(req.Owner) {
		return nil, 0, s.fail(opListOrders, &domain.ValidationError{Message: "owner must match ^[a-zA-Z0-9_-]{1,64}$"})
	}
	if req.Status != nil && !validStatus(*req.Status) {
		return nil, 0, s.fail(opListOrders, &domain.ValidationError{
			Message: fmt.Sprintf("unknown status: %s. Must be one of: active, filled, cancelled", *req.Status),
		})
	}
	if req.Page < 1 {
		return nil, 0, s.fail(opListOrders, &domain.ValidationError{Message: "page must be a positive integer"})
	}
	if req.Limit < 1 || req.Limit > 100 {
		return nil, 0, s.fail(opListOrders, &domain.ValidationError{Message: "limit must be between 1 and 100"})
	}

	var matched []domain.Order
	for _, o := range s.orders.ListByOwner(req.Owner) {
		snap, ok := s.snapshot(o)
		if !ok {
			continue
		}
		if req.Status != nil && snap.Status != *req.Status {
			continue
		}
		matched = append(matched, snap)
	}

	page, total := store.Page(matched, req.Page, req.Limit)
	return page, total, nil
}

// snapshot copies o under its market's read lock.
func (s *LifecycleManager) snapshot(o *domain.Order) (domain.Order, bool) {
	book, err := s.books.Get(o.MarketID)
	if err != nil {
		return domain.Order{}, false
	}
	book.RLock()
	defer book.RUnlock()
	return o.Snapshot(), true
}

func validStatus(st domain.OrderStatus) bool {
	switch st {
	case domain.OrderStatusActive, domain.OrderStatusFilled, domain.OrderStatusCancelled:
		return true
	}
	return false
}

// fail records err under op and returns it.
func (s *LifecycleManager) fail(op string, err error) error {
	metrics.Errors.WithLabelValues(op, string(domain.Classify(err))).Inc()
	return err
}
