package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/clob/internal/auth"
	"github.com/efreitasn/clob/internal/domain"
	"github.com/efreitasn/clob/internal/engine"
	"github.com/efreitasn/clob/internal/service"
)

const (
	defaultFillLimit = 50
	maxFillLimit     = 1000
)

// MarketHandler handles HTTP requests for market endpoints.
type MarketHandler struct {
	lifecycle *service.LifecycleManager
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(lifecycle *service.LifecycleManager) *MarketHandler {
	return &MarketHandler{lifecycle: lifecycle}
}

// initializeMarketRequest is the JSON request body for POST /markets.
type initializeMarketRequest struct {
	MarketID   uint64 `json:"market_id"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
}

type marketResponse struct {
	MarketID   uint64 `json:"market_id"`
	Authority  string `json:"authority"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	CreatedAt  string `json:"created_at"`
}

type quoteResponse struct {
	OrderID  uint64 `json:"order_id"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

type priceLevelResponse struct {
	Price         int64 `json:"price"`
	TotalQuantity int64 `json:"total_quantity"`
	OrderCount    int   `json:"order_count"`
}

// marketViewResponse is the JSON response for GET /markets/{market_id}.
// Nullable fields are always present.
type marketViewResponse struct {
	marketResponse
	LastOrderID uint64               `json:"last_order_id"`
	BestBid     *quoteResponse       `json:"best_bid"`
	BestAsk     *quoteResponse       `json:"best_ask"`
	Bids        []priceLevelResponse `json:"bids"`
	Asks        []priceLevelResponse `json:"asks"`
	Spread      *int64               `json:"spread"`
	MidPrice    *decimal.Decimal     `json:"mid_price"`
	LastPrice   *int64               `json:"last_price"`
	LastFillAt  *string              `json:"last_fill_at"`
}

type fillResponse struct {
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
	ExecutedAt   string `json:"executed_at"`
}

// Initialize handles POST /markets. The authenticated account becomes
// the market authority.
func (h *MarketHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeMarketRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	authority, _ := auth.Account(r.Context())

	m, err := h.lifecycle.InitializeMarket(r.Context(), service.InitializeMarketRequest{
		MarketID:   domain.MarketID(req.MarketID),
		BaseAsset:  req.BaseAsset,
		QuoteAsset: req.QuoteAsset,
		Authority:  authority,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildMarketResponse(m))
}

// List handles GET /markets.
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	markets := h.lifecycle.ListMarkets(r.Context())
	resp := make([]marketResponse, len(markets))
	for i, m := range markets {
		resp[i] = buildMarketResponse(m)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /markets/{market_id}.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseMarketID(w, r)
	if !ok {
		return
	}

	view, err := h.lifecycle.QueryMarket(r.Context(), marketID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := marketViewResponse{
		marketResponse: buildMarketResponse(view.Market),
		LastOrderID:    uint64(view.LastOrderID),
		Bids:           buildLevels(view.Bids),
		Asks:           buildLevels(view.Asks),
		Spread:         view.Spread,
		MidPrice:       view.MidPrice,
		LastPrice:      view.LastPrice,
	}
	if q := view.BestBid; q != nil {
		resp.BestBid = &quoteResponse{OrderID: uint64(q.OrderID), Price: q.Price, Quantity: q.Quantity}
	}
	if q := view.BestAsk; q != nil {
		resp.BestAsk = &quoteResponse{OrderID: uint64(q.OrderID), Price: q.Price, Quantity: q.Quantity}
	}
	if view.LastFillAt != nil {
		s := formatTime(*view.LastFillAt)
		resp.LastFillAt = &s
	}

	WriteJSON(w, http.StatusOK, resp)
}

// ListFills handles GET /markets/{market_id}/fills.
func (h *MarketHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseMarketID(w, r)
	if !ok {
		return
	}

	limit := defaultFillLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 || limit > maxFillLimit {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be an integer between 1 and 1000")
			return
		}
	}

	fills, err := h.lifecycle.ListFills(r.Context(), marketID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildFillResponses(fills))
}

func buildMarketResponse(m domain.Market) marketResponse {
	return marketResponse{
		MarketID:   uint64(m.MarketID),
		Authority:  m.Authority,
		BaseAsset:  m.BaseAsset,
		QuoteAsset: m.QuoteAsset,
		CreatedAt:  formatTime(m.CreatedAt),
	}
}

func buildLevels(levels []engine.PriceLevel) []priceLevelResponse {
	result := make([]priceLevelResponse, len(levels))
	for i, l := range levels {
		result[i] = priceLevelResponse{
			Price:         l.Price,
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		}
	}
	return result
}

// buildFillResponses converts domain fills to response fills.
func buildFillResponses(fills []domain.Fill) []fillResponse {
	result := make([]fillResponse, len(fills))
	for i, f := range fills {
		result[i] = fillResponse{
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
			ExecutedAt:   formatTime(f.ExecutedAt),
		}
	}
	return result
}

// parseMarketID reads the market_id URL parameter, writing a 400 when it
// is not a positive integer.
func parseMarketID(w http.ResponseWriter, r *http.Request) (domain.MarketID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "market_id"), 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "market_id must be a positive integer")
		return 0, false
	}
	return domain.MarketID(id), true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
