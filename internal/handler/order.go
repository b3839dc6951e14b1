package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/clob/internal/auth"
	"github.com/efreitasn/clob/internal/domain"
	"github.com/efreitasn/clob/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	lifecycle *service.LifecycleManager
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(lifecycle *service.LifecycleManager) *OrderHandler {
	return &OrderHandler{lifecycle: lifecycle}
}

// placeOrderRequest is the JSON request body for
// POST /markets/{market_id}/orders.
type placeOrderRequest struct {
	Side        string `json:"side"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	TimeInForce string `json:"time_in_force"`
}

// orderResponse is the JSON representation of an order.
// All fields are always present; nullable fields use pointers.
type orderResponse struct {
	OrderID           uint64  `json:"order_id"`
	MarketID          uint64  `json:"market_id"`
	Owner             string  `json:"owner"`
	Side              string  `json:"side"`
	Price             int64   `json:"price"`
	Quantity          int64   `json:"quantity"`
	FilledQuantity    int64   `json:"filled_quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	Status            string  `json:"status"`
	TimeInForce       string  `json:"time_in_force"`
	CreatedAt         string  `json:"created_at"`
	CancelledAt       *string `json:"cancelled_at"`
}

// placeOrderResponse carries the order and its fills. Error is set when
// settlement failed after some fills went through: the order exists with
// its remainder cancelled.
type placeOrderResponse struct {
	Order orderResponse  `json:"order"`
	Fills []fillResponse `json:"fills"`
	Error *errorResponse `json:"error,omitempty"`
}

// PlaceOrder handles POST /markets/{market_id}/orders. The authenticated
// account owns the order.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	marketID, ok := parseMarketID(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	owner, _ := auth.Account(r.Context())

	result, err := h.lifecycle.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		MarketID:    marketID,
		Owner:       owner,
		Side:        domain.Side(req.Side),
		Price:       req.Price,
		Quantity:    req.Quantity,
		TimeInForce: domain.TimeInForce(req.TimeInForce),
	})
	if result == nil {
		writeServiceError(w, err)
		return
	}

	resp := placeOrderResponse{
		Order: buildOrderResponse(result.Order),
		Fills: buildFillResponses(result.Fills),
	}
	if err != nil {
		resp.Error = &errorResponse{Error: errorCode(err), Message: err.Error()}
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// GetOrder handles GET /markets/{market_id}/orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	marketID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	order, err := h.lifecycle.GetOrder(r.Context(), marketID, orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /markets/{market_id}/orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	marketID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}
	requester, _ := auth.Account(r.Context())

	order, err := h.lifecycle.CancelOrder(r.Context(), marketID, orderID, requester)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// buildOrderResponse converts a domain order to its JSON representation.
func buildOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           uint64(o.OrderID),
		MarketID:          uint64(o.MarketID),
		Owner:             o.Owner,
		Side:              string(o.Side),
		Price:             o.Price,
		Quantity:          o.Quantity,
		FilledQuantity:    o.FilledQuantity,
		RemainingQuantity: o.Remaining(),
		Status:            string(o.Status),
		TimeInForce:       string(o.TimeInForce),
		CreatedAt:         formatTime(o.CreatedAt),
	}
	if o.Status == domain.OrderStatusCancelled {
		resp.RemainingQuantity = 0
	}
	if o.CancelledAt != nil {
		s := formatTime(*o.CancelledAt)
		resp.CancelledAt = &s
	}
	return resp
}

func parseOrderPath(w http.ResponseWriter, r *http.Request) (domain.MarketID, domain.OrderID, bool) {
	marketID, ok := parseMarketID(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be a positive integer")
		return 0, 0, false
	}
	return marketID, domain.OrderID(id), true
}
