package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/clob/internal/auth"
	"github.com/efreitasn/clob/internal/domain"
	"github.com/efreitasn/clob/internal/service"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accounts  *service.AccountService
	lifecycle *service.LifecycleManager
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService, lifecycle *service.LifecycleManager) *AccountHandler {
	return &AccountHandler{accounts: accounts, lifecycle: lifecycle}
}

// depositRequest is the JSON request body for
// POST /accounts/{account}/deposits.
type depositRequest struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type balanceResponse struct {
	Account  string                 `json:"account"`
	Balances []assetBalanceResponse `json:"balances"`
}

type assetBalanceResponse struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// orderListResponse is the paginated JSON response for
// GET /accounts/{account}/orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// Deposit handles POST /accounts/{account}/deposits. Accounts can only
// fund themselves.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account := auth.Canonical(chi.URLParam(r, "account"))
	if caller, _ := auth.Account(r.Context()); caller != account {
		WriteError(w, http.StatusForbidden, domain.ErrUnauthorized.Error(), "accounts can only deposit to themselves")
		return
	}

	var req depositRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.accounts.Deposit(r.Context(), service.DepositRequest{
		Account: account,
		Asset:   req.Asset,
		Amount:  req.Amount,
	}); err != nil {
		writeServiceError(w, err)
		return
	}

	h.writeBalance(w, r, account, http.StatusCreated)
}

// GetBalance handles GET /accounts/{account}/balances.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, auth.Canonical(chi.URLParam(r, "account")), http.StatusOK)
}

func (h *AccountHandler) writeBalance(w http.ResponseWriter, r *http.Request, account string, status int) {
	balance, err := h.accounts.GetBalance(r.Context(), account)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	balances := make([]assetBalanceResponse, len(balance.Balances))
	for i, b := range balance.Balances {
		balances[i] = assetBalanceResponse{Asset: b.Asset, Amount: b.Amount}
	}
	WriteJSON(w, status, balanceResponse{Account: balance.Account, Balances: balances})
}

// ListOrders handles GET /accounts/{account}/orders.
func (h *AccountHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	account := auth.Canonical(chi.URLParam(r, "account"))

	// Parse query params.
	var statusFilter *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.OrderStatus(s)
		statusFilter = &status
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	orders, total, err := h.lifecycle.ListOrders(r.Context(), service.ListOrdersRequest{
		Owner:  account,
		Status: statusFilter,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	summaries := make([]orderResponse, len(orders))
	for i, o := range orders {
		summaries[i] = buildOrderResponse(o)
	}

	WriteJSON(w, http.StatusOK, orderListResponse{
		Orders: summaries,
		Total:  total,
		Page:   page,
		Limit:  limit,
	})
}
