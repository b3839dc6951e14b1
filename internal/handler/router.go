package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/efreitasn/clob/internal/auth"
	"github.com/efreitasn/clob/internal/metrics"
	"github.com/efreitasn/clob/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// CORS, and Content-Type validation middleware. Mutating routes require an
// identity verified by verifier and, when nonces is set, a fresh nonce.
func NewRouter(
	lifecycle *service.LifecycleManager,
	accounts *service.AccountService,
	verifier auth.Verifier,
	nonces *auth.NonceGuard,
	corsOrigins []string,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", auth.HeaderAccount, auth.HeaderNonce, auth.HeaderSignature},
	}).Handler)
	r.Use(contentTypeJSON)

	// Create handlers.
	marketH := NewMarketHandler(lifecycle)
	orderH := NewOrderHandler(lifecycle)
	accountH := NewAccountHandler(accounts, lifecycle)

	// Health check and metrics.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Reads.
	r.Get("/markets", marketH.List)
	r.Get("/markets/{market_id}", marketH.Get)
	r.Get("/markets/{market_id}/fills", marketH.ListFills)
	r.Get("/markets/{market_id}/orders/{order_id}", orderH.GetOrder)
	r.Get("/accounts/{account}/balances", accountH.GetBalance)
	r.Get("/accounts/{account}/orders", accountH.ListOrders)

	// Mutations.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, nonces, writeAuthError))

		r.Post("/markets", marketH.Initialize)
		r.Post("/markets/{market_id}/orders", orderH.PlaceOrder)
		r.Delete("/markets/{market_id}/orders/{order_id}", orderH.CancelOrder)
		r.Post("/accounts/{account}/deposits", accountH.Deposit)
	})

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
