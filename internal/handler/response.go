package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/efreitasn/clob/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// sentinels lists the domain errors exposed as error codes, most
// specific first.
var sentinels = []error{
	domain.ErrInsufficientFunds,
	domain.ErrSettlementFailed,
	domain.ErrInvalidPrice,
	domain.ErrInvalidQuantity,
	domain.ErrUnauthorized,
	domain.ErrOrderNotActive,
	domain.ErrDuplicateOrder,
	domain.ErrDuplicateMarket,
	domain.ErrMarketNotFound,
	domain.ErrNotFound,
	domain.ErrOverflow,
}

// errorCode returns the code of the first domain sentinel err wraps.
func errorCode(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal_error"
}

// errorStatus maps err onto an HTTP status by its error class.
func errorStatus(err error) int {
	switch domain.Classify(err) {
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassAuthorization:
		return http.StatusForbidden
	case domain.ClassStateConflict:
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrMarketNotFound) {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case domain.ClassArithmetic:
		return http.StatusUnprocessableEntity
	case domain.ClassSettlement:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeServiceError maps an error returned by the service layer to an
// HTTP response.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		WriteError(w, status, "internal_error", "An unexpected error occurred")
		return
	}
	WriteError(w, status, errorCode(err), err.Error())
}

// writeAuthError rejects a request whose identity could not be verified.
func writeAuthError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
}
