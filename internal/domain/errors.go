package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for domain-level error handling. They are usually
// returned wrapped in an *Error that carries the identifying ids; match
// them with errors.Is.
var (
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrOrderNotActive    = errors.New("order_not_active")
	ErrDuplicateOrder    = errors.New("duplicate_order")
	ErrDuplicateMarket   = errors.New("duplicate_market")
	ErrNotFound          = errors.New("not_found")
	ErrMarketNotFound    = errors.New("market_not_found")
	ErrOverflow          = errors.New("overflow")
	ErrSettlementFailed  = errors.New("settlement_failed")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrMakerUnfunded     = errors.New("maker_unfunded")
)

// Error attaches the failing operation and the affected market/order to
// a sentinel error.
type Error struct {
	Op       string
	MarketID MarketID
	OrderID  OrderID // zero when the failure is not about a single order
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	fmt.Fprintf(&b, " market=%d", e.MarketID)
	if e.OrderID != 0 {
		fmt.Fprintf(&b, " order=%d", e.OrderID)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MarketErr wraps err for an operation on a whole market.
func MarketErr(op string, marketID MarketID, err error) error {
	return &Error{Op: op, MarketID: marketID, Err: err}
}

// OrderErr wraps err for an operation on a single order.
func OrderErr(op string, marketID MarketID, orderID OrderID, err error) error {
	return &Error{Op: op, MarketID: marketID, OrderID: orderID, Err: err}
}

// FundsError reports a debit that would take a balance below zero. It
// matches ErrInsufficientFunds.
type FundsError struct {
	Account string
	Asset   string
	Amount  int64
	Balance int64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("debit %s/%s by %d (balance %d): %s",
		e.Account, e.Asset, e.Amount, e.Balance, ErrInsufficientFunds)
}

func (e *FundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrorClass groups errors by how a caller is expected to react.
type ErrorClass string

const (
	ClassValidation    ErrorClass = "validation"
	ClassAuthorization ErrorClass = "authorization"
	ClassStateConflict ErrorClass = "state_conflict"
	ClassArithmetic    ErrorClass = "arithmetic"
	ClassSettlement    ErrorClass = "settlement"
	ClassInternal      ErrorClass = "internal"
)

// Classify maps err onto the error taxonomy.
func Classify(err error) ErrorClass {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidQuantity):
		return ClassValidation
	case errors.Is(err, ErrUnauthorized):
		return ClassAuthorization
	case errors.Is(err, ErrOrderNotActive),
		errors.Is(err, ErrDuplicateOrder),
		errors.Is(err, ErrDuplicateMarket),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrMarketNotFound):
		return ClassStateConflict
	case errors.Is(err, ErrSettlementFailed), errors.Is(err, ErrInsufficientFunds):
		return ClassSettlement
	case errors.Is(err, ErrOverflow):
		return ClassArithmetic
	}
	return ClassInternal
}
