package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotConfigured       = errors.New("not configured")
	ErrProvider            = errors.New("payment provider error")
	ErrServerUnavailable   = errors.New("server unavailable")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrOrderConflict       = errors.New("order reference conflict")
)

// A TotalsMismatchError reports a client total that differs from the server total.
type TotalsMismatchError struct {
	ServerTotal float64
	ClientTotal float64
}

func (e *TotalsMismatchError) Error() string {
	return fmt.Sprintf(
		"totals mismatch: server %s, client %s",
		FormatMoney(e.ServerTotal), FormatMoney(e.ClientTotal),
	)
}

type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock: " + ShortageMessage(e.Shortages)
}

// ShortageMessage lists each product with its available stock.
func ShortageMessage(ss []StockShortage) string {
	parts := make([]string, 0, len(ss))
	for _, s := range ss {
		parts = append(parts, fmt.Sprintf("%s (stock: %d)", s.ProductName, s.AvailableStock))
	}
	return strings.Join(parts, ", ")
}

// A ValidationError lists missing required fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}
