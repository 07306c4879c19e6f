package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Invalid wraps ErrValidation with a user-facing message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type StockShortfall struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Required    int    `json:"required"`
	Available   int    `json:"available"`
}

// StockError reports every line item that cannot be served.
type StockError struct {
	Details []StockShortfall
}

func (e *StockError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		name := d.ProductName
		if name == "" {
			name = d.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s (need %d, have %d)", name, d.Required, d.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }
