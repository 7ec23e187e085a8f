package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"barberpos/backend/internal/store"
)

var (
	ErrEmptyCart                = errors.New("cart is empty")
	ErrInvalidItem              = errors.New("invalid cart item")
	ErrMissingBarber            = errors.New("service items require a barber")
	ErrMissingCustomerForCredit = errors.New("credit payment requires a customer")
	ErrSessionNotOpen           = store.ErrSessionNotOpen
	ErrSessionAlreadyClosed     = errors.New("cash session already closed")
	ErrAccountNotFound          = errors.New("credit account not found")
	ErrAccountBlocked           = errors.New("credit account is not active")
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrMissingDescription       = errors.New("description is required")
	ErrMissingOperator          = errors.New("operator is required")
)

// InsufficientStockError reports a product line that asks for more units than
// are on hand. It matches store.ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == store.ErrInsufficientStock
}

// IncompletePaymentError reports allocations that do not add up to the cart
// total. Remaining is negative when the allocations exceed it.
type IncompletePaymentError struct {
	Remaining decimal.Decimal
}

func (e *IncompletePaymentError) Error() string {
	return fmt.Sprintf("payment incomplete: remaining %s", e.Remaining.StringFixed(2))
}
