package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemType string

const (
	ItemProduct ItemType = "product"
	ItemService ItemType = "service"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentPix    PaymentMethod = "pix"
	PaymentCredit PaymentMethod = "credit"
	PaymentMixed  PaymentMethod = "mixed"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentPix, PaymentCredit, PaymentMixed:
		return true
	default:
		return false
	}
}

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

type CartItem struct {
	Type      ItemType        `json:"type" validate:"required,oneof=product service"`
	ProductID string          `json:"product_id,omitempty"`
	ServiceID string          `json:"service_id,omitempty"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	BarberID  string          `json:"barber_id,omitempty"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
}

type Cart struct {
	Items    []CartItem      `json:"items" validate:"dive"`
	Discount decimal.Decimal `json:"discount"`
}

func (c Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range c.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return subtotal
}

func (c Cart) Total() decimal.Decimal {
	return c.Subtotal().Sub(c.Discount)
}

func (c Cart) HasServices() bool {
	for _, item := range c.Items {
		if item.Type == ItemService {
			return true
		}
	}
	return false
}

// PaymentAllocation is how a sale total is split across payment instruments.
// A nil amount means the instrument was not used.
type PaymentAllocation struct {
	Cash   *decimal.Decimal `json:"cash_amount,omitempty"`
	Card   *decimal.Decimal `json:"card_amount,omitempty"`
	Pix    *decimal.Decimal `json:"pix_amount,omitempty"`
	Credit *decimal.Decimal `json:"credit_amount,omitempty"`
}

func amountOf(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}

func (p PaymentAllocation) CashAmount() decimal.Decimal   { return amountOf(p.Cash) }
func (p PaymentAllocation) CardAmount() decimal.Decimal   { return amountOf(p.Card) }
func (p PaymentAllocation) PixAmount() decimal.Decimal    { return amountOf(p.Pix) }
func (p PaymentAllocation) CreditAmount() decimal.Decimal { return amountOf(p.Credit) }

func (p PaymentAllocation) Sum() decimal.Decimal {
	return p.CashAmount().Add(p.CardAmount()).Add(p.PixAmount()).Add(p.CreditAmount())
}

// Empty reports whether no instrument carries an amount, which is how legacy
// sales recorded before the per-method breakdown look.
func (p PaymentAllocation) Empty() bool {
	return p.Cash == nil && p.Card == nil && p.Pix == nil && p.Credit == nil
}

// Method derives the payment tag from the non-zero allocations.
func (p PaymentAllocation) Method(total decimal.Decimal) PaymentMethod {
	used := make([]PaymentMethod, 0, 4)
	for _, entry := range []struct {
		method PaymentMethod
		amount decimal.Decimal
	}{
		{PaymentCash, p.CashAmount()},
		{PaymentCard, p.CardAmount()},
		{PaymentPix, p.PixAmount()},
		{PaymentCredit, p.CreditAmount()},
	} {
		if entry.amount.IsPositive() {
			used = append(used, entry.method)
		}
	}

	switch {
	case p.CreditAmount().IsPositive() && MoneyEqual(p.CreditAmount(), total):
		return PaymentCredit
	case len(used) > 1:
		return PaymentMixed
	case len(used) == 1:
		return used[0]
	default:
		return PaymentCash
	}
}

type SaleItem struct {
	Type      ItemType        `json:"type"`
	ProductID string          `json:"product_id,omitempty"`
	ServiceID string          `json:"service_id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	BarberID  string          `json:"barber_id,omitempty"`
}

type Sale struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer_id,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	Operator       string            `json:"operator,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Items          []SaleItem        `json:"items"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	Discount       decimal.Decimal   `json:"discount"`
	Total          decimal.Decimal   `json:"total"`
	Payment        PaymentAllocation `json:"payment"`
	// LegacyMethod is only consulted when Payment carries no breakdown.
	LegacyMethod PaymentMethod `json:"legacy_payment_method,omitempty"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason string        `json:"cancel_reason,omitempty"`
}

func (s Sale) PaymentMethod() PaymentMethod {
	if s.Payment.Empty() && s.LegacyMethod.Valid() {
		return s.LegacyMethod
	}
	return s.Payment.Method(s.Total)
}

func (s Sale) HasServices() bool {
	for _, item := range s.Items {
		if item.Type == ItemService {
			return true
		}
	}
	return false
}

type SaleRequest struct {
	Cart           Cart              `json:"cart"`
	Payment        PaymentAllocation `json:"payment"`
	CustomerID     string            `json:"customer_id,omitempty"`
	BarberID       string            `json:"barber_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type SaleResponse struct {
	Sale          Sale          `json:"sale"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Duplicate     bool          `json:"duplicate"`
}

type SaleReverseRequest struct {
	Reason string `json:"reason" validate:"required"`
}
