package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CreditAccountActive  = "active"
	CreditAccountBlocked = "blocked"
	CreditAccountClosed  = "closed"
)

type CreditTxType string

const (
	CreditPurchase   CreditTxType = "purchase"
	CreditPayment    CreditTxType = "payment"
	CreditAdjustment CreditTxType = "adjustment"
)

func (t CreditTxType) Valid() bool {
	switch t {
	case CreditPurchase, CreditPayment, CreditAdjustment:
		return true
	default:
		return false
	}
}

// Delta is the signed effect of an entry of this type on an account's debt.
func (t CreditTxType) Delta(amount decimal.Decimal) decimal.Decimal {
	if t == CreditPurchase {
		return amount
	}
	return amount.Neg()
}

const (
	CreditTxPending = "pending"
	CreditTxPaid    = "paid"
	CreditTxOverdue = "overdue"
)

type CreditAccount struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Limit        decimal.Decimal `json:"limit"`
	TotalDebt    decimal.Decimal `json:"total_debt"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a CreditAccount) AvailableCredit() decimal.Decimal {
	return a.Limit.Sub(a.TotalDebt)
}

type CreditTransaction struct {
	ID              string          `json:"id"`
	CreditAccountID string          `json:"credit_account_id"`
	CustomerID      string          `json:"customer_id"`
	SaleID          string          `json:"sale_id,omitempty"`
	Type            CreditTxType    `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

type CreditAccountRequest struct {
	CustomerID   string          `json:"customer_id" validate:"required"`
	CustomerName string          `json:"customer_name"`
	Limit        decimal.Decimal `json:"limit"`
}

type CreditAccountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active blocked closed"`
}

type CreditPaymentRequest struct {
	CustomerID string          `json:"customer_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method" validate:"required,oneof=cash card pix"`
}

type CreditPaymentResponse struct {
	Transaction     CreditTransaction `json:"transaction"`
	Account         CreditAccount     `json:"account"`
	CashTransaction *CashTransaction  `json:"cash_transaction,omitempty"`
}

type CreditBalanceResponse struct {
	CustomerID  string          `json:"customer_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
	SaleDerived decimal.Decimal `json:"sale_derived"`
	Consistent  bool            `json:"consistent"`
}

// CreditEntryRequest records a manual ledger entry, typically an adjustment.
type CreditEntryRequest struct {
	Type        CreditTxType    `json:"type" validate:"required,oneof=purchase payment adjustment"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required"`
}
