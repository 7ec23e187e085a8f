package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CashSessionOpen   = "open"
	CashSessionClosed = "closed"
)

type CashTxType string

const (
	CashOpening    CashTxType = "opening"
	CashClosing    CashTxType = "closing"
	CashWithdrawal CashTxType = "withdrawal"
	CashVoucher    CashTxType = "voucher"
	CashDeposit    CashTxType = "deposit"
)

type CashTransaction struct {
	ID          string          `json:"id"`
	Type        CashTxType      `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Operator    string          `json:"operator"`
	CreatedAt   time.Time       `json:"created_at"`
	// Method and CustomerID are set on deposits that settle a credit account.
	Method     PaymentMethod `json:"method,omitempty"`
	CustomerID string        `json:"customer_id,omitempty"`
}

type CashBalance struct {
	Cash  decimal.Decimal `json:"cash"`
	Card  decimal.Decimal `json:"card"`
	Pix   decimal.Decimal `json:"pix"`
	Total decimal.Decimal `json:"total"`
}

type CashSession struct {
	ID             string            `json:"id"`
	OpeningAmount  decimal.Decimal   `json:"opening_amount"`
	ClosingAmount  *decimal.Decimal  `json:"closing_amount,omitempty"`
	ClosingBalance *CashBalance      `json:"closing_balance,omitempty"`
	OpeningTime    time.Time         `json:"opening_time"`
	ClosingTime    *time.Time        `json:"closing_time,omitempty"`
	Operator       string            `json:"operator"`
	Status         string            `json:"status"`
	Transactions   []CashTransaction `json:"transactions"`
}

// Contains reports whether t falls inside the session window. A closed
// session covers [OpeningTime, ClosingTime); the closing instant belongs to
// whichever session opened then. An open session extends to now inclusive.
func (s CashSession) Contains(t time.Time, now time.Time) bool {
	if t.Before(s.OpeningTime) {
		return false
	}
	if s.ClosingTime != nil {
		return t.Before(*s.ClosingTime)
	}
	return !t.After(now)
}

type CashOpenRequest struct {
	OpeningAmount decimal.Decimal `json:"opening_amount"`
	Operator      string          `json:"operator,omitempty"`
}

type CashMovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required"`
}

type CashSessionResponse struct {
	Session CashSession `json:"session"`
	Balance CashBalance `json:"balance"`
	// Replaced is the session that was force-closed by this open, if any.
	Replaced *CashSession `json:"replaced,omitempty"`
}

type CashCloseRequest struct {
	SessionID string `json:"session_id,omitempty"`
}
