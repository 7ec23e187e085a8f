package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodLayout formats the monthly bucket commissions are grouped by.
const PeriodLayout = "2006-01"

type Commission struct {
	SaleID     string          `json:"sale_id"`
	ItemIndex  int             `json:"item_index"`
	BarberID   string          `json:"barber_id"`
	ServiceID  string          `json:"service_id"`
	Base       decimal.Decimal `json:"base"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
	Period     string          `json:"period"`
	SaleDate   time.Time       `json:"sale_date"`
}

type CommissionTotal struct {
	BarberID   string          `json:"barber_id"`
	BarberName string          `json:"barber_name,omitempty"`
	Period     string          `json:"period"`
	Services   int             `json:"services"`
	Amount     decimal.Decimal `json:"amount"`
	Paid       decimal.Decimal `json:"paid"`
}

type CommissionSummary struct {
	Period      string            `json:"period"`
	GeneratedAt time.Time         `json:"generated_at"`
	Totals      []CommissionTotal `json:"totals"`
	Amount      decimal.Decimal   `json:"amount"`
}

type CommissionPayment struct {
	ID        string          `json:"id"`
	BarberID  string          `json:"barber_id"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	PaidBy    string          `json:"paid_by"`
	CreatedAt time.Time       `json:"created_at"`
}

type CommissionPayRequest struct {
	BarberID string `json:"barber_id" validate:"required"`
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
}
