package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyTolerance is the largest difference two amounts may have and still be
// treated as equal when reconciling payments against a total.
var MoneyTolerance = decimal.RequireFromString("0.01")

// MoneyEqual reports whether a and b differ by less than MoneyTolerance.
func MoneyEqual(a decimal.Decimal, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(MoneyTolerance)
}

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Barcode  string          `json:"barcode,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
	Stock    int             `json:"stock"`
	MinStock int             `json:"min_stock"`
}

type Service struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Price                decimal.Decimal `json:"price"`
	DurationMinutes      int             `json:"duration_minutes"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
}

type Barber struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

type Appointment struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	BarberID    string     `json:"barber_id"`
	ServiceID   string     `json:"service_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	PIN      string `json:"pin" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StockCountRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" validate:"gte=1"`
}
