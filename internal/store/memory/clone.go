package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"barberpos/backend/internal/domain"
)

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	dup.Payment = domain.PaymentAllocation{
		Cash:   cloneDecimal(src.Payment.Cash),
		Card:   cloneDecimal(src.Payment.Card),
		Pix:    cloneDecimal(src.Payment.Pix),
		Credit: cloneDecimal(src.Payment.Credit),
	}
	dup.CancelledAt = cloneTime(src.CancelledAt)
	return dup
}

func cloneSession(src domain.CashSession) domain.CashSession {
	dup := src
	txs := make([]domain.CashTransaction, len(src.Transactions))
	copy(txs, src.Transactions)
	dup.Transactions = txs
	dup.ClosingAmount = cloneDecimal(src.ClosingAmount)
	dup.ClosingTime = cloneTime(src.ClosingTime)
	if src.ClosingBalance != nil {
		balance := *src.ClosingBalance
		dup.ClosingBalance = &balance
	}
	return dup
}

func cloneAppointment(src domain.Appointment) domain.Appointment {
	dup := src
	dup.CompletedAt = cloneTime(src.CompletedAt)
	return dup
}

func cloneCreditTransaction(src domain.CreditTransaction) domain.CreditTransaction {
	dup := src
	dup.PaidAt = cloneTime(src.PaidAt)
	return dup
}

func cloneDecimal(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	dup := *v
	return &dup
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	dup := *v
	return &dup
}
