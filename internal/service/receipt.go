package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"barberpos/backend/internal/domain"
)

// ReceiptEmitter hands a committed sale to whatever prints or files the
// receipt.
type ReceiptEmitter interface {
	Emit(ctx context.Context, sale domain.Sale) error
}

type LogReceiptEmitter struct {
	logger *zap.Logger
}

func NewLogReceiptEmitter(logger *zap.Logger) *LogReceiptEmitter {
	return &LogReceiptEmitter{logger: logger}
}

func (e *LogReceiptEmitter) Emit(_ context.Context, sale domain.Sale) error {
	lines := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, fmt.Sprintf("%s x%d @ %s", item.Name, item.Quantity, item.UnitPrice.StringFixed(2)))
	}
	e.logger.Info("receipt",
		zap.String("sale_id", sale.ID),
		zap.Time("created_at", sale.CreatedAt),
		zap.Strings("lines", lines),
		zap.String("subtotal", sale.Subtotal.StringFixed(2)),
		zap.String("discount", sale.Discount.StringFixed(2)),
		zap.String("total", sale.Total.StringFixed(2)),
		zap.String("payment_method", string(sale.PaymentMethod())),
	)
	return nil
}
