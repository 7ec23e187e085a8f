package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
	"barberpos/backend/internal/xid"
)

// SaleComposer turns a cart into a committed sale. Every side effect of a
// commit is staged into one change set and applied all-or-nothing.
type SaleComposer struct {
	repo      store.Repository
	inventory *Inventory
	credit    *CreditLedger
	logger    *zap.Logger
	now       Clock
}

func NewSaleComposer(repo store.Repository, inventory *Inventory, credit *CreditLedger, logger *zap.Logger, now Clock) *SaleComposer {
	return &SaleComposer{repo: repo, inventory: inventory, credit: credit, logger: logger, now: now}
}

type salePlan struct {
	items    []domain.SaleItem
	deltas   []store.StockDelta
	subtotal decimal.Decimal
	total    decimal.Decimal
}

// Validate runs every precondition of Commit without changing anything. The
// first failing check wins, in this order: empty cart, malformed line, stock,
// payment total, barber for service lines, customer for credit.
func (sc *SaleComposer) Validate(ctx context.Context, req domain.SaleRequest) error {
	_, err := sc.plan(ctx, req)
	return err
}

func (sc *SaleComposer) plan(ctx context.Context, req domain.SaleRequest) (*salePlan, error) {
	if len(req.Cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]domain.SaleItem, 0, len(req.Cart.Items))
	for i, line := range req.Cart.Items {
		item, err := sc.snapshotLine(ctx, i, line)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if req.Cart.Discount.IsNegative() {
		return nil, fmt.Errorf("%w: negative cart discount", ErrInvalidItem)
	}
	subtotal := req.Cart.Subtotal()
	total := req.Cart.Total()
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: discount exceeds subtotal", ErrInvalidItem)
	}

	deltas, err := sc.inventory.Plan(ctx, req.Cart.Items)
	if err != nil {
		return nil, err
	}

	for _, amount := range []*decimal.Decimal{req.Payment.Cash, req.Payment.Card, req.Payment.Pix, req.Payment.Credit} {
		if amount != nil && amount.IsNegative() {
			return nil, fmt.Errorf("%w: negative payment amount", store.ErrInvalidTransaction)
		}
	}
	if remaining := total.Sub(req.Payment.Sum()); !domain.MoneyEqual(remaining, decimal.Zero) {
		return nil, &IncompletePaymentError{Remaining: remaining}
	}

	for i := range items {
		if items[i].Type != domain.ItemService {
			continue
		}
		if items[i].BarberID == "" {
			items[i].BarberID = strings.TrimSpace(req.BarberID)
		}
		if items[i].BarberID == "" {
			return nil, ErrMissingBarber
		}
	}

	if req.Payment.CreditAmount().IsPositive() && strings.TrimSpace(req.CustomerID) == "" {
		return nil, ErrMissingCustomerForCredit
	}

	return &salePlan{items: items, deltas: deltas, subtotal: subtotal, total: total}, nil
}

func (sc *SaleComposer) snapshotLine(ctx context.Context, index int, line domain.CartItem) (domain.SaleItem, error) {
	if line.Quantity < 1 {
		return domain.SaleItem{}, fmt.Errorf("%w: line %d quantity %d", ErrInvalidItem, index, line.Quantity)
	}
	if line.UnitPrice.IsNegative() || line.Discount.IsNegative() {
		return domain.SaleItem{}, fmt.Errorf("%w: line %d has a negative amount", ErrInvalidItem, index)
	}

	item := domain.SaleItem{
		Type:      line.Type,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		Discount:  line.Discount,
		BarberID:  strings.TrimSpace(line.BarberID),
	}

	switch line.Type {
	case domain.ItemProduct:
		if line.ProductID == "" || line.ServiceID != "" {
			return domain.SaleItem{}, fmt.Errorf("%w: line %d needs exactly a product id", ErrInvalidItem, index)
		}
		product, err := sc.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SaleItem{}, fmt.Errorf("%w: product %s not found", ErrInvalidItem, line.ProductID)
			}
			return domain.SaleItem{}, err
		}
		item.ProductID = product.ID
		item.Name = product.Name
	case domain.ItemService:
		if line.ServiceID == "" || line.ProductID != "" {
			return domain.SaleItem{}, fmt.Errorf("%w: line %d needs exactly a service id", ErrInvalidItem, index)
		}
		svc, err := sc.repo.GetService(ctx, line.ServiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.SaleItem{}, fmt.Errorf("%w: service %s not found", ErrInvalidItem, line.ServiceID)
			}
			return domain.SaleItem{}, err
		}
		item.ServiceID = svc.ID
		item.Name = svc.Name
	default:
		return domain.SaleItem{}, fmt.Errorf("%w: line %d type %q", ErrInvalidItem, index, line.Type)
	}
	return item, nil
}

// Commit validates the request and applies the sale, its stock decrements,
// the credit purchase (opening the customer's account when needed) and the
// completion of same-day appointments as one change set. A repeated
// idempotency key returns the original sale.
func (sc *SaleComposer) Commit(ctx context.Context, req domain.SaleRequest) (*domain.SaleResponse, error) {
	ctx, span := tracer.Start(ctx, "SaleComposer.Commit")
	defer span.End()

	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.IdempotencyKey != "" {
		if existing, err := sc.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); err == nil {
			span.SetAttributes(attribute.Bool("duplicate", true))
			return toSaleResponse(*existing, true), nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	plan, err := sc.plan(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := sc.now()
	sale := domain.Sale{
		ID:             xid.New("sale"),
		CustomerID:     req.CustomerID,
		IdempotencyKey: req.IdempotencyKey,
		Items:          plan.items,
		Subtotal:       plan.subtotal,
		Discount:       req.Cart.Discount,
		Total:          plan.total,
		Payment:        req.Payment,
		Status:         domain.SaleStatusCompleted,
		CreatedAt:      now,
	}
	if actor, ok := ActorFromContext(ctx); ok {
		sale.Operator = actor.Username
	}
	if session, err := sc.repo.GetActiveSession(ctx); err == nil {
		sale.SessionID = session.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sale_id", sale.ID),
		attribute.String("payment_method", string(sale.PaymentMethod())),
	)

	cs := store.ChangeSet{Sale: &sale, StockDeltas: plan.deltas}

	if credit := sale.Payment.CreditAmount(); credit.IsPositive() {
		opened, entry, err := sc.credit.stagePurchase(ctx, sale.CustomerID, credit, sale.ID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		cs.Accounts = opened
		cs.CreditTransactions = []domain.CreditTransaction{entry}
	}

	if sale.HasServices() && sale.CustomerID != "" {
		appointments, err := sc.repo.FindSameDayScheduled(ctx, sale.CustomerID, now)
		if err != nil {
			return nil, err
		}
		for _, appt := range appointments {
			cs.CompletedAppointments = append(cs.CompletedAppointments, appt.ID)
		}
	}

	if err := sc.repo.Apply(ctx, cs); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			existing, findErr := sc.repo.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
			if findErr == nil {
				return toSaleResponse(*existing, true), nil
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("commit sale: %w", err)
	}

	sc.logger.Info("sale committed",
		zap.String("sale_id", sale.ID),
		zap.String("total", sale.Total.String()),
		zap.String("payment_method", string(sale.PaymentMethod())),
		zap.Int("items", len(sale.Items)),
		zap.Int("appointments_completed", len(cs.CompletedAppointments)),
		zap.Bool("account_opened", len(cs.Accounts) > 0),
	)
	return toSaleResponse(sale, false), nil
}

// Reverse cancels a completed sale: stock is put back and the credit portion
// is written off the customer's account with an adjustment entry.
func (sc *SaleComposer) Reverse(ctx context.Context, saleID string, reason string) (*domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "SaleComposer.Reverse")
	defer span.End()
	span.SetAttributes(attribute.String("sale_id", saleID))

	sale, err := sc.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusCompleted {
		return nil, fmt.Errorf("%w: sale %s is %s", store.ErrInvalidTransaction, sale.ID, sale.Status)
	}

	reason = strings.TrimSpace(reason)
	cs := store.ChangeSet{}
	for _, item := range sale.Items {
		if item.Type == domain.ItemProduct {
			cs.StockDeltas = append(cs.StockDeltas, restockDeltas(item.ProductID, item.Quantity)...)
		}
	}

	adjustment, updates, err := sc.credit.stageReversal(ctx, *sale, reason)
	if err != nil {
		return nil, err
	}
	if adjustment != nil {
		cs.CreditTransactions = []domain.CreditTransaction{*adjustment}
		cs.CreditStatusUpdates = updates
	}

	cancelledAt := sc.now()
	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &cancelledAt
	sale.CancelReason = reason
	cs.Sale = sale

	if err := sc.repo.Apply(ctx, cs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reverse sale: %w", err)
	}

	sc.logger.Info("sale reversed",
		zap.String("sale_id", sale.ID),
		zap.String("reason", reason),
		zap.Bool("credit_adjusted", adjustment != nil),
	)
	return sale, nil
}

func toSaleResponse(sale domain.Sale, duplicate bool) *domain.SaleResponse {
	return &domain.SaleResponse{
		Sale:          sale,
		PaymentMethod: sale.PaymentMethod(),
		Duplicate:     duplicate,
	}
}
