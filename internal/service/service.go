package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"barberpos/backend/internal/cache"
	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
	"barberpos/backend/internal/xid"
)

var tracer trace.Tracer = otel.Tracer("barberpos/backend/internal/service")

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger             *zap.Logger
	Cache              cache.CommissionCache
	CommissionCacheTTL time.Duration
	CreditDefaultLimit decimal.Decimal
	Receipts           ReceiptEmitter
	Now                Clock
}

// Service is the point-of-sale entry point. It owns one instance of each
// component and enforces the preconditions that span them, such as requiring
// an open cash session before a sale.
type Service struct {
	repo     store.Repository
	logger   *zap.Logger
	receipts ReceiptEmitter

	Inventory   *Inventory
	Credit      *CreditLedger
	Cash        *CashRegister
	Sales       *SaleComposer
	Commissions *Commissions
}

func New(repo store.Repository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = systemClock
	}
	receipts := opts.Receipts
	if receipts == nil {
		receipts = NewLogReceiptEmitter(logger)
	}

	inventory := NewInventory(repo, logger.Named("inventory"))
	credit := NewCreditLedger(repo, logger.Named("credit"), now, opts.CreditDefaultLimit)
	return &Service{
		repo:        repo,
		logger:      logger,
		receipts:    receipts,
		Inventory:   inventory,
		Credit:      credit,
		Cash:        NewCashRegister(repo, logger.Named("cash"), now),
		Sales:       NewSaleComposer(repo, inventory, credit, logger.Named("sales"), now),
		Commissions: NewCommissions(repo, opts.Cache, opts.CommissionCacheTTL, logger.Named("commissions"), now),
	}
}

// Checkout commits a sale at the counter. It is refused while no cash session
// is open. The receipt is emitted after the commit and a failure there does
// not undo the sale.
func (s *Service) Checkout(ctx context.Context, req domain.SaleRequest) (*domain.SaleResponse, error) {
	if _, err := s.repo.GetActiveSession(ctx); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotOpen
		}
		return nil, err
	}

	resp, err := s.Sales.Commit(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Duplicate {
		return resp, nil
	}

	if resp.Sale.HasServices() {
		s.Commissions.Invalidate(ctx, resp.Sale.CreatedAt.UTC().Format(domain.PeriodLayout))
	}
	if err := s.receipts.Emit(ctx, resp.Sale); err != nil {
		s.logger.Warn("receipt emission failed", zap.String("sale_id", resp.Sale.ID), zap.Error(err))
	}
	return resp, nil
}

func (s *Service) ValidateSale(ctx context.Context, req domain.SaleRequest) error {
	return s.Sales.Validate(ctx, req)
}

func (s *Service) ReverseSale(ctx context.Context, saleID string, reason string) (*domain.Sale, error) {
	sale, err := s.Sales.Reverse(ctx, saleID, reason)
	if err != nil {
		return nil, err
	}
	if sale.HasServices() {
		s.Commissions.Invalidate(ctx, sale.CreatedAt.UTC().Format(domain.PeriodLayout))
	}
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.SaleResponse, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSaleResponse(*sale, false), nil
}

func (s *Service) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SaveProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.Stock < 0 || product.MinStock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.Price.IsNegative() || product.Cost.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if err := s.repo.Apply(ctx, store.ChangeSet{Products: []domain.Product{product}}); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	return s.repo.ListServices(ctx)
}

func (s *Service) SaveService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	svc.ID = strings.TrimSpace(svc.ID)
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" || svc.Price.IsNegative() || svc.DurationMinutes < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if svc.CommissionPercentage.IsNegative() || svc.CommissionPercentage.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: commission percentage must be within 0 and 100", store.ErrInvalidTransaction)
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if err := s.repo.Apply(ctx, store.ChangeSet{Services: []domain.Service{svc}}); err != nil {
		return nil, err
	}
	s.Commissions.InvalidateService(ctx, svc.ID)
	return &svc, nil
}

func (s *Service) ListBarbers(ctx context.Context) ([]domain.Barber, error) {
	return s.repo.ListBarbers(ctx)
}

func (s *Service) SaveBarber(ctx context.Context, barber domain.Barber) (*domain.Barber, error) {
	barber.ID = strings.TrimSpace(barber.ID)
	barber.Name = strings.TrimSpace(barber.Name)
	if barber.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if barber.ID == "" {
		barber.ID = xid.New("barber")
	}
	if err := s.repo.Apply(ctx, store.ChangeSet{Barbers: []domain.Barber{barber}}); err != nil {
		return nil, err
	}
	return &barber, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) SaveCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.ID = strings.TrimSpace(customer.ID)
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = s.Credit.now()
	}
	if err := s.repo.Apply(ctx, store.ChangeSet{Customers: []domain.Customer{customer}}); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Service) ListAppointments(ctx context.Context, day *time.Time) ([]domain.Appointment, error) {
	return s.repo.ListAppointments(ctx, day)
}

// ScheduleAppointment books a service with a barber. The appointment is
// completed automatically when the customer checks out a service that day.
func (s *Service) ScheduleAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if appt.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled_at is required", store.ErrInvalidTransaction)
	}
	if _, err := s.repo.GetCustomer(ctx, appt.CustomerID); err != nil {
		return nil, fmt.Errorf("customer %s: %w", appt.CustomerID, err)
	}
	if _, err := s.repo.GetBarber(ctx, appt.BarberID); err != nil {
		return nil, fmt.Errorf("barber %s: %w", appt.BarberID, err)
	}
	if _, err := s.repo.GetService(ctx, appt.ServiceID); err != nil {
		return nil, fmt.Errorf("service %s: %w", appt.ServiceID, err)
	}
	appt.ID = xid.New("appt")
	appt.Status = domain.AppointmentScheduled
	appt.CompletedAt = nil
	if err := s.repo.Apply(ctx, store.ChangeSet{Appointments: []domain.Appointment{appt}}); err != nil {
		return nil, err
	}
	return &appt, nil
}
