package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barberpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicate          = errors.New("duplicate record")
	ErrSessionNotOpen     = errors.New("no cash session is open")
	ErrConflict           = errors.New("state changed since it was read")
)

// PersistenceError reports that a change set was applied in memory but could
// not be written to the backing StateStore. The in-memory state has already
// been restored when this error is returned.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StateStore is the key/blob persistence port behind the working set.
type StateStore interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
}

type CatalogStore interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	SetStock(ctx context.Context, productID string, qty int) error
	GetService(ctx context.Context, id string) (*domain.Service, error)
}

type AppointmentStore interface {
	FindSameDayScheduled(ctx context.Context, customerID string, day time.Time) ([]domain.Appointment, error)
	MarkAppointmentCompleted(ctx context.Context, id string) error
}

type SaleFilter struct {
	CustomerID string
	Status     string
	From       *time.Time
	To         *time.Time
}

func (f SaleFilter) Match(sale domain.Sale) bool {
	if f.CustomerID != "" && sale.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && sale.Status != f.Status {
		return false
	}
	if f.From != nil && sale.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && sale.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

type Repository interface {
	CatalogStore
	AppointmentStore

	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
	ListBarbers(ctx context.Context) ([]domain.Barber, error)
	GetBarber(ctx context.Context, id string) (*domain.Barber, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListAppointments(ctx context.Context, day *time.Time) ([]domain.Appointment, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)

	GetCreditAccount(ctx context.Context, customerID string) (*domain.CreditAccount, error)
	ListCreditAccounts(ctx context.Context) ([]domain.CreditAccount, error)
	ListCreditTransactions(ctx context.Context, customerID string) ([]domain.CreditTransaction, error)

	GetActiveSession(ctx context.Context) (*domain.CashSession, error)
	GetSession(ctx context.Context, id string) (*domain.CashSession, error)
	ListSessions(ctx context.Context, limit int) ([]domain.CashSession, error)

	ListCommissionPayments(ctx context.Context, barberID string) ([]domain.CommissionPayment, error)

	// Revision increases with every applied change set.
	Revision(ctx context.Context) (uint64, error)

	// Apply validates every entry of the change set against the current state
	// and then applies all of them, or none.
	Apply(ctx context.Context, cs ChangeSet) error
}

type StockDelta struct {
	ProductID string
	Delta     int
}

type CreditStatusUpdate struct {
	TransactionID string
	Status        string
	PaidAt        *time.Time
}

type CashEntry struct {
	SessionID   string
	Transaction domain.CashTransaction
}

// ChangeSet stages every write produced by one business operation.
//
// Sessions and Accounts are upserts. CreditTransactions and CashEntries are
// appends; an account's TotalDebt is maintained by the store from the credit
// transactions it appends.
//
// A non-zero ExpectRevision makes Apply fail with ErrConflict when any other
// change set landed after that revision was read.
type ChangeSet struct {
	ExpectRevision uint64


	Sale                  *domain.Sale
	StockDeltas           []StockDelta
	Accounts              []domain.CreditAccount
	CreditTransactions    []domain.CreditTransaction
	CreditStatusUpdates   []CreditStatusUpdate
	CompletedAppointments []string
	Sessions              []domain.CashSession
	CashEntries           []CashEntry
	CommissionPayments    []domain.CommissionPayment

	Products     []domain.Product
	Services     []domain.Service
	Barbers      []domain.Barber
	Customers    []domain.Customer
	Appointments []domain.Appointment
}

func (cs ChangeSet) Empty() bool {
	return cs.Sale == nil &&
		len(cs.StockDeltas) == 0 &&
		len(cs.Accounts) == 0 &&
		len(cs.CreditTransactions) == 0 &&
		len(cs.CreditStatusUpdates) == 0 &&
		len(cs.CompletedAppointments) == 0 &&
		len(cs.Sessions) == 0 &&
		len(cs.CashEntries) == 0 &&
		len(cs.CommissionPayments) == 0 &&
		len(cs.Products) == 0 &&
		len(cs.Services) == 0 &&
		len(cs.Barbers) == 0 &&
		len(cs.Customers) == 0 &&
		len(cs.Appointments) == 0
}
