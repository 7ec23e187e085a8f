package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
)

// StateKey is the key the working set is saved under in the StateStore.
const StateKey = "barberpos_state"

type data struct {
	Products           map[string]domain.Product       `json:"products"`
	Services           map[string]domain.Service       `json:"services"`
	Barbers            map[string]domain.Barber        `json:"barbers"`
	Customers          map[string]domain.Customer      `json:"customers"`
	Appointments       map[string]domain.Appointment   `json:"appointments"`
	Sales              map[string]domain.Sale          `json:"sales"`
	Accounts           map[string]domain.CreditAccount `json:"credit_accounts"`
	CreditTransactions []domain.CreditTransaction      `json:"credit_transactions"`
	Sessions           map[string]domain.CashSession   `json:"cash_sessions"`
	CommissionPayments []domain.CommissionPayment      `json:"commission_payments"`
}

func emptyData() data {
	return data{
		Products:           make(map[string]domain.Product),
		Services:           make(map[string]domain.Service),
		Barbers:            make(map[string]domain.Barber),
		Customers:          make(map[string]domain.Customer),
		Appointments:       make(map[string]domain.Appointment),
		Sales:              make(map[string]domain.Sale),
		Accounts:           make(map[string]domain.CreditAccount),
		CreditTransactions: make([]domain.CreditTransaction, 0, 64),
		Sessions:           make(map[string]domain.CashSession),
		CommissionPayments: make([]domain.CommissionPayment, 0, 16),
	}
}

// Store is the in-memory working set. When a StateStore backend is attached
// every applied change set is written through to it.
type Store struct {
	mu         sync.RWMutex
	data       data
	saleByIdem map[string]string
	backend    store.StateStore
	now        func() time.Time
	rev        uint64
}

func New() *Store {
	s := &Store{data: emptyData(), now: func() time.Time { return time.Now().UTC() }, rev: 1}
	s.reindex()
	return s
}

func NewSeeded() *Store {
	s := New()
	s.data = seedData(s.now())
	s.reindex()
	return s
}

// Open loads the working set from backend. When nothing has been saved yet the
// store starts empty, or with the demo catalog when seed is true, and writes
// that initial state back.
func Open(ctx context.Context, backend store.StateStore, seed bool) (*Store, error) {
	s := New()
	s.backend = backend

	raw, found, err := backend.Load(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if found {
		loaded := emptyData()
		if err := json.Unmarshal(raw, &loaded); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		loaded.fillNil()
		s.data = loaded
		s.reindex()
		return s, nil
	}

	if seed {
		s.data = seedData(s.now())
		s.reindex()
	}
	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SetClock replaces the time source used to stamp register sales and
// appointment completions.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.data.Products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 0 {
		return store.ErrInvalidTransaction
	}
	product, ok := s.data.Products[productID]
	if !ok {
		return store.ErrNotFound
	}
	product.Stock = qty
	return s.applyLocked(ctx, store.ChangeSet{Products: []domain.Product{product}})
}

func (s *Store) GetService(_ context.Context, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.data.Services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &svc, nil
}

func (s *Store) FindSameDayScheduled(_ context.Context, customerID string, day time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Appointment, 0, 2)
	for _, appt := range s.data.Appointments {
		if appt.CustomerID != customerID || appt.Status != domain.AppointmentScheduled {
			continue
		}
		if !sameDay(appt.ScheduledAt, day) {
			continue
		}
		out = append(out, cloneAppointment(appt))
	}
	slices.SortFunc(out, func(a, b domain.Appointment) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})
	return out, nil
}

func (s *Store) MarkAppointmentCompleted(ctx context.Context, id string) error {
	return s.Apply(ctx, store.ChangeSet{CompletedAppointments: []string{id}})
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.data.Products))
	for _, p := range s.data.Products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) ListServices(_ context.Context) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]domain.Service, 0, len(s.data.Services))
	for _, svc := range s.data.Services {
		services = append(services, svc)
	}
	slices.SortFunc(services, func(a, b domain.Service) int {
		return cmpString(a.Name, b.Name)
	})
	return services, nil
}

func (s *Store) ListBarbers(_ context.Context) ([]domain.Barber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	barbers := make([]domain.Barber, 0, len(s.data.Barbers))
	for _, b := range s.data.Barbers {
		barbers = append(barbers, b)
	}
	slices.SortFunc(barbers, func(a, b domain.Barber) int {
		return cmpString(a.Name, b.Name)
	})
	return barbers, nil
}

func (s *Store) GetBarber(_ context.Context, id string) (*domain.Barber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	barber, ok := s.data.Barbers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &barber, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.data.Customers))
	for _, c := range s.data.Customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.data.Customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListAppointments(_ context.Context, day *time.Time) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Appointment, 0, len(s.data.Appointments))
	for _, appt := range s.data.Appointments {
		if day != nil && !sameDay(appt.ScheduledAt, *day) {
			continue
		}
		out = append(out, cloneAppointment(appt))
	}
	slices.SortFunc(out, func(a, b domain.Appointment) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})
	return out, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.data.Sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.saleByIdem[key]
	if !ok || key == "" {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(s.data.Sales[id])
	return &dup, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.data.Sales))
	for _, sale := range s.data.Sales {
		if !filter.Match(sale) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return sales, nil
}

func (s *Store) GetCreditAccount(_ context.Context, customerID string) (*domain.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.data.Accounts[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &account, nil
}

func (s *Store) ListCreditAccounts(_ context.Context) ([]domain.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.CreditAccount, 0, len(s.data.Accounts))
	for _, account := range s.data.Accounts {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b domain.CreditAccount) int {
		return cmpString(a.CustomerName, b.CustomerName)
	})
	return accounts, nil
}

// ListCreditTransactions returns the ledger of one customer in insertion
// order, or the whole ledger when customerID is empty.
func (s *Store) ListCreditTransactions(_ context.Context, customerID string) ([]domain.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CreditTransaction, 0, 16)
	for _, entry := range s.data.CreditTransactions {
		if customerID != "" && entry.CustomerID != customerID {
			continue
		}
		out = append(out, cloneCreditTransaction(entry))
	}
	return out, nil
}

func (s *Store) GetActiveSession(_ context.Context) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.data.Sessions {
		if session.Status == domain.CashSessionOpen {
			dup := cloneSession(session)
			return &dup, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetSession(_ context.Context, id string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data.Sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSession(session)
	return &dup, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(_ context.Context, limit int) ([]domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]domain.CashSession, 0, len(s.data.Sessions))
	for _, session := range s.data.Sessions {
		sessions = append(sessions, cloneSession(session))
	}
	slices.SortFunc(sessions, func(a, b domain.CashSession) int {
		return b.OpeningTime.Compare(a.OpeningTime)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *Store) ListCommissionPayments(_ context.Context, barberID string) ([]domain.CommissionPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CommissionPayment, 0, len(s.data.CommissionPayments))
	for _, payment := range s.data.CommissionPayments {
		if barberID != "" && payment.BarberID != barberID {
			continue
		}
		out = append(out, payment)
	}
	return out, nil
}

func (s *Store) Revision(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev, nil
}

func (s *Store) Apply(ctx context.Context, cs store.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(ctx, cs)
}

func (s *Store) applyLocked(ctx context.Context, cs store.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	if cs.ExpectRevision != 0 && cs.ExpectRevision != s.rev {
		return fmt.Errorf("%w: revision %d, expected %d", store.ErrConflict, s.rev, cs.ExpectRevision)
	}
	if err := s.validate(cs); err != nil {
		return err
	}
	if cs.Sale != nil && cs.Sale.SessionID != "" {
		if _, exists := s.data.Sales[cs.Sale.ID]; !exists {
			cs.Sale.CreatedAt = s.now()
		}
	}

	var before data
	if s.backend != nil {
		before = s.data.clone()
	}

	s.mutate(cs)

	if s.backend == nil {
		s.rev++
		return nil
	}
	if err := s.persist(ctx); err != nil {
		s.data = before
		s.reindex()
		return err
	}
	s.rev++
	return nil
}

func (s *Store) validate(cs store.ChangeSet) error {
	products := make(map[string]domain.Product, len(cs.Products))
	for _, p := range cs.Products {
		if p.ID == "" || p.Stock < 0 || p.Price.IsNegative() {
			return fmt.Errorf("%w: product %q", store.ErrInvalidTransaction, p.ID)
		}
		products[p.ID] = p
	}
	for _, svc := range cs.Services {
		if svc.ID == "" || svc.Price.IsNegative() || svc.CommissionPercentage.IsNegative() {
			return fmt.Errorf("%w: service %q", store.ErrInvalidTransaction, svc.ID)
		}
	}
	for _, b := range cs.Barbers {
		if b.ID == "" {
			return fmt.Errorf("%w: barber without id", store.ErrInvalidTransaction)
		}
	}
	for _, c := range cs.Customers {
		if c.ID == "" {
			return fmt.Errorf("%w: customer without id", store.ErrInvalidTransaction)
		}
	}
	appointments := make(map[string]struct{}, len(cs.Appointments))
	for _, appt := range cs.Appointments {
		if appt.ID == "" {
			return fmt.Errorf("%w: appointment without id", store.ErrInvalidTransaction)
		}
		appointments[appt.ID] = struct{}{}
	}

	deltas := make(map[string]int, len(cs.StockDeltas))
	for _, d := range cs.StockDeltas {
		deltas[d.ProductID] += d.Delta
	}
	for productID, delta := range deltas {
		product, ok := products[productID]
		if !ok {
			product, ok = s.data.Products[productID]
		}
		if !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
		}
		if product.Stock+delta < 0 {
			return fmt.Errorf("%w: product %s has %d, change %d", store.ErrInsufficientStock, productID, product.Stock, delta)
		}
	}

	if cs.Sale != nil {
		sale := cs.Sale
		if sale.ID == "" || len(sale.Items) == 0 {
			return fmt.Errorf("%w: sale", store.ErrInvalidTransaction)
		}
		if _, exists := s.data.Sales[sale.ID]; !exists && sale.IdempotencyKey != "" {
			if _, dup := s.saleByIdem[sale.IdempotencyKey]; dup {
				return store.ErrDuplicate
			}
		}
	}

	accountIDs := make(map[string]struct{}, len(s.data.Accounts)+len(cs.Accounts))
	for _, account := range s.data.Accounts {
		accountIDs[account.ID] = struct{}{}
	}
	for _, account := range cs.Accounts {
		if account.ID == "" || account.CustomerID == "" {
			return fmt.Errorf("%w: credit account", store.ErrInvalidTransaction)
		}
		if existing, ok := s.data.Accounts[account.CustomerID]; ok && existing.ID != account.ID {
			return fmt.Errorf("%w: customer %s already has account %s", store.ErrDuplicate, account.CustomerID, existing.ID)
		}
		accountIDs[account.ID] = struct{}{}
	}
	for _, entry := range cs.CreditTransactions {
		if entry.ID == "" || !entry.Type.Valid() || !entry.Amount.IsPositive() {
			return fmt.Errorf("%w: credit transaction %q", store.ErrInvalidTransaction, entry.ID)
		}
		if _, ok := accountIDs[entry.CreditAccountID]; !ok {
			return fmt.Errorf("%w: credit account %s", store.ErrNotFound, entry.CreditAccountID)
		}
	}
	for _, update := range cs.CreditStatusUpdates {
		if s.creditIndex(update.TransactionID) < 0 {
			return fmt.Errorf("%w: credit transaction %s", store.ErrNotFound, update.TransactionID)
		}
		switch update.Status {
		case domain.CreditTxPending, domain.CreditTxPaid, domain.CreditTxOverdue:
		default:
			return fmt.Errorf("%w: credit status %q", store.ErrInvalidTransaction, update.Status)
		}
	}

	for _, id := range cs.CompletedAppointments {
		if _, ok := appointments[id]; ok {
			continue
		}
		if _, ok := s.data.Appointments[id]; !ok {
			return fmt.Errorf("%w: appointment %s", store.ErrNotFound, id)
		}
	}

	sessions := make(map[string]domain.CashSession, len(s.data.Sessions)+len(cs.Sessions))
	for id, session := range s.data.Sessions {
		sessions[id] = session
	}
	for _, session := range cs.Sessions {
		if session.ID == "" || session.OpeningAmount.IsNegative() {
			return fmt.Errorf("%w: cash session", store.ErrInvalidTransaction)
		}
		sessions[session.ID] = session
	}
	open := 0
	for _, session := range sessions {
		if session.Status == domain.CashSessionOpen {
			open++
		}
	}
	if open > 1 {
		return fmt.Errorf("%w: more than one open cash session", store.ErrDuplicate)
	}
	if sale := cs.Sale; sale != nil && sale.SessionID != "" {
		if _, exists := s.data.Sales[sale.ID]; !exists {
			if session, ok := sessions[sale.SessionID]; !ok || session.Status != domain.CashSessionOpen {
				return fmt.Errorf("%w: sale %s on session %s", store.ErrSessionNotOpen, sale.ID, sale.SessionID)
			}
		}
	}
	for _, entry := range cs.CashEntries {
		session, ok := sessions[entry.SessionID]
		if !ok {
			return fmt.Errorf("%w: cash session %s", store.ErrNotFound, entry.SessionID)
		}
		if session.Status != domain.CashSessionOpen || entry.Transaction.Amount.IsNegative() {
			return fmt.Errorf("%w: cash entry on session %s", store.ErrInvalidTransaction, entry.SessionID)
		}
	}

	for _, payment := range cs.CommissionPayments {
		if payment.ID == "" || payment.BarberID == "" || payment.To.Before(payment.From) {
			return fmt.Errorf("%w: commission payment", store.ErrInvalidTransaction)
		}
	}
	return nil
}

func (s *Store) mutate(cs store.ChangeSet) {
	for _, p := range cs.Products {
		s.data.Products[p.ID] = p
	}
	for _, svc := range cs.Services {
		s.data.Services[svc.ID] = svc
	}
	for _, b := range cs.Barbers {
		s.data.Barbers[b.ID] = b
	}
	for _, c := range cs.Customers {
		s.data.Customers[c.ID] = c
	}
	for _, appt := range cs.Appointments {
		s.data.Appointments[appt.ID] = cloneAppointment(appt)
	}

	for _, d := range cs.StockDeltas {
		product := s.data.Products[d.ProductID]
		product.Stock += d.Delta
		s.data.Products[d.ProductID] = product
	}

	if cs.Sale != nil {
		sale := cloneSale(*cs.Sale)
		s.data.Sales[sale.ID] = sale
		if sale.IdempotencyKey != "" {
			s.saleByIdem[sale.IdempotencyKey] = sale.ID
		}
	}

	for _, account := range cs.Accounts {
		if existing, ok := s.data.Accounts[account.CustomerID]; ok {
			account.TotalDebt = existing.TotalDebt
			account.CreatedAt = existing.CreatedAt
		}
		s.data.Accounts[account.CustomerID] = account
	}
	for _, entry := range cs.CreditTransactions {
		s.data.CreditTransactions = append(s.data.CreditTransactions, cloneCreditTransaction(entry))
		for customerID, account := range s.data.Accounts {
			if account.ID != entry.CreditAccountID {
				continue
			}
			account.TotalDebt = account.TotalDebt.Add(entry.Type.Delta(entry.Amount))
			account.UpdatedAt = entry.CreatedAt
			s.data.Accounts[customerID] = account
			break
		}
	}
	for _, update := range cs.CreditStatusUpdates {
		idx := s.creditIndex(update.TransactionID)
		entry := s.data.CreditTransactions[idx]
		entry.Status = update.Status
		entry.PaidAt = cloneTime(update.PaidAt)
		s.data.CreditTransactions[idx] = entry
	}

	completedAt := s.now()
	for _, id := range cs.CompletedAppointments {
		appt := s.data.Appointments[id]
		appt.Status = domain.AppointmentCompleted
		appt.CompletedAt = &completedAt
		s.data.Appointments[id] = appt
	}

	for _, session := range cs.Sessions {
		s.data.Sessions[session.ID] = cloneSession(session)
	}
	for _, entry := range cs.CashEntries {
		session := s.data.Sessions[entry.SessionID]
		session.Transactions = append(session.Transactions, entry.Transaction)
		s.data.Sessions[entry.SessionID] = session
	}

	s.data.CommissionPayments = append(s.data.CommissionPayments, cs.CommissionPayments...)
}

func (s *Store) persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	payload, err := json.Marshal(s.data)
	if err != nil {
		return &store.PersistenceError{Key: StateKey, Err: err}
	}
	if err := s.backend.Save(ctx, StateKey, payload); err != nil {
		return &store.PersistenceError{Key: StateKey, Err: err}
	}
	return nil
}

func (s *Store) reindex() {
	s.saleByIdem = make(map[string]string, len(s.data.Sales))
	for id, sale := range s.data.Sales {
		if sale.IdempotencyKey != "" {
			s.saleByIdem[sale.IdempotencyKey] = id
		}
	}
}

func (s *Store) creditIndex(id string) int {
	for i, entry := range s.data.CreditTransactions {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

func (d *data) fillNil() {
	empty := emptyData()
	if d.Products == nil {
		d.Products = empty.Products
	}
	if d.Services == nil {
		d.Services = empty.Services
	}
	if d.Barbers == nil {
		d.Barbers = empty.Barbers
	}
	if d.Customers == nil {
		d.Customers = empty.Customers
	}
	if d.Appointments == nil {
		d.Appointments = empty.Appointments
	}
	if d.Sales == nil {
		d.Sales = empty.Sales
	}
	if d.Accounts == nil {
		d.Accounts = empty.Accounts
	}
	if d.Sessions == nil {
		d.Sessions = empty.Sessions
	}
}

func (d data) clone() data {
	dup := emptyData()
	for k, v := range d.Products {
		dup.Products[k] = v
	}
	for k, v := range d.Services {
		dup.Services[k] = v
	}
	for k, v := range d.Barbers {
		dup.Barbers[k] = v
	}
	for k, v := range d.Customers {
		dup.Customers[k] = v
	}
	for k, v := range d.Appointments {
		dup.Appointments[k] = cloneAppointment(v)
	}
	for k, v := range d.Sales {
		dup.Sales[k] = cloneSale(v)
	}
	for k, v := range d.Accounts {
		dup.Accounts[k] = v
	}
	for _, v := range d.CreditTransactions {
		dup.CreditTransactions = append(dup.CreditTransactions, cloneCreditTransaction(v))
	}
	for k, v := range d.Sessions {
		dup.Sessions[k] = cloneSession(v)
	}
	dup.CommissionPayments = append(dup.CommissionPayments, d.CommissionPayments...)
	return dup
}

func sameDay(a time.Time, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
