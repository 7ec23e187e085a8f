package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
	"barberpos/backend/internal/xid"
)

// DefaultCreditLimit is the limit given to accounts opened implicitly by a
// credit sale.
var DefaultCreditLimit = decimal.NewFromInt(500)

// CreditLedger keeps the per-customer fiado accounts. The ledger of credit
// transactions is the authoritative balance; SaleDerivedBalance exists only to
// cross-check it.
type CreditLedger struct {
	repo         store.Repository
	logger       *zap.Logger
	now          Clock
	defaultLimit decimal.Decimal
}

func NewCreditLedger(repo store.Repository, logger *zap.Logger, now Clock, defaultLimit decimal.Decimal) *CreditLedger {
	if !defaultLimit.IsPositive() {
		defaultLimit = DefaultCreditLimit
	}
	return &CreditLedger{repo: repo, logger: logger, now: now, defaultLimit: defaultLimit}
}

func (l *CreditLedger) GetAccount(ctx context.Context, customerID string) (*domain.CreditAccount, error) {
	account, err := l.repo.GetCreditAccount(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (l *CreditLedger) Accounts(ctx context.Context) ([]domain.CreditAccount, error) {
	return l.repo.ListCreditAccounts(ctx)
}

// EnsureAccount returns the customer's account, opening one when absent. A
// zero limit means the configured default.
func (l *CreditLedger) EnsureAccount(ctx context.Context, customerID string, customerName string, limit decimal.Decimal) (*domain.CreditAccount, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrMissingCustomerForCredit
	}
	if limit.IsNegative() {
		return nil, fmt.Errorf("%w: negative credit limit", store.ErrInvalidTransaction)
	}

	account, err := l.GetAccount(ctx, customerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	created := l.newAccount(ctx, customerID, customerName, limit)
	if err := l.repo.Apply(ctx, store.ChangeSet{Accounts: []domain.CreditAccount{created}}); err != nil {
		// another request opened the account first
		if errors.Is(err, store.ErrDuplicate) {
			return l.GetAccount(ctx, customerID)
		}
		return nil, err
	}
	l.logger.Info("credit account opened",
		zap.String("customer_id", customerID),
		zap.String("limit", created.Limit.String()),
	)
	return &created, nil
}

func (l *CreditLedger) newAccount(ctx context.Context, customerID string, customerName string, limit decimal.Decimal) domain.CreditAccount {
	if limit.IsZero() {
		limit = l.defaultLimit
	}
	if strings.TrimSpace(customerName) == "" {
		if customer, err := l.repo.GetCustomer(ctx, customerID); err == nil {
			customerName = customer.Name
		}
	}
	now := l.now()
	return domain.CreditAccount{
		ID:           xid.New("acct"),
		CustomerID:   customerID,
		CustomerName: strings.TrimSpace(customerName),
		Limit:        limit,
		TotalDebt:    decimal.Zero,
		Status:       domain.CreditAccountActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RecordTransaction appends one ledger entry. Purchases raise the debt,
// payments and adjustments lower it with no floor, so an overpayment leaves a
// negative debt.
func (l *CreditLedger) RecordTransaction(ctx context.Context, accountID string, customerID string, txType domain.CreditTxType, amount decimal.Decimal, description string) (*domain.CreditTransaction, error) {
	if !txType.Valid() {
		return nil, fmt.Errorf("%w: credit transaction type %q", store.ErrInvalidTransaction, txType)
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	account, err := l.GetAccount(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if account.ID != accountID {
		return nil, fmt.Errorf("%w: %s does not belong to %s", ErrAccountNotFound, accountID, customerID)
	}
	if txType == domain.CreditPurchase {
		if account.Status != domain.CreditAccountActive {
			return nil, ErrAccountBlocked
		}
		l.warnOverLimit(*account, amount)
	}

	entry := l.newEntry(*account, txType, amount, description, "")
	cs := store.ChangeSet{CreditTransactions: []domain.CreditTransaction{entry}}
	if txType != domain.CreditPurchase {
		updates, err := l.settlements(ctx, customerID, amount)
		if err != nil {
			return nil, err
		}
		cs.CreditStatusUpdates = updates
	}
	if err := l.repo.Apply(ctx, cs); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ApplyPayment records a payment against the customer's debt. When a cash
// session is open the payment is also deposited into it, tagged with the
// method and customer, in the same change set.
func (l *CreditLedger) ApplyPayment(ctx context.Context, customerID string, amount decimal.Decimal, method domain.PaymentMethod, operator string) (*domain.CreditPaymentResponse, error) {
	ctx, span := tracer.Start(ctx, "CreditLedger.ApplyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("customer_id", customerID), attribute.String("method", string(method)))

	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentPix:
	default:
		return nil, fmt.Errorf("%w: payment method %q", store.ErrInvalidTransaction, method)
	}

	account, err := l.GetAccount(ctx, customerID)
	if err != nil {
		return nil, err
	}

	label := account.CustomerName
	if label == "" {
		label = customerID
	}
	entry := l.newEntry(*account, domain.CreditPayment, amount, fmt.Sprintf("Fiado payment (%s)", method), "")
	updates, err := l.settlements(ctx, customerID, amount)
	if err != nil {
		return nil, err
	}
	cs := store.ChangeSet{
		CreditTransactions:  []domain.CreditTransaction{entry},
		CreditStatusUpdates: updates,
	}

	var deposit *domain.CashTransaction
	session, err := l.repo.GetActiveSession(ctx)
	switch {
	case err == nil:
		if operator == "" {
			operator = session.Operator
		}
		deposit = &domain.CashTransaction{
			ID:          xid.New("ctx"),
			Type:        domain.CashDeposit,
			Amount:      amount,
			Description: fmt.Sprintf("Fiado payment - %s (%s)", label, method),
			Operator:    operator,
			CreatedAt:   entry.CreatedAt,
			Method:      method,
			CustomerID:  customerID,
		}
		cs.CashEntries = []store.CashEntry{{SessionID: session.ID, Transaction: *deposit}}
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	if err := l.repo.Apply(ctx, cs); err != nil {
		span.RecordError(err)
		return nil, err
	}

	updated, err := l.GetAccount(ctx, customerID)
	if err != nil {
		return nil, err
	}
	l.logger.Info("credit payment applied",
		zap.String("customer_id", customerID),
		zap.String("amount", amount.String()),
		zap.String("method", string(method)),
		zap.String("debt", updated.TotalDebt.String()),
		zap.Bool("deposited", deposit != nil),
	)
	return &domain.CreditPaymentResponse{Transaction: entry, Account: *updated, CashTransaction: deposit}, nil
}

// OutstandingBalance sums the customer's ledger.
func (l *CreditLedger) OutstandingBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	if _, err := l.GetAccount(ctx, customerID); err != nil {
		return decimal.Zero, err
	}
	entries, err := l.repo.ListCreditTransactions(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, entry := range entries {
		balance = balance.Add(entry.Type.Delta(entry.Amount))
	}
	return balance, nil
}

// SaleDerivedBalance rebuilds the balance from completed sales instead of the
// ledger: the credit portion of every sale, less payments and manual
// adjustments. Legacy sales without a breakdown count fully when tagged
// credit and half when tagged mixed.
func (l *CreditLedger) SaleDerivedBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	sales, err := l.repo.ListSales(ctx, store.SaleFilter{CustomerID: customerID, Status: domain.SaleStatusCompleted})
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, sale := range sales {
		balance = balance.Add(creditPortion(sale))
	}

	entries, err := l.repo.ListCreditTransactions(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, entry := range entries {
		switch {
		case entry.Type == domain.CreditPayment:
			balance = balance.Sub(entry.Amount)
		case entry.Type == domain.CreditAdjustment && entry.SaleID == "":
			// reversal adjustments belong to cancelled sales, which are already excluded
			balance = balance.Sub(entry.Amount)
		}
	}
	return balance, nil
}

func (l *CreditLedger) Balance(ctx context.Context, customerID string) (*domain.CreditBalanceResponse, error) {
	outstanding, err := l.OutstandingBalance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	derived, err := l.SaleDerivedBalance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	consistent := domain.MoneyEqual(outstanding, derived)
	if !consistent {
		l.logger.Warn("credit balance diverges from sales",
			zap.String("customer_id", customerID),
			zap.String("ledger", outstanding.String()),
			zap.String("sale_derived", derived.String()),
		)
	}
	return &domain.CreditBalanceResponse{
		CustomerID:  customerID,
		Outstanding: outstanding,
		SaleDerived: derived,
		Consistent:  consistent,
	}, nil
}

func (l *CreditLedger) Transactions(ctx context.Context, customerID string) ([]domain.CreditTransaction, error) {
	if _, err := l.GetAccount(ctx, customerID); err != nil {
		return nil, err
	}
	return l.repo.ListCreditTransactions(ctx, customerID)
}

func (l *CreditLedger) SetStatus(ctx context.Context, customerID string, status string) (*domain.CreditAccount, error) {
	switch status {
	case domain.CreditAccountActive, domain.CreditAccountBlocked, domain.CreditAccountClosed:
	default:
		return nil, fmt.Errorf("%w: account status %q", store.ErrInvalidTransaction, status)
	}
	account, err := l.GetAccount(ctx, customerID)
	if err != nil {
		return nil, err
	}
	account.Status = status
	account.UpdatedAt = l.now()
	if err := l.repo.Apply(ctx, store.ChangeSet{Accounts: []domain.CreditAccount{*account}}); err != nil {
		return nil, err
	}
	l.logger.Info("credit account status changed", zap.String("customer_id", customerID), zap.String("status", status))
	return l.GetAccount(ctx, customerID)
}

// MarkOverdue flags pending purchases older than dueAfter. It returns how many
// entries changed.
func (l *CreditLedger) MarkOverdue(ctx context.Context, dueAfter time.Duration) (int, error) {
	entries, err := l.repo.ListCreditTransactions(ctx, "")
	if err != nil {
		return 0, err
	}
	cutoff := l.now().Add(-dueAfter)
	updates := make([]store.CreditStatusUpdate, 0, 4)
	for _, entry := range entries {
		if entry.Type != domain.CreditPurchase || entry.Status != domain.CreditTxPending {
			continue
		}
		if entry.CreatedAt.Before(cutoff) {
			updates = append(updates, store.CreditStatusUpdate{TransactionID: entry.ID, Status: domain.CreditTxOverdue})
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if err := l.repo.Apply(ctx, store.ChangeSet{CreditStatusUpdates: updates}); err != nil {
		return 0, err
	}
	l.logger.Info("credit purchases marked overdue", zap.Int("count", len(updates)))
	return len(updates), nil
}

// stagePurchase prepares the credit side of a sale: the account to open when
// the customer has none, and the purchase entry.
func (l *CreditLedger) stagePurchase(ctx context.Context, customerID string, amount decimal.Decimal, saleID string) ([]domain.CreditAccount, domain.CreditTransaction, error) {
	var opened []domain.CreditAccount
	account, err := l.GetAccount(ctx, customerID)
	switch {
	case err == nil:
		if account.Status != domain.CreditAccountActive {
			return nil, domain.CreditTransaction{}, ErrAccountBlocked
		}
	case errors.Is(err, ErrAccountNotFound):
		created := l.newAccount(ctx, customerID, "", decimal.Zero)
		account = &created
		opened = append(opened, created)
	default:
		return nil, domain.CreditTransaction{}, err
	}

	l.warnOverLimit(*account, amount)
	entry := l.newEntry(*account, domain.CreditPurchase, amount, fmt.Sprintf("Sale %s", saleID), saleID)
	return opened, entry, nil
}

func (l *CreditLedger) stageReversal(ctx context.Context, sale domain.Sale, reason string) (*domain.CreditTransaction, []store.CreditStatusUpdate, error) {
	amount := creditPortion(sale)
	if !amount.IsPositive() {
		return nil, nil, nil
	}
	account, err := l.GetAccount(ctx, sale.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	description := fmt.Sprintf("Reversal of sale %s", sale.ID)
	if reason != "" {
		description += ": " + reason
	}
	entry := l.newEntry(*account, domain.CreditAdjustment, amount, description, sale.ID)
	updates, err := l.settlements(ctx, sale.CustomerID, amount)
	if err != nil {
		return nil, nil, err
	}
	return &entry, updates, nil
}

func (l *CreditLedger) newEntry(account domain.CreditAccount, txType domain.CreditTxType, amount decimal.Decimal, description string, saleID string) domain.CreditTransaction {
	now := l.now()
	entry := domain.CreditTransaction{
		ID:              xid.New("cred"),
		CreditAccountID: account.ID,
		CustomerID:      account.CustomerID,
		SaleID:          saleID,
		Type:            txType,
		Amount:          amount,
		Description:     strings.TrimSpace(description),
		Status:          domain.CreditTxPending,
		CreatedAt:       now,
	}
	if txType != domain.CreditPurchase {
		entry.Status = domain.CreditTxPaid
		entry.PaidAt = &now
	}
	return entry
}

// settlements marks purchases paid oldest first, as far as every payment and
// adjustment so far plus incoming reaches.
func (l *CreditLedger) settlements(ctx context.Context, customerID string, incoming decimal.Decimal) ([]store.CreditStatusUpdate, error) {
	entries, err := l.repo.ListCreditTransactions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	covered := incoming
	for _, entry := range entries {
		if entry.Type != domain.CreditPurchase {
			covered = covered.Add(entry.Amount)
		}
	}

	now := l.now()
	updates := make([]store.CreditStatusUpdate, 0, 2)
	for _, entry := range entries {
		if entry.Type != domain.CreditPurchase {
			continue
		}
		if covered.Add(domain.MoneyTolerance).LessThanOrEqual(entry.Amount) {
			break
		}
		covered = covered.Sub(entry.Amount)
		if entry.Status != domain.CreditTxPaid {
			paidAt := now
			updates = append(updates, store.CreditStatusUpdate{TransactionID: entry.ID, Status: domain.CreditTxPaid, PaidAt: &paidAt})
		}
	}
	return updates, nil
}

func (l *CreditLedger) warnOverLimit(account domain.CreditAccount, amount decimal.Decimal) {
	after := account.TotalDebt.Add(amount)
	if after.GreaterThan(account.Limit) {
		l.logger.Warn("credit limit exceeded",
			zap.String("customer_id", account.CustomerID),
			zap.String("limit", account.Limit.String()),
			zap.String("debt_after", after.String()),
		)
	}
}

var half = decimal.NewFromFloat(0.5)

// creditPortion is the part of a sale that was put on the customer's account.
func creditPortion(sale domain.Sale) decimal.Decimal {
	if !sale.Payment.Empty() {
		return sale.Payment.CreditAmount()
	}
	switch sale.LegacyMethod {
	case domain.PaymentCredit:
		return sale.Total
	case domain.PaymentMixed:
		return sale.Total.Mul(half)
	default:
		return decimal.Zero
	}
}
