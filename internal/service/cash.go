package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
	"barberpos/backend/internal/xid"
)

const maxApplyAttempts = 3

// CashRegister manages the cash drawer session. At most one session is open;
// opening a new one closes the previous session with its computed balance.
type CashRegister struct {
	repo   store.Repository
	logger *zap.Logger
	now    Clock
}

func NewCashRegister(repo store.Repository, logger *zap.Logger, now Clock) *CashRegister {
	return &CashRegister{repo: repo, logger: logger, now: now}
}

func (c *CashRegister) Open(ctx context.Context, openingAmount decimal.Decimal, operator string) (*domain.CashSessionResponse, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, ErrMissingOperator
	}
	if openingAmount.IsNegative() {
		return nil, fmt.Errorf("%w: negative opening amount", store.ErrInvalidTransaction)
	}

	now := c.now()
	var (
		replaced *domain.CashSession
		session  domain.CashSession
	)
	err := c.applyAtRevision(ctx, func() (store.ChangeSet, error) {
		cs := store.ChangeSet{}
		replaced = nil

		active, err := c.repo.GetActiveSession(ctx)
		switch {
		case err == nil:
			closed, _, err := c.closeSnapshot(ctx, *active, now, operator)
			if err != nil {
				return cs, err
			}
			replaced = &closed
			cs.Sessions = append(cs.Sessions, closed)
		case errors.Is(err, store.ErrNotFound):
		default:
			return cs, err
		}

		session = domain.CashSession{
			ID:            xid.New("cash"),
			OpeningAmount: openingAmount,
			OpeningTime:   now,
			Operator:      operator,
			Status:        domain.CashSessionOpen,
			Transactions: []domain.CashTransaction{{
				ID:          xid.New("ctx"),
				Type:        domain.CashOpening,
				Amount:      openingAmount,
				Description: "Opening balance",
				Operator:    operator,
				CreatedAt:   now,
			}},
		}
		cs.Sessions = append(cs.Sessions, session)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	if replaced != nil {
		c.logger.Warn("open cash session force-closed",
			zap.String("session_id", replaced.ID),
			zap.String("closing_amount", replaced.ClosingAmount.String()),
		)
	}
	c.logger.Info("cash session opened",
		zap.String("session_id", session.ID),
		zap.String("operator", operator),
		zap.String("opening_amount", openingAmount.String()),
	)

	return &domain.CashSessionResponse{
		Session:  session,
		Balance:  domain.CashBalance{Cash: openingAmount, Card: decimal.Zero, Pix: decimal.Zero, Total: openingAmount},
		Replaced: replaced,
	}, nil
}

// Close closes the session with the given id, or the open session when id is
// empty, snapshotting its computed balance.
func (c *CashRegister) Close(ctx context.Context, sessionID string, operator string) (*domain.CashSessionResponse, error) {
	var (
		closed  domain.CashSession
		balance domain.CashBalance
	)
	err := c.applyAtRevision(ctx, func() (store.ChangeSet, error) {
		var (
			session *domain.CashSession
			err     error
		)
		if sessionID == "" {
			session, err = c.repo.GetActiveSession(ctx)
			if errors.Is(err, store.ErrNotFound) {
				return store.ChangeSet{}, ErrSessionNotOpen
			}
		} else {
			session, err = c.repo.GetSession(ctx, sessionID)
		}
		if err != nil {
			return store.ChangeSet{}, err
		}
		if session.Status != domain.CashSessionOpen {
			return store.ChangeSet{}, ErrSessionAlreadyClosed
		}

		closed, balance, err = c.closeSnapshot(ctx, *session, c.now(), operator)
		if err != nil {
			return store.ChangeSet{}, err
		}
		return store.ChangeSet{Sessions: []domain.CashSession{closed}}, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("cash session closed",
		zap.String("session_id", closed.ID),
		zap.String("cash", balance.Cash.String()),
		zap.String("card", balance.Card.String()),
		zap.String("pix", balance.Pix.String()),
		zap.String("total", balance.Total.String()),
	)
	return &domain.CashSessionResponse{Session: closed, Balance: balance}, nil
}

// applyAtRevision stages a change set from the state at the current revision
// and applies it only if nothing else was written in between, rebuilding it
// when something was.
func (c *CashRegister) applyAtRevision(ctx context.Context, build func() (store.ChangeSet, error)) error {
	for attempt := 1; ; attempt++ {
		rev, err := c.repo.Revision(ctx)
		if err != nil {
			return err
		}
		cs, err := build()
		if err != nil {
			return err
		}
		cs.ExpectRevision = rev
		err = c.repo.Apply(ctx, cs)
		if !errors.Is(err, store.ErrConflict) || attempt == maxApplyAttempts {
			return err
		}
		c.logger.Debug("cash register state changed, retrying", zap.Int("attempt", attempt))
	}
}

func (c *CashRegister) closeSnapshot(ctx context.Context, session domain.CashSession, at time.Time, operator string) (domain.CashSession, domain.CashBalance, error) {
	closingTime := at
	session.ClosingTime = &closingTime

	balance, err := c.BalanceOf(ctx, session)
	if err != nil {
		return domain.CashSession{}, domain.CashBalance{}, err
	}
	if operator == "" {
		operator = session.Operator
	}

	total := balance.Total
	session.ClosingAmount = &total
	session.ClosingBalance = &balance
	session.Status = domain.CashSessionClosed
	session.Transactions = append(session.Transactions, domain.CashTransaction{
		ID:          xid.New("ctx"),
		Type:        domain.CashClosing,
		Amount:      total,
		Description: "Closing balance",
		Operator:    operator,
		CreatedAt:   at,
	})
	return session, balance, nil
}

func (c *CashRegister) Withdraw(ctx context.Context, amount decimal.Decimal, description string, operator string) (*domain.CashTransaction, error) {
	return c.movement(ctx, domain.CashWithdrawal, amount, description, operator)
}

func (c *CashRegister) Voucher(ctx context.Context, amount decimal.Decimal, description string, operator string) (*domain.CashTransaction, error) {
	return c.movement(ctx, domain.CashVoucher, amount, description, operator)
}

func (c *CashRegister) Deposit(ctx context.Context, amount decimal.Decimal, description string, operator string) (*domain.CashTransaction, error) {
	return c.movement(ctx, domain.CashDeposit, amount, description, operator)
}

func (c *CashRegister) movement(ctx context.Context, txType domain.CashTxType, amount decimal.Decimal, description string, operator string) (*domain.CashTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrMissingDescription
	}

	session, err := c.repo.GetActiveSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotOpen
		}
		return nil, err
	}
	if operator == "" {
		operator = session.Operator
	}

	tx := domain.CashTransaction{
		ID:          xid.New("ctx"),
		Type:        txType,
		Amount:      amount,
		Description: description,
		Operator:    operator,
		CreatedAt:   c.now(),
	}
	if err := c.repo.Apply(ctx, store.ChangeSet{CashEntries: []store.CashEntry{{SessionID: session.ID, Transaction: tx}}}); err != nil {
		return nil, err
	}

	c.logger.Info("cash movement recorded",
		zap.String("session_id", session.ID),
		zap.String("type", string(txType)),
		zap.String("amount", amount.String()),
	)
	return &tx, nil
}

func (c *CashRegister) Active(ctx context.Context) (*domain.CashSessionResponse, error) {
	session, err := c.repo.GetActiveSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotOpen
		}
		return nil, err
	}
	balance, err := c.BalanceOf(ctx, *session)
	if err != nil {
		return nil, err
	}
	return &domain.CashSessionResponse{Session: *session, Balance: balance}, nil
}

func (c *CashRegister) Balance(ctx context.Context) (domain.CashBalance, error) {
	resp, err := c.Active(ctx)
	if err != nil {
		return domain.CashBalance{}, err
	}
	return resp.Balance, nil
}

// BalanceOf computes a session's takings per method over the session window
// (see domain.CashSession.Contains).
func (c *CashRegister) BalanceOf(ctx context.Context, session domain.CashSession) (domain.CashBalance, error) {
	now := c.now()
	from := session.OpeningTime
	to := now
	if session.ClosingTime != nil {
		to = *session.ClosingTime
	}

	sales, err := c.repo.ListSales(ctx, store.SaleFilter{Status: domain.SaleStatusCompleted, From: &from, To: &to})
	if err != nil {
		return domain.CashBalance{}, err
	}

	cash := session.OpeningAmount
	card := decimal.Zero
	pix := decimal.Zero

	for _, sale := range sales {
		if !session.Contains(sale.CreatedAt, now) {
			continue
		}
		if !sale.Payment.Empty() {
			cash = cash.Add(sale.Payment.CashAmount())
			card = card.Add(sale.Payment.CardAmount())
			pix = pix.Add(sale.Payment.PixAmount())
			continue
		}
		switch sale.LegacyMethod {
		case domain.PaymentCash:
			cash = cash.Add(sale.Total)
		case domain.PaymentCard:
			card = card.Add(sale.Total)
		case domain.PaymentPix:
			pix = pix.Add(sale.Total)
		case domain.PaymentMixed:
			cash = cash.Add(sale.Total.Mul(half))
			card = card.Add(sale.Total.Mul(half))
		}
	}

	for _, tx := range session.Transactions {
		switch tx.Type {
		case domain.CashDeposit:
			switch depositMethod(tx) {
			case domain.PaymentCard:
				card = card.Add(tx.Amount)
			case domain.PaymentPix:
				pix = pix.Add(tx.Amount)
			default:
				cash = cash.Add(tx.Amount)
			}
		case domain.CashWithdrawal, domain.CashVoucher:
			cash = cash.Sub(tx.Amount)
		}
	}

	return domain.CashBalance{
		Cash:  cash,
		Card:  card,
		Pix:   pix,
		Total: cash.Add(card).Add(pix),
	}, nil
}

func (c *CashRegister) History(ctx context.Context, limit int) ([]domain.CashSession, error) {
	if limit < 1 || limit > 200 {
		limit = 30
	}
	return c.repo.ListSessions(ctx, limit)
}

// depositMethod is the bucket a deposit counts towards. Untagged fiado
// deposits written before deposits carried a method are read from their
// description; any other untagged deposit is cash.
func depositMethod(tx domain.CashTransaction) domain.PaymentMethod {
	if tx.Method != "" {
		return tx.Method
	}
	desc := strings.ToLower(tx.Description)
	if !strings.Contains(desc, "fiado") && !strings.Contains(desc, "credit payment") {
		return domain.PaymentCash
	}
	switch {
	case strings.Contains(desc, "pix"):
		return domain.PaymentPix
	case strings.Contains(desc, "card"), strings.Contains(desc, "cartao"), strings.Contains(desc, "cartão"):
		return domain.PaymentCard
	default:
		return domain.PaymentCash
	}
}
