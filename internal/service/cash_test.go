package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
	"barberpos/backend/internal/store/memory"
)

// interleavingRepo runs step once, right before the first matching change set
// reaches the store, as if another request had landed in between.
type interleavingRepo struct {
	*memory.Store
	match func(store.ChangeSet) bool
	step  func()
}

func (r *interleavingRepo) Apply(ctx context.Context, cs store.ChangeSet) error {
	if r.step != nil && r.match(cs) {
		step := r.step
		r.step = nil
		step()
	}
	return r.Store.Apply(ctx, cs)
}

func newInterleavedService(f *fixture) (*Service, *interleavingRepo) {
	repo := &interleavingRepo{Store: f.repo}
	return New(repo, Options{Logger: zap.NewNop(), Now: f.clock.Now}), repo
}

func TestWithdrawalAndVoucherReduceCash(t *testing.T) {
	f := newFixture(t)
	f.open(t, "100", "Ana")
	ctx := context.Background()

	f.checkout(t, cashSale(productLine("prod-comb", 1, "50.00")))

	if _, err := f.svc.Cash.Withdraw(ctx, money("20"), "change fund", ""); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	balance, err := f.svc.Cash.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "after withdrawal", balance.Cash, "130")

	voucher, err := f.svc.Cash.Voucher(ctx, money("10"), "advance", "")
	if err != nil {
		t.Fatalf("voucher: %v", err)
	}
	if voucher.Operator != "Ana" {
		t.Fatalf("expected session operator on movement, got %q", voucher.Operator)
	}
	balance, err = f.svc.Cash.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "after voucher", balance.Cash, "120")
}

func TestCloseSnapshotsComputedBalance(t *testing.T) {
	f := newFixture(t)
	f.open(t, "20", "Ana")

	for _, price := range []string{"10", "15", "20"} {
		f.clock.Advance(time.Minute)
		f.checkout(t, cashSale(productLine("prod-comb", 1, price)))
	}
	f.clock.Advance(time.Minute)

	resp, err := f.svc.Cash.Close(context.Background(), "", "Ana")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if resp.Session.Status != domain.CashSessionClosed || resp.Session.ClosingTime == nil {
		t.Fatalf("expected closed session, got %+v", resp.Session)
	}
	if resp.Session.ClosingAmount == nil {
		t.Fatalf("expected closing amount")
	}
	assertMoney(t, "closing amount", *resp.Session.ClosingAmount, "65")
	assertMoney(t, "closing cash", resp.Session.ClosingBalance.Cash, "65")

	last := resp.Session.Transactions[len(resp.Session.Transactions)-1]
	if last.Type != domain.CashClosing {
		t.Fatalf("expected closing transaction last, got %s", last.Type)
	}
}

func TestOpenWhileOpenClosesPreviousWithItsActivity(t *testing.T) {
	f := newFixture(t)
	first := f.open(t, "20", "Ana")

	f.clock.Advance(time.Minute)
	f.checkout(t, domain.SaleRequest{
		Cart:    domain.Cart{Items: []domain.CartItem{productLine("prod-pomade", 1, "40")}},
		Payment: domain.PaymentAllocation{Cash: amount("30"), Card: amount("10")},
	})
	f.clock.Advance(time.Hour)

	second := f.open(t, "50", "Bruno")
	if second.Replaced == nil || second.Replaced.ID != first.Session.ID {
		t.Fatalf("expected first session replaced, got %+v", second.Replaced)
	}
	if second.Replaced.ClosingAmount == nil {
		t.Fatalf("expected closing amount on replaced session")
	}
	assertMoney(t, "force-closed amount", *second.Replaced.ClosingAmount, "60")

	stored, err := f.repo.GetSession(context.Background(), first.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Status != domain.CashSessionClosed {
		t.Fatalf("expected first session closed, got %s", stored.Status)
	}
	assertMoney(t, "stored closing amount", *stored.ClosingAmount, "60")

	balance, err := f.svc.Cash.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "new session cash", balance.Cash, "50")
	assertMoney(t, "new session card", balance.Card, "0")
}

func TestMovementsRequireOpenSessionAndValidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Cash.Withdraw(ctx, money("5"), "coins", ""); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}

	f.open(t, "10", "Ana")
	if _, err := f.svc.Cash.Withdraw(ctx, money("0"), "coins", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.svc.Cash.Deposit(ctx, money("5"), "   ", ""); !errors.Is(err, ErrMissingDescription) {
		t.Fatalf("expected ErrMissingDescription, got %v", err)
	}
	if _, err := f.svc.Cash.Open(ctx, money("10"), " "); !errors.Is(err, ErrMissingOperator) {
		t.Fatalf("expected ErrMissingOperator, got %v", err)
	}
}

func TestCloseTwice(t *testing.T) {
	f := newFixture(t)
	opened := f.open(t, "10", "Ana")
	ctx := context.Background()

	if _, err := f.svc.Cash.Close(ctx, "", ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.svc.Cash.Close(ctx, "", ""); !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}
	if _, err := f.svc.Cash.Close(ctx, opened.Session.ID, ""); !errors.Is(err, ErrSessionAlreadyClosed) {
		t.Fatalf("expected ErrSessionAlreadyClosed, got %v", err)
	}
	if _, err := f.svc.Cash.Close(ctx, "cash-missing", ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBalanceUsesSessionWindowNotCalendarDay(t *testing.T) {
	f := newFixture(t)
	f.open(t, "0", "Ana")
	f.clock.Advance(time.Minute)
	f.checkout(t, cashSale(productLine("prod-comb", 1, "12.00")))
	f.clock.Advance(time.Minute)
	if _, err := f.svc.Cash.Close(context.Background(), "", ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	f.clock.Advance(time.Hour)
	f.open(t, "5", "Ana")
	f.clock.Advance(time.Minute)

	balance, err := f.svc.Cash.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "same-day second session", balance.Total, "5")
}

func TestLegacySalesAndUntaggedDepositsAreSplitByHeuristic(t *testing.T) {
	f := newFixture(t)
	f.open(t, "0", "Ana")
	ctx := context.Background()
	f.clock.Advance(time.Minute)

	legacy := []domain.Sale{
		{ID: "sale-legacy-mixed", Total: money("40"), LegacyMethod: domain.PaymentMixed},
		{ID: "sale-legacy-pix", Total: money("15"), LegacyMethod: domain.PaymentPix},
		{ID: "sale-legacy-credit", Total: money("25"), LegacyMethod: domain.PaymentCredit},
	}
	for i := range legacy {
		legacy[i].Status = domain.SaleStatusCompleted
		legacy[i].CreatedAt = f.clock.Now()
		legacy[i].Items = []domain.SaleItem{{Type: domain.ItemProduct, ProductID: "prod-comb", Name: "Wooden Comb", Quantity: 1, UnitPrice: legacy[i].Total}}
		if err := f.repo.Apply(ctx, store.ChangeSet{Sale: &legacy[i]}); err != nil {
			t.Fatalf("apply legacy sale: %v", err)
		}
	}

	for _, description := range []string{"Fiado payment - Marcos Lima (pix)", "Credit payment by card", "Change top-up"} {
		if _, err := f.svc.Cash.Deposit(ctx, money("10"), description, ""); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	balance, err := f.svc.Cash.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "cash", balance.Cash, "30")
	assertMoney(t, "card", balance.Card, "30")
	assertMoney(t, "pix", balance.Pix, "25")
	assertMoney(t, "total", balance.Total, "85")
}

func TestHistoryListsNewestFirst(t *testing.T) {
	f := newFixture(t)
	first := f.open(t, "0", "Ana")
	f.clock.Advance(time.Hour)
	second := f.open(t, "0", "Bruno")

	sessions, err := f.svc.Cash.History(context.Background(), 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected two sessions, got %d", len(sessions))
	}
	if sessions[0].ID != second.Session.ID || sessions[1].ID != first.Session.ID {
		t.Fatalf("unexpected order %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestDepositMethod(t *testing.T) {
	cases := []struct {
		tx   domain.CashTransaction
		want domain.PaymentMethod
	}{
		{domain.CashTransaction{Method: domain.PaymentCard, Description: "Fiado payment (pix)"}, domain.PaymentCard},
		{domain.CashTransaction{Description: "Fiado payment - Pedro (pix)"}, domain.PaymentPix},
		{domain.CashTransaction{Description: "Pagamento fiado cartão"}, domain.PaymentCard},
		{domain.CashTransaction{Description: "Fiado payment - Pedro (cash)"}, domain.PaymentCash},
		{domain.CashTransaction{Description: "Pix received for supplies"}, domain.PaymentCash},
	}
	for _, tc := range cases {
		if got := depositMethod(tc.tx); got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.tx.Description, tc.want, got)
		}
	}
}

func TestSaleRejectedWhenSessionClosesBeforeCommit(t *testing.T) {
	f := newFixture(t)
	svc, repo := newInterleavedService(f)
	ctx := context.Background()

	opened, err := svc.Cash.Open(ctx, money("20"), "Ana")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.clock.Advance(time.Minute)

	var closeErr error
	repo.match = func(cs store.ChangeSet) bool { return cs.Sale != nil }
	repo.step = func() { _, closeErr = svc.Cash.Close(ctx, "", "Ana") }

	_, err = svc.Checkout(ctx, cashSale(productLine("prod-comb", 1, "12.00")))
	if !errors.Is(err, ErrSessionNotOpen) {
		t.Fatalf("expected ErrSessionNotOpen, got %v", err)
	}
	if closeErr != nil {
		t.Fatalf("close: %v", closeErr)
	}
	if got := f.stock(t, "prod-comb"); got != 30 {
		t.Fatalf("expected stock untouched at 30, got %d", got)
	}
	sales, err := f.repo.ListSales(ctx, store.SaleFilter{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sale recorded, got %d", len(sales))
	}

	stored, err := f.repo.GetSession(ctx, opened.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	recomputed, err := svc.Cash.BalanceOf(ctx, *stored)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "closing amount", *stored.ClosingAmount, "20")
	assertMoney(t, "recomputed balance", recomputed.Total, stored.ClosingAmount.String())
}

func TestCloseRetriesWhenSaleLandsWhileSnapshotting(t *testing.T) {
	f := newFixture(t)
	svc, repo := newInterleavedService(f)
	ctx := context.Background()

	if _, err := svc.Cash.Open(ctx, money("20"), "Ana"); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.clock.Advance(time.Minute)

	var saleErr error
	repo.match = func(cs store.ChangeSet) bool { return cs.Sale == nil && len(cs.Sessions) == 1 }
	repo.step = func() {
		f.clock.Advance(time.Second)
		_, saleErr = svc.Checkout(ctx, cashSale(productLine("prod-comb", 1, "12.00")))
		f.clock.Advance(time.Second)
	}

	resp, err := svc.Cash.Close(ctx, "", "Ana")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if saleErr != nil {
		t.Fatalf("checkout during close: %v", saleErr)
	}
	assertMoney(t, "closing amount", *resp.Session.ClosingAmount, "32")

	recomputed, err := svc.Cash.BalanceOf(ctx, resp.Session)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "recomputed balance", recomputed.Total, "32")
}

func TestSaleAtForceCloseInstantCountsOnlyInNewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.open(t, "10", "Ana")
	f.clock.Advance(time.Hour)
	second := f.open(t, "50", "Bruno")

	f.checkout(t, cashSale(productLine("prod-comb", 1, "12.00")))

	stored, err := f.repo.GetSession(ctx, first.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !stored.ClosingTime.Equal(second.Session.OpeningTime) {
		t.Fatalf("expected force-close at the new opening time, got %v and %v", stored.ClosingTime, second.Session.OpeningTime)
	}
	old, err := f.svc.Cash.BalanceOf(ctx, *stored)
	if err != nil {
		t.Fatalf("balance of closed session: %v", err)
	}
	assertMoney(t, "closed session", old.Total, "10")
	assertMoney(t, "closed session snapshot", *stored.ClosingAmount, "10")

	current, err := f.svc.Cash.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	assertMoney(t, "new session", current.Total, "62")
}
