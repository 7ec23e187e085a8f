package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
)

func (f *fixture) sellServices(t *testing.T) {
	t.Helper()
	f.checkout(t, cashSale(
		serviceLine("svc-haircut", "barber-joao", "35"),
		serviceLine("svc-combo", "barber-rafa", "55"),
	))
	f.clock.Advance(time.Minute)
	f.checkout(t, cashSale(
		serviceLine("svc-beard", "barber-joao", "25"),
		productLine("prod-comb", 1, "12.00"),
	))
}

func TestCommissionsPerServiceLine(t *testing.T) {
	f := newFixture(t)
	f.open(t, "0", "Ana")
	f.sellServices(t)

	commissions, err := f.svc.Commissions.List(context.Background(), CommissionFilter{BarberID: "barber-joao"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(commissions) != 2 {
		t.Fatalf("expected two commissions for joao, got %d", len(commissions))
	}
	assertMoney(t, "haircut", commissions[0].Amount, "14")
	assertMoney(t, "beard", commissions[1].Amount, "10")
	if commissions[0].Period != "2026-03" {
		t.Fatalf("unexpected period %s", commissions[0].Period)
	}
}

func TestCommissionSummaryGroupsByBarber(t *testing.T) {
	f := newFixture(t)
	f.open(t, "0", "Ana")
	f.sellServices(t)

	summary, err := f.svc.Commissions.Summary(context.Background(), "2026-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Totals) != 2 {
		t.Fatalf("expected two barbers, got %d", len(summary.Totals))
	}
	joao, rafa := summary.Totals[0], summary.Totals[1]
	if joao.BarberID != "barber-joao" || joao.BarberName != "Joao" || joao.Services != 2 {
		t.Fatalf("unexpected joao total %+v", joao)
	}
	assertMoney(t, "joao", joao.Amount, "24")
	assertMoney(t, "rafa", rafa.Amount, "24.75")
	assertMoney(t, "period", summary.Amount, "48.75")

	empty, err := f.svc.Commissions.Summary(context.Background(), "2026-04")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(empty.Totals) != 0 {
		t.Fatalf("expected empty period, got %+v", empty.Totals)
	}

	if _, err := f.svc.Commissions.Summary(context.Background(), "march"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected bad period rejected, got %v", err)
	}
}

func TestCommissionSummaryRefreshesAfterCheckout(t *testing.T) {
	f := newFixture(t)
	f.open(t, "0", "Ana")
	ctx := context.Background()

	f.checkout(t, cashSale(serviceLine("svc-kids", "barber-rafa", "30")))
	before, err := f.svc.Commissions.Summary(ctx, "2026-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	assertMoney(t, "before", before.Amount, "15")

	f.checkout(t, cashSale(serviceLine("svc-kids", "barber-rafa", "30")))
	after, err := f.svc.Commissions.Summary(ctx, "2026-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	assertMoney(t, "after", after.Amount, "30")
}

func TestCommissionSummaryFollowsServicePercentageChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, "0", "Ana")
	f.sellServices(t)

	before, err := f.svc.Commissions.Summary(ctx, "2026-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	assertMoney(t, "joao before", before.Totals[0].Amount, "24")

	services, err := f.svc.ListServices(ctx)
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	var haircut domain.Service
	for _, svc := range services {
		if svc.ID == "svc-haircut" {
			haircut = svc
		}
	}
	haircut.CommissionPercentage = money("50")
	if _, err := f.svc.SaveService(ctx, haircut); err != nil {
		t.Fatalf("save service: %v", err)
	}

	after, err := f.svc.Commissions.Summary(ctx, "2026-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	assertMoney(t, "joao after", after.Totals[0].Amount, "27.5")
	assertMoney(t, "period after", after.Amount, "52.25")
}

func TestReversedSaleEarnsNoCommission(t *testing.T) {
	f := newFixture(t)
	f.open(t, "0", "Ana")
	ctx := context.Background()

	resp := f.checkout(t, cashSale(serviceLine("svc-haircut", "barber-joao", "35")))
	if _, err := f.svc.Commissions.Summary(ctx, "2026-03"); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if _, err := f.svc.ReverseSale(ctx, resp.Sale.ID, "customer left"); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	summary, err := f.svc.Commissions.Summary(ctx, "2026-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Totals) != 0 {
		t.Fatalf("expected no commission after reversal, got %+v", summary.Totals)
	}
}

func TestPayPeriodRecordsPayment(t *testing.T) {
	f := newFixture(t)
	f.open(t, "0", "Ana")
	f.sellServices(t)
	ctx := context.Background()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)

	if _, err := f.svc.Commissions.Summary(ctx, "2026-03"); err != nil {
		t.Fatalf("summary: %v", err)
	}

	payment, err := f.svc.Commissions.PayPeriod(ctx, "barber-joao", from, to, "admin")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	assertMoney(t, "paid", payment.Amount, "24")

	summary, err := f.svc.Commissions.Summary(ctx, "2026-03")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	assertMoney(t, "joao paid", summary.Totals[0].Paid, "24")
	assertMoney(t, "rafa paid", summary.Totals[1].Paid, "0")

	payments, err := f.svc.Commissions.Payments(ctx, "barber-joao")
	if err != nil || len(payments) != 1 {
		t.Fatalf("expected one payment, got %d, %v", len(payments), err)
	}

	if _, err := f.svc.Commissions.PayPeriod(ctx, "barber-joao", to, from, "admin"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected inverted range rejected, got %v", err)
	}
	if _, err := f.svc.Commissions.PayPeriod(ctx, "barber-ghost", from, to, "admin"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown barber, got %v", err)
	}
}

func TestPeriodsBetween(t *testing.T) {
	got := periodsBetween(
		time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 1, 5, 0, 0, 0, 0, time.UTC),
	)
	want := []string{"2026-11", "2026-12", "2027-01"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
