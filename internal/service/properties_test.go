package service

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
)

func cents(v int) decimal.Decimal {
	return decimal.New(int64(v), -2)
}

func propertyParameters() *gopter.TestParameters {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	return params
}

func TestProperty_CommittedSalePaymentsAddUpToTotal(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("allocations of a committed sale sum to its total", prop.ForAll(
		func(qty int, priceCents int, cashShare int, pixShare int) bool {
			f := newFixture(t)
			f.open(t, "0", "Ana")

			total := cents(priceCents * qty)
			cash := total.Mul(decimal.NewFromInt(int64(cashShare))).Div(hundred).Round(2)
			pix := total.Sub(cash).Mul(decimal.NewFromInt(int64(pixShare))).Div(hundred).Round(2)
			card := total.Sub(cash).Sub(pix)

			resp, err := f.svc.Checkout(context.Background(), domain.SaleRequest{
				Cart:    domain.Cart{Items: []domain.CartItem{productLine("prod-comb", qty, cents(priceCents).String())}},
				Payment: domain.PaymentAllocation{Cash: &cash, Card: &card, Pix: &pix},
			})
			if err != nil {
				t.Logf("checkout failed: %v", err)
				return false
			}
			return domain.MoneyEqual(resp.Sale.Total, resp.Sale.Payment.Sum()) &&
				resp.PaymentMethod == resp.Sale.Payment.Method(resp.Sale.Total)
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 20000),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_StockNeverGoesNegative(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("stock equals the initial count less accepted quantities", prop.ForAll(
		func(quantities []int) bool {
			f := newFixture(t)
			f.open(t, "0", "Ana")
			ctx := context.Background()

			expected := f.stock(t, "prod-aftershave")
			for _, qty := range quantities {
				_, err := f.svc.Checkout(ctx, cashSale(productLine("prod-aftershave", qty, "34.00")))
				switch {
				case err == nil:
					expected -= qty
				case errors.Is(err, store.ErrInsufficientStock):
				default:
					t.Logf("unexpected error: %v", err)
					return false
				}
				got := f.stock(t, "prod-aftershave")
				if got < 0 || got != expected {
					t.Logf("stock %d, expected %d", got, expected)
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.IntRange(1, 6)),
	))

	properties.TestingRun(t)
}

func TestProperty_LedgerConvergesWithSaleDerivedBalance(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("ledger and sale-derived balances agree for itemised sales", prop.ForAll(
		func(purchases []int, payments []int) bool {
			f := newFixture(t)
			f.open(t, "0", "Ana")
			ctx := context.Background()

			for _, value := range purchases {
				price := cents(value)
				if _, err := f.svc.Checkout(ctx, domain.SaleRequest{
					Cart:       domain.Cart{Items: []domain.CartItem{productLine("prod-comb", 1, price.String())}},
					Payment:    domain.PaymentAllocation{Credit: &price},
					CustomerID: "cust-pedro",
				}); err != nil {
					t.Logf("credit sale failed: %v", err)
					return false
				}
			}
			for _, value := range payments {
				if _, err := f.svc.Credit.ApplyPayment(ctx, "cust-pedro", cents(value), domain.PaymentCash, ""); err != nil {
					t.Logf("payment failed: %v", err)
					return false
				}
			}

			balance, err := f.svc.Credit.Balance(ctx, "cust-pedro")
			if err != nil {
				t.Logf("balance failed: %v", err)
				return false
			}
			account, err := f.svc.Credit.GetAccount(ctx, "cust-pedro")
			if err != nil {
				return false
			}
			return balance.Consistent && domain.MoneyEqual(account.TotalDebt, balance.Outstanding)
		},
		gen.SliceOfN(5, gen.IntRange(100, 20000)),
		gen.SliceOfN(3, gen.IntRange(1, 15000)),
	))

	properties.TestingRun(t)
}
