package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"barberpos/backend/internal/cache"
	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/store"
	"barberpos/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

type CommissionFilter struct {
	BarberID string
	From     *time.Time
	To       *time.Time
}

// Commissions derives barber commissions from completed sales. It never
// writes to sales; paying a period only appends a CommissionPayment.
type Commissions struct {
	repo   store.Repository
	cache  cache.CommissionCache
	ttl    time.Duration
	logger *zap.Logger
	now    Clock
}

func NewCommissions(repo store.Repository, commissionCache cache.CommissionCache, ttl time.Duration, logger *zap.Logger, now Clock) *Commissions {
	if commissionCache == nil {
		commissionCache = cache.NoopCommissionCache{}
	}
	return &Commissions{repo: repo, cache: commissionCache, ttl: ttl, logger: logger, now: now}
}

// List returns one commission per service line with a barber, at the
// service's current commission percentage.
func (c *Commissions) List(ctx context.Context, filter CommissionFilter) ([]domain.Commission, error) {
	sales, err := c.repo.ListSales(ctx, store.SaleFilter{Status: domain.SaleStatusCompleted, From: filter.From, To: filter.To})
	if err != nil {
		return nil, err
	}
	services, err := c.repo.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	percentages := make(map[string]decimal.Decimal, len(services))
	for _, svc := range services {
		percentages[svc.ID] = svc.CommissionPercentage
	}

	out := make([]domain.Commission, 0, len(sales))
	for _, sale := range sales {
		for i, item := range sale.Items {
			if item.Type != domain.ItemService || item.BarberID == "" {
				continue
			}
			if filter.BarberID != "" && item.BarberID != filter.BarberID {
				continue
			}
			pct := percentages[item.ServiceID]
			base := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
			out = append(out, domain.Commission{
				SaleID:     sale.ID,
				ItemIndex:  i,
				BarberID:   item.BarberID,
				ServiceID:  item.ServiceID,
				Base:       base,
				Percentage: pct,
				Amount:     base.Mul(pct).Div(hundred),
				Period:     sale.CreatedAt.UTC().Format(domain.PeriodLayout),
				SaleDate:   sale.CreatedAt,
			})
		}
	}
	return out, nil
}

// Summary totals commissions per barber for a YYYY-MM period. Results are
// cached until a sale in the period changes or a payment is recorded.
func (c *Commissions) Summary(ctx context.Context, period string) (*domain.CommissionSummary, error) {
	from, to, err := periodRange(period)
	if err != nil {
		return nil, err
	}

	key := cache.CommissionKey(period)
	if cached, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("commission cache read failed", zap.String("period", period), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	commissions, err := c.List(ctx, CommissionFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	payments, err := c.repo.ListCommissionPayments(ctx, "")
	if err != nil {
		return nil, err
	}

	byBarber := make(map[string]*domain.CommissionTotal)
	order := make([]string, 0, 4)
	total := decimal.Zero
	for _, commission := range commissions {
		entry, ok := byBarber[commission.BarberID]
		if !ok {
			entry = &domain.CommissionTotal{BarberID: commission.BarberID, Period: period, Amount: decimal.Zero, Paid: decimal.Zero}
			byBarber[commission.BarberID] = entry
			order = append(order, commission.BarberID)
		}
		entry.Services++
		entry.Amount = entry.Amount.Add(commission.Amount)
		total = total.Add(commission.Amount)
	}
	for _, payment := range payments {
		entry, ok := byBarber[payment.BarberID]
		if !ok || payment.From.Before(from) || payment.From.After(to) {
			continue
		}
		entry.Paid = entry.Paid.Add(payment.Amount)
	}

	summary := &domain.CommissionSummary{
		Period:      period,
		GeneratedAt: c.now(),
		Totals:      make([]domain.CommissionTotal, 0, len(order)),
		Amount:      total,
	}
	for _, barberID := range order {
		entry := byBarber[barberID]
		if barber, err := c.repo.GetBarber(ctx, barberID); err == nil {
			entry.BarberName = barber.Name
		}
		summary.Totals = append(summary.Totals, *entry)
	}
	slices.SortFunc(summary.Totals, func(a, b domain.CommissionTotal) int {
		return strings.Compare(a.BarberID, b.BarberID)
	})

	if c.ttl > 0 {
		if err := c.cache.Set(ctx, key, summary, c.ttl); err != nil {
			c.logger.Warn("commission cache write failed", zap.String("period", period), zap.Error(err))
		}
	}
	return summary, nil
}

// PayPeriod records that a barber was paid the commissions earned between
// from and to. Overlapping an earlier payment is allowed and only logged.
func (c *Commissions) PayPeriod(ctx context.Context, barberID string, from time.Time, to time.Time, paidBy string) (*domain.CommissionPayment, error) {
	if _, err := c.repo.GetBarber(ctx, barberID); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: period ends before it starts", store.ErrInvalidTransaction)
	}

	commissions, err := c.List(ctx, CommissionFilter{BarberID: barberID, From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	amount := decimal.Zero
	for _, commission := range commissions {
		amount = amount.Add(commission.Amount)
	}

	previous, err := c.repo.ListCommissionPayments(ctx, barberID)
	if err != nil {
		return nil, err
	}
	for _, p := range previous {
		if !from.After(p.To) && !p.From.After(to) {
			c.logger.Warn("commission payment overlaps an earlier payment",
				zap.String("barber_id", barberID),
				zap.String("payment_id", p.ID),
				zap.Time("from", from),
				zap.Time("to", to),
			)
		}
	}

	payment := domain.CommissionPayment{
		ID:        xid.New("comm"),
		BarberID:  barberID,
		From:      from,
		To:        to,
		Amount:    amount,
		PaidBy:    paidBy,
		CreatedAt: c.now(),
	}
	if err := c.repo.Apply(ctx, store.ChangeSet{CommissionPayments: []domain.CommissionPayment{payment}}); err != nil {
		return nil, err
	}
	c.Invalidate(ctx, periodsBetween(from, to)...)

	c.logger.Info("commission paid",
		zap.String("barber_id", barberID),
		zap.String("amount", amount.String()),
		zap.Int("services", len(commissions)),
	)
	return &payment, nil
}

func (c *Commissions) Payments(ctx context.Context, barberID string) ([]domain.CommissionPayment, error) {
	return c.repo.ListCommissionPayments(ctx, barberID)
}

func (c *Commissions) Invalidate(ctx context.Context, periods ...string) {
	if len(periods) == 0 {
		return
	}
	keys := make([]string, 0, len(periods))
	for _, period := range periods {
		keys = append(keys, cache.CommissionKey(period))
	}
	if err := c.cache.Invalidate(ctx, keys...); err != nil {
		c.logger.Warn("commission cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// InvalidateService drops the cached summaries of every period holding a
// completed sale of serviceID, since those commissions follow the service's
// current percentage.
func (c *Commissions) InvalidateService(ctx context.Context, serviceID string) {
	sales, err := c.repo.ListSales(ctx, store.SaleFilter{Status: domain.SaleStatusCompleted})
	if err != nil {
		c.logger.Warn("commission cache invalidate failed", zap.String("service_id", serviceID), zap.Error(err))
		return
	}
	periods := make([]string, 0, 2)
	for _, sale := range sales {
		if !slices.ContainsFunc(sale.Items, func(item domain.SaleItem) bool {
			return item.Type == domain.ItemService && item.ServiceID == serviceID
		}) {
			continue
		}
		period := sale.CreatedAt.UTC().Format(domain.PeriodLayout)
		if !slices.Contains(periods, period) {
			periods = append(periods, period)
		}
	}
	c.Invalidate(ctx, periods...)
}

func periodRange(period string) (time.Time, time.Time, error) {
	start, err := time.Parse(domain.PeriodLayout, period)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period %q must be YYYY-MM", store.ErrInvalidTransaction, period)
	}
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end, nil
}

func periodsBetween(from time.Time, to time.Time) []string {
	out := make([]string, 0, 2)
	cursor := time.Date(from.UTC().Year(), from.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(to.UTC()) {
		out = append(out, cursor.Format(domain.PeriodLayout))
		cursor = cursor.AddDate(0, 1, 0)
	}
	return out
}
