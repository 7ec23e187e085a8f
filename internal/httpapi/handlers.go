package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/service"
	"barberpos/backend/internal/store"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.Inventory.LowStock(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleSaveProduct(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if !a.decodeAndValidate(w, r, &product) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		product.ID = id
	}
	saved, err := a.service.SaveProduct(r.Context(), product)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleStockCount(w http.ResponseWriter, r *http.Request) {
	var req domain.StockCountRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	product, err := a.service.Inventory.SetStock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req domain.RestockRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.service.Inventory.Restock(r.Context(), id, req.Quantity); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	for _, product := range products {
		if product.ID == id {
			writeJSON(w, http.StatusOK, product)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "restocked": req.Quantity})
}

func (a *API) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.service.ListServices(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (a *API) handleSaveService(w http.ResponseWriter, r *http.Request) {
	var svc domain.Service
	if !a.decodeAndValidate(w, r, &svc) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		svc.ID = id
	}
	saved, err := a.service.SaveService(r.Context(), svc)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleListBarbers(w http.ResponseWriter, r *http.Request) {
	barbers, err := a.service.ListBarbers(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"barbers": barbers})
}

func (a *API) handleSaveBarber(w http.ResponseWriter, r *http.Request) {
	var barber domain.Barber
	if !a.decodeAndValidate(w, r, &barber) {
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		barber.ID = id
	}
	saved, err := a.service.SaveBarber(r.Context(), barber)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleSaveCustomer(w http.ResponseWriter, r *http.Request) {
	var customer domain.Customer
	if !a.decodeAndValidate(w, r, &customer) {
		return
	}
	saved, err := a.service.SaveCustomer(r.Context(), customer)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (a *API) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	day, err := parseDateQuery(r, "date", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	appointments, err := a.service.ListAppointments(r.Context(), day)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appointments})
}

func (a *API) handleScheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var appt domain.Appointment
	if !a.decodeAndValidate(w, r, &appt) {
		return
	}
	saved, err := a.service.ScheduleAppointment(r.Context(), appt)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (a *API) handleValidateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	if err := a.service.ValidateSale(r.Context(), req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":          true,
		"payment_method": req.Payment.Method(req.Cart.Total()),
	})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateQuery(r, "from", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDateQuery(r, "to", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sales, err := a.service.ListSales(r.Context(), store.SaleFilter{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customer_id")),
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		From:       from,
		To:         to,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReverseSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleReverseRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	sale, err := a.service.ReverseSale(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleCashOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.CashOpenRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	operator := strings.TrimSpace(req.Operator)
	if operator == "" {
		operator = actorName(r)
	}
	resp, err := a.service.Cash.Open(r.Context(), req.OpeningAmount, operator)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleCashClose(w http.ResponseWriter, r *http.Request) {
	var req domain.CashCloseRequest
	if r.ContentLength != 0 && !a.decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := a.service.Cash.Close(r.Context(), strings.TrimSpace(req.SessionID), actorName(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashActive(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.Cash.Active(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.Cash.Balance(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleCashHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 30, 200)
	sessions, err := a.service.Cash.History(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *API) handleCashMovement(txType domain.CashTxType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.CashMovementRequest
		if !a.decodeAndValidate(w, r, &req) {
			return
		}

		var (
			tx  *domain.CashTransaction
			err error
		)
		switch txType {
		case domain.CashWithdrawal:
			tx, err = a.service.Cash.Withdraw(r.Context(), req.Amount, req.Description, actorName(r))
		case domain.CashVoucher:
			tx, err = a.service.Cash.Voucher(r.Context(), req.Amount, req.Description, actorName(r))
		default:
			tx, err = a.service.Cash.Deposit(r.Context(), req.Amount, req.Description, actorName(r))
		}
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func (a *API) handleListCreditAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.service.Credit.Accounts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (a *API) handleEnsureCreditAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditAccountRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	account, err := a.service.Credit.EnsureAccount(r.Context(), req.CustomerID, req.CustomerName, req.Limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleGetCreditAccount(w http.ResponseWriter, r *http.Request) {
	account, err := a.service.Credit.GetAccount(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleCreditTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.Credit.Transactions(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

func (a *API) handleCreditBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.Credit.Balance(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleCreditPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditPaymentRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := a.service.Credit.ApplyPayment(r.Context(), req.CustomerID, req.Amount, req.Method, actorName(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleCreditStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditAccountStatusRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	account, err := a.service.Credit.SetStatus(r.Context(), chi.URLParam(r, "customerID"), req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (a *API) handleCreditEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.CreditEntryRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	customerID := chi.URLParam(r, "customerID")
	account, err := a.service.Credit.GetAccount(r.Context(), customerID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	entry, err := a.service.Credit.RecordTransaction(r.Context(), account.ID, customerID, req.Type, req.Amount, req.Description)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateQuery(r, "from", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseDateQuery(r, "to", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	commissions, err := a.service.Commissions.List(r.Context(), service.CommissionFilter{
		BarberID: strings.TrimSpace(r.URL.Query().Get("barber_id")),
		From:     from,
		To:       to,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commissions": commissions})
}

func (a *API) handleCommissionSummary(w http.ResponseWriter, r *http.Request) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		period = time.Now().UTC().Format(domain.PeriodLayout)
	}
	summary, err := a.service.Commissions.Summary(r.Context(), period)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleListCommissionPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.Commissions.Payments(r.Context(), strings.TrimSpace(r.URL.Query().Get("barber_id")))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (a *API) handlePayCommissions(w http.ResponseWriter, r *http.Request) {
	var req domain.CommissionPayRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}
	from, errFrom := time.Parse(dateLayout, req.From)
	to, errTo := time.Parse(dateLayout, req.To)
	if err := errors.Join(errFrom, errTo); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("from and to must be YYYY-MM-DD"))
		return
	}
	to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)

	payment, err := a.service.Commissions.PayPeriod(r.Context(), req.BarberID, from, to, actorName(r))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}
