package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"barberpos/backend/internal/domain"
	"barberpos/backend/internal/service"
	"barberpos/backend/internal/store"
)

const dateLayout = "2006-01-02"

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	logger        *zap.Logger
	validate      *validator.Validate
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		logger:        logger,
		validate:      validator.New(),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

// clientKey is the peer address of the connection. Forwarding headers are
// client-supplied and never used.
func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)
	r.Use(a.securityHeaders)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth("cashier", "admin"))

			r.Get("/products", a.handleListProducts)
			r.Get("/products/low-stock", a.handleLowStock)
			r.Get("/services", a.handleListServices)
			r.Get("/barbers", a.handleListBarbers)
			r.Get("/customers", a.handleListCustomers)
			r.Post("/customers", a.handleSaveCustomer)
			r.Get("/appointments", a.handleListAppointments)
			r.Post("/appointments", a.handleScheduleAppointment)

			r.Post("/sales/validate", a.handleValidateSale)
			r.Post("/sales", a.handleCheckout)
			r.Get("/sales", a.handleListSales)
			r.Get("/sales/{id}", a.handleGetSale)

			r.Post("/cash/open", a.handleCashOpen)
			r.Post("/cash/close", a.handleCashClose)
			r.Get("/cash/active", a.handleCashActive)
			r.Get("/cash/balance", a.handleCashBalance)
			r.Get("/cash/history", a.handleCashHistory)
			r.Post("/cash/withdrawals", a.handleCashMovement(domain.CashWithdrawal))
			r.Post("/cash/vouchers", a.handleCashMovement(domain.CashVoucher))
			r.Post("/cash/deposits", a.handleCashMovement(domain.CashDeposit))

			r.Get("/credit/accounts", a.handleListCreditAccounts)
			r.Post("/credit/accounts", a.handleEnsureCreditAccount)
			r.Get("/credit/accounts/{customerID}", a.handleGetCreditAccount)
			r.Get("/credit/accounts/{customerID}/transactions", a.handleCreditTransactions)
			r.Get("/credit/accounts/{customerID}/balance", a.handleCreditBalance)
			r.Post("/credit/payments", a.handleCreditPayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth("admin"))

			r.Post("/products", a.handleSaveProduct)
			r.Put("/products/{id}", a.handleSaveProduct)
			r.Put("/products/{id}/stock", a.handleStockCount)
			r.Post("/products/{id}/restock", a.handleRestock)
			r.Post("/services", a.handleSaveService)
			r.Put("/services/{id}", a.handleSaveService)
			r.Post("/barbers", a.handleSaveBarber)
			r.Put("/barbers/{id}", a.handleSaveBarber)

			r.Post("/sales/{id}/reverse", a.handleReverseSale)

			r.Patch("/credit/accounts/{customerID}/status", a.handleCreditStatus)
			r.Post("/credit/accounts/{customerID}/transactions", a.handleCreditEntry)

			r.Get("/commissions", a.handleListCommissions)
			r.Get("/commissions/summary", a.handleCommissionSummary)
			r.Get("/commissions/payments", a.handleListCommissionPayments)
			r.Post("/commissions/payments", a.handlePayCommissions)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		a.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeAndValidate reads a JSON body into dest and runs its validate tags.
// It writes the error response itself and reports whether to continue.
func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "validation failed",
				"fields": formatValidationErrors(invalid),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func formatValidationErrors(errs validator.ValidationErrors) []fieldError {
	out := make([]fieldError, 0, len(errs))
	for _, e := range errs {
		msg := "invalid value"
		switch e.Tag() {
		case "required":
			msg = "this field is required"
		case "oneof":
			msg = "must be one of: " + e.Param()
		case "gte":
			msg = "must be greater than or equal to " + e.Param()
		}
		out = append(out, fieldError{Field: e.Field(), Message: msg})
	}
	return out
}

// writeServiceError maps service and store errors onto HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr      *service.InsufficientStockError
		incomplete    *service.IncompletePaymentError
		persistenceEr *store.PersistenceError
	)
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     err.Error(),
			"remaining": incomplete.Remaining.StringFixed(2),
		})
	case errors.As(err, &persistenceEr):
		a.logger.Error("persistence failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, service.ErrSessionNotOpen):
		writeError(w, http.StatusPreconditionFailed, err)
	case errors.Is(err, service.ErrSessionAlreadyClosed), errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidItem),
		errors.Is(err, service.ErrMissingBarber),
		errors.Is(err, service.ErrMissingCustomerForCredit),
		errors.Is(err, service.ErrAccountBlocked),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingDescription),
		errors.Is(err, service.ErrMissingOperator),
		errors.Is(err, store.ErrInvalidTransaction):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		a.logger.Error("request failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func actorName(r *http.Request) string {
	if actor, ok := service.ActorFromContext(r.Context()); ok {
		return actor.Username
	}
	return ""
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseDateQuery reads a YYYY-MM-DD query value. endOfDay moves the result to
// the last instant of that day.
func parseDateQuery(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", key)
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the logs
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
