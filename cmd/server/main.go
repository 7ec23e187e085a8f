package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"barberpos/backend/internal/cache"
	"barberpos/backend/internal/config"
	"barberpos/backend/internal/httpapi"
	"barberpos/backend/internal/jobs"
	"barberpos/backend/internal/logger"
	"barberpos/backend/internal/service"
	"barberpos/backend/internal/store"
	boltstore "barberpos/backend/internal/store/bolt"
	"barberpos/backend/internal/store/memory"
	pgstore "barberpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	backend, closeBackend, err := openStateStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("state backend unavailable; refusing to start", zap.String("backend", cfg.StateBackend), zap.Error(err))
	}
	if closeBackend != nil {
		closers = append(closers, closeBackend)
	}

	repo, err := memory.Open(ctx, backend, cfg.SeedDemo)
	if err != nil {
		lg.Fatal("load state", zap.Error(err))
	}

	var commissionCache cache.CommissionCache = cache.NewMemoryCommissionCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCommissionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			lg.Warn("redis unavailable, using in-process cache", zap.Error(err))
		} else {
			commissionCache = redisCache
			closers = append(closers, redisCache.Close)
			lg.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		lg.Info("cache: memory")
	}

	svc := service.New(repo, service.Options{
		Logger:             lg,
		Cache:              commissionCache,
		CommissionCacheTTL: time.Duration(cfg.CommissionCacheTTLSeconds) * time.Second,
		CreditDefaultLimit: cfg.CreditDefaultLimit,
	})

	scheduler := jobs.New(lg.Named("jobs"), time.Local)
	dueAfter := time.Duration(cfg.CreditDueDays) * 24 * time.Hour
	if err := scheduler.AddOverdueSweep(cfg.OverdueCron, svc.Credit, dueAfter); err != nil {
		lg.Fatal("schedule overdue sweep", zap.Error(err))
	}
	scheduler.Start()

	operators, err := cfg.Operators()
	if err != nil {
		lg.Fatal("operators", zap.Error(err))
	}
	authOperators := make([]httpapi.Operator, 0, len(operators))
	for _, op := range operators {
		authOperators = append(authOperators, httpapi.Operator{Name: op.Name, Role: op.Role, PIN: op.PIN})
	}
	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, authOperators)
	if err != nil {
		lg.Fatal("auth", zap.Error(err))
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, lg.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("barbershop POS listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown error", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			lg.Error("close error", zap.Error(err))
		}
	}

	lg.Info("server stopped")
}

// openStateStore picks where the POS state is persisted. The returned close
// function is nil for the in-process backend.
func openStateStore(ctx context.Context, cfg config.Config, lg *zap.Logger) (store.StateStore, func() error, error) {
	switch cfg.StateBackend {
	case "", "memory":
		lg.Info("state backend: memory")
		return memory.NewStateStore(), nil, nil
	case "bolt":
		bs, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		lg.Info("state backend: bolt", zap.String("path", cfg.BoltPath))
		return bs, bs.Close, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, lg.Named("postgres"))
		if err != nil {
			return nil, nil, err
		}
		lg.Info("state backend: postgres")
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown STATE_BACKEND %q", cfg.StateBackend)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	operators, err := cfg.Operators()
	if err != nil {
		return err
	}
	if len(operators) == 0 {
		return fmt.Errorf("OPERATOR_PINS must list at least one operator")
	}
	hasAdmin := false
	for _, op := range operators {
		if op.Role == "admin" {
			hasAdmin = true
		}
		if isBcryptHash(op.PIN) {
			continue
		}
		if len(op.PIN) < 4 {
			return fmt.Errorf("PIN for %s must be at least 4 digits", op.Name)
		}
		if err := validatePINStrength(op.PIN); err != nil {
			return fmt.Errorf("PIN for %s is too weak: %w", op.Name, err)
		}
	}
	if !hasAdmin {
		return fmt.Errorf("OPERATOR_PINS must include an admin")
	}
	return nil
}

func isBcryptHash(pin string) bool {
	return strings.HasPrefix(pin, "$2a$") || strings.HasPrefix(pin, "$2b$") || strings.HasPrefix(pin, "$2y$")
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"1234": true, "4321": true, "0000": true, "1212": true, "6969": true,
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	// e.g. 2345, 9876
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
