package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("OPERATOR_PINS", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.OperatorPINs != "" {
		t.Fatalf("expected empty OPERATOR_PINS when unset, got %q", cfg.OperatorPINs)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STATE_BACKEND", "")
	t.Setenv("CREDIT_DEFAULT_LIMIT", "")

	cfg := Load()
	if cfg.StateBackend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.StateBackend)
	}
	if cfg.CreditDefaultLimit.String() != "500" {
		t.Fatalf("expected default credit limit 500, got %s", cfg.CreditDefaultLimit)
	}
	if cfg.CreditDueDays != 30 || cfg.OverdueCron != "@daily" {
		t.Fatalf("unexpected overdue defaults: %d %q", cfg.CreditDueDays, cfg.OverdueCron)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STATE_BACKEND", "Bolt")
	t.Setenv("CREDIT_DEFAULT_LIMIT", "750.50")
	t.Setenv("COMMISSION_CACHE_TTL_SECONDS", "15")

	cfg := Load()
	if cfg.StateBackend != "bolt" {
		t.Fatalf("expected bolt backend, got %q", cfg.StateBackend)
	}
	if cfg.CreditDefaultLimit.String() != "750.5" {
		t.Fatalf("expected limit 750.5, got %s", cfg.CreditDefaultLimit)
	}
	if cfg.CommissionCacheTTLSeconds != 15 {
		t.Fatalf("expected ttl 15, got %d", cfg.CommissionCacheTTLSeconds)
	}
}

func TestOperatorsParsesEntries(t *testing.T) {
	cfg := Config{OperatorPINs: "ana:admin:482913, bruno:cashier:730264"}

	ops, err := cfg.Operators()
	if err != nil {
		t.Fatalf("parse operators: %v", err)
	}
	if len(ops) != 2 || ops[0].Name != "ana" || ops[1].Role != "cashier" || ops[1].PIN != "730264" {
		t.Fatalf("unexpected operators: %+v", ops)
	}

	if _, err := (Config{OperatorPINs: "ana:owner:482913"}).Operators(); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
	if _, err := (Config{OperatorPINs: "ana:admin"}).Operators(); err == nil {
		t.Fatalf("expected malformed entry to be rejected")
	}
}
