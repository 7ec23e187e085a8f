package main

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"barberpos/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret":   {AuthSecret: "short", OperatorPINs: "ana:admin:7391"},
		"no operators":   {AuthSecret: strongSecret},
		"sequential pin": {AuthSecret: strongSecret, OperatorPINs: "ana:admin:2345"},
		"repeated pin":   {AuthSecret: strongSecret, OperatorPINs: "ana:admin:7777"},
		"short pin":      {AuthSecret: strongSecret, OperatorPINs: "ana:admin:73"},
		"no admin":       {AuthSecret: strongSecret, OperatorPINs: "ana:cashier:7391"},
	}
	for name, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected weak security config to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	cfg := config.Config{
		AuthSecret:   strongSecret,
		OperatorPINs: "ana:admin:739154,bruno:cashier:$2a$10$CwTycUXWue0Thq9StjUM0uJ8DPLKXt1FYlwYpQW2G3cAwjKoh2WZu",
	}
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenStateStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	lg := zap.NewNop()

	mem, closeFn, err := openStateStore(ctx, config.Config{StateBackend: "memory"}, lg)
	if err != nil || mem == nil || closeFn != nil {
		t.Fatalf("unexpected memory backend result: %v %v", mem, err)
	}

	path := filepath.Join(t.TempDir(), "pos.db")
	bolt, closeFn, err := openStateStore(ctx, config.Config{StateBackend: "bolt", BoltPath: path}, lg)
	if err != nil || bolt == nil || closeFn == nil {
		t.Fatalf("unexpected bolt backend result: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close bolt: %v", err)
	}

	if _, _, err := openStateStore(ctx, config.Config{StateBackend: "postgres"}, lg); err == nil {
		t.Fatalf("expected postgres without DATABASE_URL rejected")
	}
	if _, _, err := openStateStore(ctx, config.Config{StateBackend: "sqlite"}, lg); err == nil {
		t.Fatalf("expected unknown backend rejected")
	}
}
