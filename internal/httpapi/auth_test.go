package httpapi

import (
	"testing"
	"time"

	"barberpos/backend/internal/domain"
)

func TestNewAuthManagerRejectsBadInput(t *testing.T) {
	if _, err := NewAuthManager("", time.Hour, nil); err == nil {
		t.Fatalf("expected empty secret rejected")
	}
	if _, err := NewAuthManager("secret", time.Hour, []Operator{{Name: "ana", Role: "owner", PIN: "4821"}}); err == nil {
		t.Fatalf("expected unknown role rejected")
	}
	if _, err := NewAuthManager("secret", time.Hour, []Operator{{Name: " ", Role: "cashier", PIN: "4821"}}); err == nil {
		t.Fatalf("expected blank operator name rejected")
	}
}

func TestLoginIssuesTokenCarryingRole(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, []Operator{
		{Name: "Ana", Role: "cashier", PIN: mustHashPIN(t, "4821")},
	})
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}

	resp, err := auth.Login(domain.LoginRequest{Username: " ANA ", PIN: "4821"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != "cashier" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "ana" || actor.Role != "cashier" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsWrongPIN(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, []Operator{
		{Name: "ana", Role: "cashier", PIN: mustHashPIN(t, "4821")},
	})
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "ana", PIN: "0000"}); err == nil {
		t.Fatalf("expected wrong pin rejected")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "bruno", PIN: "4821"}); err == nil {
		t.Fatalf("expected unknown operator rejected")
	}
}

func TestAddOperatorHashesPlainPIN(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	if err := auth.AddOperator(Operator{Name: "caio", Role: "admin", PIN: "7391"}); err != nil {
		t.Fatalf("add operator: %v", err)
	}

	stored := auth.users["caio"].pinHash
	if !isPINHash(stored) || stored == "7391" {
		t.Fatalf("expected pin stored as bcrypt hash, got %q", stored)
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "caio", PIN: "7391"}); err != nil {
		t.Fatalf("login with plain pin: %v", err)
	}
}

func TestParseTokenRejectsForeignAndExpiredTokens(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	other, err := NewAuthManager("other-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}

	foreign, err := other.sign("ana", "admin", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret rejected")
	}

	expired, err := auth.sign("ana", "admin", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token rejected")
	}

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token rejected")
	}
}
