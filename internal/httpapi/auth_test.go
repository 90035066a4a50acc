package httpapi

import (
	"context"
	"testing"
	"time"

	"sepukopi/backend/internal/domain"
	"sepukopi/backend/internal/store/memory"
)

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if actor.ID == "" {
		t.Fatalf("expected user id claim in token")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected login to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "admin123"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
}

func TestLoginSeesUsersAddedBehindTheManager(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	// An account written straight to the store, bypassing CreateCashier, must
	// still be able to log in.
	hash, err := hashPassword("rahasia77")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "tukang",
		Password: hash,
		Role:     domain.RoleCashier,
		Active:   true,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	resp, err := auth.Login(domain.LoginRequest{Username: "tukang", Password: "rahasia77"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleCashier {
		t.Fatalf("expected cashier role, got %s", resp.Role)
	}
}

func TestLoginUpgradesPlainTextPassword(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "lawas",
		Password: "warisan88",
		Role:     domain.RoleCashier,
		Active:   true,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "lawas", Password: "warisan88"}); err != nil {
		t.Fatalf("login with legacy password: %v", err)
	}

	stored, err := repo.GetUserByUsername(context.Background(), "lawas")
	if err != nil {
		t.Fatalf("load stored user: %v", err)
	}
	if !isPasswordHash(stored.Password) {
		t.Fatalf("legacy password was not upgraded to a hash")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	other := NewAuthManager("another-secret-key", time.Hour, repo)

	resp, err := other.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	repo := memory.NewSeeded()
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	cases := []domain.CashierCreateRequest{
		{Username: "ab", Password: "secret99"},
		{Username: "valid_name", Password: "123"},
		{Username: "admin", Password: "secret99"},
	}
	for _, req := range cases {
		if _, err := auth.CreateCashier(req); err == nil {
			t.Fatalf("expected CreateCashier(%+v) to fail", req)
		}
	}

	cashier, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "Valida", Password: "secret99"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.Username != "valida" {
		t.Fatalf("expected lowercased username, got %s", cashier.Username)
	}
	if cashier.Role != domain.RoleCashier {
		t.Fatalf("expected cashier role, got %s", cashier.Role)
	}

	// Password must be persisted hashed.
	stored, err := repo.GetUserByUsername(context.Background(), "valida")
	if err != nil {
		t.Fatalf("load stored user: %v", err)
	}
	if !isPasswordHash(stored.Password) {
		t.Fatalf("stored password is not a bcrypt hash")
	}
}
