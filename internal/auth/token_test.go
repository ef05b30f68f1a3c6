package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret", "cloudlicense")
	raw, err := v.Issue(AuthContext{UserID: "dev-1", Email: "dev@example.com", Role: RoleDeveloper}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ac, err := v.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ac.UserID != "dev-1" {
		t.Errorf("UserID = %q, want %q", ac.UserID, "dev-1")
	}
	if ac.Role != RoleDeveloper {
		t.Errorf("Role = %q, want %q", ac.Role, RoleDeveloper)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	raw, _ := NewTokenVerifier("one", "").Issue(AuthContext{UserID: "u", Role: RoleCustomer}, time.Hour)
	_, err := NewTokenVerifier("two", "").Verify(raw)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenExpired(t *testing.T) {
	v := NewTokenVerifier("secret", "")
	raw, _ := v.Issue(AuthContext{UserID: "u", Role: RoleCustomer}, -time.Hour)
	if _, err := v.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenWrongIssuer(t *testing.T) {
	raw, _ := NewTokenVerifier("secret", "elsewhere").Issue(AuthContext{UserID: "u", Role: RoleCustomer}, time.Hour)
	if _, err := NewTokenVerifier("secret", "cloudlicense").Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenUnknownRole(t *testing.T) {
	v := NewTokenVerifier("secret", "")
	raw, _ := v.Issue(AuthContext{UserID: "u", Role: "superuser"}, time.Hour)
	if _, err := v.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
