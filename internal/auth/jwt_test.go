package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("test-secret", "user-1", "tenant-a", "editor", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ValidateToken("test-secret", token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "tenant-a" || claims.Role != "editor" {
		t.Fatalf("claims mangled: %+v", claims)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := IssueToken("secret-one", "user-1", "tenant-a", "reader", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := ValidateToken("secret-two", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenExpired(t *testing.T) {
	token, err := IssueToken("test-secret", "user-1", "tenant-a", "reader", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := ValidateToken("test-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenMissingTenant(t *testing.T) {
	token, err := IssueToken("test-secret", "user-1", "", "reader", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := ValidateToken("test-secret", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
