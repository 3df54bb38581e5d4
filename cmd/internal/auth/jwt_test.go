package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthenticator_RoundTrip(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator(testSecret, "huddle", time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok, err := a.GenerateToken("u1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.ViewerID() != "u1" || claims.Username != "alice" || claims.Issuer != "huddle" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	viewer, err := a.Verify(tok)
	if err != nil || viewer != "u1" {
		t.Fatalf("verify: %q %v", viewer, err)
	}
}

func TestAuthenticator_Rejects(t *testing.T) {
	t.Parallel()

	a, _ := NewAuthenticator(testSecret, "huddle", time.Hour)
	other, _ := NewAuthenticator(strings.Repeat("z", 32), "huddle", time.Hour)
	wrongIssuer, _ := NewAuthenticator(testSecret, "someone-else", time.Hour)

	foreign, _ := other.GenerateToken("u1", "")
	misissued, _ := wrongIssuer.GenerateToken("u1", "")

	expiring, _ := NewAuthenticator(testSecret, "huddle", time.Minute)
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiring.GenerateToken("u1", "")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong key", foreign, ErrInvalidToken},
		{"wrong issuer", misissued, ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := a.ValidateToken(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewAuthenticator_ShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewAuthenticator("short", "", time.Hour); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestAuthenticator_TrimsSubject(t *testing.T) {
	t.Parallel()

	a, err := NewAuthenticator(testSecret, "huddle", time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tok, err := a.GenerateToken("  u1\t", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	viewer, err := a.Verify(tok)
	if err != nil || viewer != "u1" {
		t.Fatalf("expected trimmed viewer u1, got %q %v", viewer, err)
	}
}
