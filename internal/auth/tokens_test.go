package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, opts ...TokenOption) *TokenManager {
	t.Helper()
	manager, err := NewTokenManager("unit-test-secret", opts...)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return manager
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager("   "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	cases := []struct {
		name  string
		issue func(string) (string, time.Time, error)
		scope string
	}{
		{"access", manager.AccessToken, ScopeAccess},
		{"refresh", manager.RefreshToken, ScopeRefresh},
		{"email", manager.EmailToken, ScopeEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, expires, err := tc.issue("user@example.com")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if !expires.After(time.Now()) {
				t.Fatal("expected future expiry")
			}
			email, err := manager.Parse(token, tc.scope)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if email != "user@example.com" {
				t.Fatalf("expected subject user@example.com, got %q", email)
			}
		})
	}
}

func TestParseRejectsWrongScope(t *testing.T) {
	manager := newTestManager(t)
	token, _, err := manager.RefreshToken("user@example.com")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if _, err := manager.Parse(token, ScopeAccess); !errors.Is(err, ErrWrongScope) {
		t.Fatalf("expected ErrWrongScope, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	current := issuedAt
	manager := newTestManager(t,
		WithAccessTTL(time.Minute),
		WithTokenClock(func() time.Time { return current }),
	)

	token, _, err := manager.AccessToken("user@example.com")
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	current = issuedAt.Add(30 * time.Second)
	if _, err := manager.Parse(token, ScopeAccess); err != nil {
		t.Fatalf("token should still be valid: %v", err)
	}

	current = issuedAt.Add(2 * time.Minute)
	if _, err := manager.Parse(token, ScopeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	manager := newTestManager(t)
	other, err := NewTokenManager("a-different-secret")
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, _, err := other.AccessToken("user@example.com")
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if _, err := manager.Parse(token, ScopeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStableAndOpaque(t *testing.T) {
	first := HashToken("some-token")
	second := HashToken("some-token")
	if first != second {
		t.Fatal("expected deterministic digests")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
	if first == HashToken("another-token") {
		t.Fatal("different tokens must hash differently")
	}
}
