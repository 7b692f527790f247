// Package auth issues and verifies the signed tokens used by the HTTP API:
// short-lived access tokens, rotating refresh tokens, and email confirmation
// tokens. All three are HS256 JWTs distinguished by a scope claim.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopeAccess marks tokens accepted by authenticated API routes.
	ScopeAccess = "access_token"
	// ScopeRefresh marks tokens accepted only by the refresh endpoint.
	ScopeRefresh = "refresh_token"
	// ScopeEmail marks tokens embedded in confirmation email links.
	ScopeEmail = "email_token"
)

const (
	DefaultAccessTTL  = 2 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultEmailTTL   = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongScope   = errors.New("token scope mismatch")
)

// Claims is the JWT payload. The subject carries the account email.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// TokenManager signs and verifies tokens with a single shared secret.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	emailTTL   time.Duration
	clock      func() time.Time
}

// TokenOption tunes a TokenManager.
type TokenOption func(*TokenManager)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
	}
}

// WithEmailTTL overrides the email confirmation token lifetime.
func WithEmailTTL(ttl time.Duration) TokenOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.emailTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source, primarily for tests.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewTokenManager builds a manager around the given HMAC secret.
func NewTokenManager(secret string, opts ...TokenOption) (*TokenManager, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("token secret required")
	}
	manager := &TokenManager{
		secret:     []byte(trimmed),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		emailTTL:   DefaultEmailTTL,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

// AccessToken issues an access token for the given account email.
func (m *TokenManager) AccessToken(email string) (string, time.Time, error) {
	return m.issue(email, ScopeAccess, m.accessTTL)
}

// RefreshToken issues a refresh token for the given account email.
func (m *TokenManager) RefreshToken(email string) (string, time.Time, error) {
	return m.issue(email, ScopeRefresh, m.refreshTTL)
}

// EmailToken issues a confirmation token for the given account email.
func (m *TokenManager) EmailToken(email string) (string, time.Time, error) {
	return m.issue(email, ScopeEmail, m.emailTTL)
}

func (m *TokenManager) issue(email, scope string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(email) == "" {
		return "", time.Time{}, errors.New("token subject required")
	}
	now := m.clock()
	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Scope: scope,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s: %w", scope, err)
	}
	return signed, expires, nil
}

// Parse verifies the token signature, expiry, and scope, returning the
// account email it was issued for.
func (m *TokenManager) Parse(token, scope string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Scope != scope {
		return "", ErrWrongScope
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// HashToken returns the hex SHA-256 digest of a token. Refresh tokens are
// persisted hashed so a database leak cannot replay them.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
