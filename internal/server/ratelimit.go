package server

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultContactsLimit and DefaultContactsWindow throttle contact routes
	// per account.
	DefaultContactsLimit  = 15
	DefaultContactsWindow = 120 * time.Second
)

type RateLimitConfig struct {
	GlobalRPS      float64
	GlobalBurst    int
	LoginLimit     int
	LoginWindow    time.Duration
	ContactsLimit  int
	ContactsWindow time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisTimeout   time.Duration
}

// tokenStore counts requests per key inside a fixed window. Implementations
// report whether the request is allowed and how long to wait when it is not.
type tokenStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	Close() error
}

type rateLimiter struct {
	global         *tokenBucket
	loginLimit     int
	loginWindow    time.Duration
	contactsLimit  int
	contactsWindow time.Duration
	store          tokenStore
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		loginLimit:     cfg.LoginLimit,
		loginWindow:    cfg.LoginWindow,
		contactsLimit:  cfg.ContactsLimit,
		contactsWindow: cfg.ContactsWindow,
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.loginWindow <= 0 {
		rl.loginWindow = time.Minute
	}
	if rl.contactsLimit < 0 {
		rl.contactsLimit = 0
	}
	if rl.contactsWindow <= 0 {
		rl.contactsWindow = DefaultContactsWindow
	}
	if cfg.RedisAddr != "" {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	} else {
		rl.store = newMemoryWindowStore()
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

func (r *rateLimiter) AllowLogin(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.loginLimit <= 0 {
		return true, 0, nil
	}
	return r.allow(ctx, "login", key, r.loginLimit, r.loginWindow)
}

func (r *rateLimiter) AllowContacts(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.contactsLimit <= 0 {
		return true, 0, nil
	}
	return r.allow(ctx, "contacts", key, r.contactsLimit, r.contactsWindow)
}

func (r *rateLimiter) allow(ctx context.Context, bucket, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if key == "" {
		key = "unknown"
	}
	return r.store.Allow(ctx, fmt.Sprintf("contactdesk:%s:%s", bucket, key), limit, window)
}

func (r *rateLimiter) Close() {
	if r == nil || r.store == nil {
		return
	}
	_ = r.store.Close()
}

// memoryWindowStore is the in-process fixed-window fallback used when no
// Redis address is configured.
type memoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*windowEntry
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

func newMemoryWindowStore() *memoryWindowStore {
	return &memoryWindowStore{windows: make(map[string]*windowEntry)}
}

func (s *memoryWindowStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked(now)

	entry, ok := s.windows[key]
	if !ok || now.After(entry.resetAt) {
		entry = &windowEntry{resetAt: now.Add(window)}
		s.windows[key] = entry
	}
	entry.count++
	if entry.count <= limit {
		return true, 0, nil
	}
	return false, time.Until(entry.resetAt), nil
}

func (s *memoryWindowStore) cleanupLocked(now time.Time) {
	if len(s.windows) < 1024 {
		return
	}
	for key, entry := range s.windows {
		if now.After(entry.resetAt) {
			delete(s.windows, key)
		}
	}
}

func (s *memoryWindowStore) Close() error { return nil }

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
