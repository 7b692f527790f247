package storage

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type memoryConfig struct {
	BcryptCost int
	Clock      func() time.Time
}

func newMemoryConfig(opts ...Option) memoryConfig {
	cfg := memoryConfig{BcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		if opt != nil {
			opt.applyMemory(&cfg)
		}
	}
	return cfg
}

// Option configures a repository implementation. Options that only concern
// one backend are ignored by the other.
type Option interface {
	applyMemory(*memoryConfig)
	applyPostgres(*PostgresConfig)
}

type optionAdapter struct {
	memory func(*memoryConfig)
	pg     func(*PostgresConfig)
}

func (o optionAdapter) applyMemory(cfg *memoryConfig) {
	if o.memory != nil && cfg != nil {
		o.memory(cfg)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.pg != nil && cfg != nil {
		o.pg(cfg)
	}
}

func composeOption(memory func(*memoryConfig), pg func(*PostgresConfig)) Option {
	return optionAdapter{memory: memory, pg: pg}
}

func postgresOnlyOption(pg func(*PostgresConfig)) Option {
	return optionAdapter{pg: pg}
}

// WithBcryptCost overrides the bcrypt work factor used when hashing account
// passwords.
func WithBcryptCost(cost int) Option {
	return composeOption(
		func(cfg *memoryConfig) {
			if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
				cfg.BcryptCost = cost
			}
		},
		func(cfg *PostgresConfig) {
			if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
				cfg.BcryptCost = cost
			}
		},
	)
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return composeOption(
		func(cfg *memoryConfig) {
			if clock != nil {
				cfg.Clock = clock
			}
		},
		func(cfg *PostgresConfig) {
			if clock != nil {
				cfg.Clock = clock
			}
		},
	)
}

// WithPostgresPoolLimits bounds the connection pool size.
func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	})
}

// WithPostgresPoolDurations tunes pooled connection lifetimes and the health
// check interval.
func WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthCheckInterval = healthInterval
		}
	})
}

// WithPostgresAcquireTimeout bounds how long connection establishment may take.
func WithPostgresAcquireTimeout(timeout time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	})
}

// WithPostgresApplicationName sets the application_name reported to Postgres.
func WithPostgresApplicationName(name string) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.ApplicationName = trimmed
		}
	})
}
