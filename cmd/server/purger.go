package main

import (
	"context"
	"log/slog"
	"time"
)

type accountPurger interface {
	PurgeUnconfirmedAccounts(ctx context.Context, olderThan time.Time) (int, error)
}

type purgeTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) purgeTicker

// runPurgeWorker periodically removes unconfirmed accounts older than age.
// It blocks until the context is cancelled.
func runPurgeWorker(ctx context.Context, logger *slog.Logger, store accountPurger, interval, age time.Duration) {
	runPurgeWorkerWithTicker(ctx, logger, store, interval, age, func(d time.Duration) purgeTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func runPurgeWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	store accountPurger,
	interval, age time.Duration,
	newTicker tickerFactory,
) {
	if store == nil || interval <= 0 || age <= 0 {
		<-ctx.Done()
		return
	}
	ticker := newTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			purged, err := store.PurgeUnconfirmedAccounts(ctx, time.Now().Add(-age))
			if err != nil {
				if logger != nil {
					logger.Error("failed to purge unconfirmed accounts", "error", err)
				}
				continue
			}
			if purged > 0 && logger != nil {
				logger.Info("purged unconfirmed accounts", "count", purged)
			}
		}
	}
}
