package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakePurger struct {
	calls chan time.Time
	err   error
}

func newFakePurger() *fakePurger {
	return &fakePurger{calls: make(chan time.Time, 1)}
}

func (f *fakePurger) PurgeUnconfirmedAccounts(_ context.Context, olderThan time.Time) (int, error) {
	select {
	case f.calls <- olderThan:
	default:
	}
	return 1, f.err
}

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		c:       make(chan time.Time, 1),
		stopped: make(chan struct{}),
	}
}

func (m *manualTicker) C() <-chan time.Time {
	return m.c
}

func (m *manualTicker) Stop() {
	select {
	case <-m.stopped:
		return
	default:
		close(m.stopped)
	}
}

func (m *manualTicker) Tick() {
	select {
	case m.c <- time.Now():
	default:
	}
}

func TestRunPurgeWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := newManualTicker()
	purger := newFakePurger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	done := make(chan struct{})
	go func() {
		defer close(done)
		runPurgeWorkerWithTicker(ctx, logger, purger, time.Minute, 24*time.Hour, func(time.Duration) purgeTicker {
			return ticker
		})
	}()

	ticker.Tick()
	select {
	case olderThan := <-purger.calls:
		age := time.Since(olderThan)
		if age < 23*time.Hour || age > 25*time.Hour {
			t.Fatalf("expected cutoff roughly 24h in the past, got %v", age)
		}
	case <-time.After(time.Second):
		t.Fatal("expected purge to be invoked")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected worker to exit after context cancellation")
	}

	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("expected ticker to stop after worker exit")
	}
}

func TestRunPurgeWorkerDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		runPurgeWorker(ctx, nil, newFakePurger(), 0, 24*time.Hour)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected disabled worker to block until cancellation")
	}
}
