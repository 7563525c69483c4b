// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is the cadence of the background expiry sweep.
const DefaultSweepInterval = time.Minute

// Sweeper periodically removes expired session entries. It runs on its own
// goroutine, independent of request handling, and never blocks the request
// path beyond the store's own per-operation lock.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	onSwept  func(int)
	cancel   context.CancelFunc
	done     chan struct{}
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(sw *Sweeper) {
		if d > 0 {
			sw.interval = d
		}
	}
}

// WithSweptCallback registers a callback invoked with the count of removed
// entries after each sweep. Used to feed the swept-sessions metric.
func WithSweptCallback(fn func(int)) SweeperOption {
	return func(sw *Sweeper) {
		sw.onSwept = fn
	}
}

// NewSweeper creates a Sweeper for the given store.
func NewSweeper(store Store, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	sw := &Sweeper{
		store:    store,
		interval: DefaultSweepInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Start launches the sweep loop. It returns immediately; the loop stops
// when Stop is called or the parent context is canceled.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)
	sw.done = make(chan struct{})

	go func() {
		defer close(sw.done)
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed := sw.store.Sweep(now)
				if sw.onSwept != nil {
					sw.onSwept(removed)
				}
				if removed > 0 {
					sw.logger.Debug("swept expired sessions", "removed", removed)
				}
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
}
