// Package ratelimit provides a fixed-delay gate for outbound LLM calls.
//
// The provider enforces a requests-per-minute ceiling per API key. A fixed
// minimum gap between calls keeps callers under it without tracking a window.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jmylchreest/sitesift/internal/clock"
)

// DefaultDelay is the minimum gap between calls when none is configured.
const DefaultDelay = 4 * time.Second

// Limiter grants turns at least delay apart. The first turn is granted
// immediately. It is safe for concurrent use: callers reserve consecutive
// slots under the lock and sleep outside it.
type Limiter struct {
	delay time.Duration
	clock clock.Clock

	mu   sync.Mutex
	last time.Time
}

// New returns a Limiter with the given delay. A nil clock uses the wall clock.
func New(delay time.Duration, clk clock.Clock) *Limiter {
	if delay < 0 {
		delay = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Limiter{delay: delay, clock: clk}
}

// Delay returns the configured gap.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Wait blocks until the caller's turn. It returns ctx.Err() if the context
// ends first; the reserved slot is not released in that case.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.clock.Now()
	slot := now
	if !l.last.IsZero() {
		if next := l.last.Add(l.delay); next.After(now) {
			slot = next
		}
	}
	l.last = slot
	l.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		return l.clock.Sleep(ctx, wait)
	}
	return ctx.Err()
}
