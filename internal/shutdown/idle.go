// Package shutdown stops an idle API server so it can scale to zero.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// IdleMonitor closes Done once no request has been in flight for Timeout.
// Requests whose path starts with one of ExemptPrefixes (health probes)
// do not count as activity.
type IdleMonitor struct {
	timeout  time.Duration
	exempt   []string
	logger   *slog.Logger
	now      func() time.Time
	inFlight atomic.Int64

	mu       sync.Mutex
	lastSeen time.Time

	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// IdleConfig configures an IdleMonitor. A zero Timeout disables it.
type IdleConfig struct {
	Timeout        time.Duration
	ExemptPrefixes []string
	Logger         *slog.Logger
}

func NewIdleMonitor(cfg IdleConfig) *IdleMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &IdleMonitor{
		timeout: cfg.Timeout,
		exempt:  cfg.ExemptPrefixes,
		logger:  logger,
		now:     time.Now,
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	m.lastSeen = m.now()
	return m
}

// Enabled reports whether the monitor will ever fire.
func (m *IdleMonitor) Enabled() bool {
	return m.timeout > 0
}

// Done is closed when the idle timeout elapses. It never closes for a
// disabled monitor.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Start launches the polling loop.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		return
	}
	m.logger.Info("idle shutdown enabled", "timeout", m.timeout, "exempt", m.exempt)
	go m.loop(pollInterval(m.timeout))
}

// Stop ends the polling loop without closing Done.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Middleware counts in-flight requests.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.isExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.touch(1)
		defer m.touch(-1)
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) isExempt(path string) bool {
	for _, p := range m.exempt {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch(delta int64) {
	m.inFlight.Add(delta)
	m.mu.Lock()
	m.lastSeen = m.now()
	m.mu.Unlock()
}

// idleFor returns how long the server has been idle, or zero while a
// request is in flight.
func (m *IdleMonitor) idleFor() time.Duration {
	if m.inFlight.Load() > 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastSeen)
}

func (m *IdleMonitor) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if m.check() {
				return
			}
		}
	}
}

// check closes Done and returns true once the timeout has elapsed.
func (m *IdleMonitor) check() bool {
	idle := m.idleFor()
	if idle < m.timeout {
		m.logger.Debug("idle check", "idle", idle, "in_flight", m.inFlight.Load())
		return false
	}
	m.logger.Info("idle timeout reached, shutting down", "idle", idle, "timeout", m.timeout)
	close(m.done)
	return true
}

// pollInterval checks six times per timeout, clamped to [1s, 30s].
func pollInterval(timeout time.Duration) time.Duration {
	interval := timeout / 6
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	return interval
}
