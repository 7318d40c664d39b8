// Package retry drives a single extraction call through quota and transient
// backoff until it succeeds or the attempt budget runs out.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/sitesift/internal/clock"
)

// Backoff defaults.
const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultQuotaBase is the first quota backoff; it doubles per retry.
	DefaultQuotaBase = 60 * time.Second

	// DefaultQuotaCap bounds a single quota backoff.
	DefaultQuotaCap = 300 * time.Second

	// DefaultTransientDelay is the fixed wait after a non-quota failure.
	DefaultTransientDelay = 5 * time.Second
)

// State is a step in the retry state machine.
type State int

const (
	Attempting State = iota
	Success
	QuotaBackoff
	TransientBackoff
	GivenUp
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Success:
		return "success"
	case QuotaBackoff:
		return "quota_backoff"
	case TransientBackoff:
		return "transient_backoff"
	case GivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// Policy bounds retries and sets backoff durations.
type Policy struct {
	MaxRetries     int
	QuotaBase      time.Duration
	QuotaCap       time.Duration
	TransientDelay time.Duration
}

// DefaultPolicy returns 3 retries with 60s/120s/240s quota backoff and 5s
// transient backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     DefaultMaxRetries,
		QuotaBase:      DefaultQuotaBase,
		QuotaCap:       DefaultQuotaCap,
		TransientDelay: DefaultTransientDelay,
	}
}

// QuotaWait returns min(QuotaBase * 2^attempt, QuotaCap), attempt being the
// 0-indexed retry number.
func (p Policy) QuotaWait(attempt int) time.Duration {
	wait := p.QuotaBase
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= p.QuotaCap {
			return p.QuotaCap
		}
	}
	if wait > p.QuotaCap {
		return p.QuotaCap
	}
	return wait
}

// Classifier reports whether err is a quota/rate-limit failure.
type Classifier func(err error) bool

// Outcome is the terminal result of Do.
type Outcome struct {
	Value string
	// State is Success or GivenUp.
	State State
	// Quota is set when the final failure was quota-type.
	Quota bool
	// Err is the last error seen when State is GivenUp.
	Err      error
	Attempts int
}

// Controller runs attempts under a Policy.
type Controller struct {
	policy  Policy
	isQuota Classifier
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a Controller. A nil clock uses the wall clock.
func New(policy Policy, isQuota Classifier, clk clock.Clock, logger *slog.Logger) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if isQuota == nil {
		isQuota = func(error) bool { return false }
	}
	return &Controller{
		policy:  policy,
		isQuota: isQuota,
		clock:   clk,
		logger:  logger.With("component", "retry"),
	}
}

// Do calls fn until it succeeds or the retry budget is spent. It never
// returns an error; failures are reported through the Outcome.
func (c *Controller) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) Outcome {
	var lastErr error
	quota := false

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.giveUp(err, quota, attempt)
		}

		value, err := fn(ctx)
		if err == nil {
			return Outcome{Value: value, State: Success, Attempts: attempt + 1}
		}
		if ctx.Err() != nil {
			return c.giveUp(err, false, attempt+1)
		}
		lastErr = err
		quota = c.isQuota(err)

		if attempt == c.policy.MaxRetries {
			break
		}

		next, wait := TransientBackoff, c.policy.TransientDelay
		if quota {
			next, wait = QuotaBackoff, c.policy.QuotaWait(attempt)
		}
		c.logger.Warn("extraction attempt failed",
			"attempt", attempt+1,
			"max_attempts", c.policy.MaxRetries+1,
			"state", next.String(),
			"wait", wait,
			"error", err,
		)

		if err := c.clock.Sleep(ctx, wait); err != nil {
			return c.giveUp(err, false, attempt+1)
		}
	}

	return c.giveUp(lastErr, quota, c.policy.MaxRetries+1)
}

func (c *Controller) giveUp(err error, quota bool, attempts int) Outcome {
	c.logger.Error("giving up on extraction",
		"attempts", attempts,
		"quota", quota,
		"error", err,
	)
	return Outcome{State: GivenUp, Quota: quota, Err: err, Attempts: attempts}
}
