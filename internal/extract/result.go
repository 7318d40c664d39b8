// Package extract runs an extraction instruction over chunks of page text:
// one chunk at a time through cache, rate limiter, retry controller and model.
package extract

import "time"

// Kind tags an extraction Result.
type Kind int

const (
	// KindSuccess carries extracted text.
	KindSuccess Kind = iota
	// KindEmpty means the model found nothing relevant. Not a failure.
	KindEmpty
	// KindQuotaExhausted means retries ran out on quota errors.
	KindQuotaExhausted
	// KindTransientFailure means retries ran out on other errors.
	KindTransientFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindTransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one chunk.
type Result struct {
	Kind Kind
	// Text is set for KindSuccess.
	Text string
	// Err is set for failure kinds.
	Err error

	FromCache bool
	Attempts  int
	Duration  time.Duration
}

// Success returns a KindSuccess result.
func Success(text string) Result { return Result{Kind: KindSuccess, Text: text} }

// Empty returns a KindEmpty result.
func Empty() Result { return Result{Kind: KindEmpty} }

// QuotaExhausted returns a KindQuotaExhausted result.
func QuotaExhausted(err error) Result { return Result{Kind: KindQuotaExhausted, Err: err} }

// TransientFailure returns a KindTransientFailure result.
func TransientFailure(err error) Result { return Result{Kind: KindTransientFailure, Err: err} }

// Failed reports whether the result is a failure kind.
func (r Result) Failed() bool {
	return r.Kind == KindQuotaExhausted || r.Kind == KindTransientFailure
}

// Detail is a human-readable failure description, empty for non-failures.
func (r Result) Detail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
