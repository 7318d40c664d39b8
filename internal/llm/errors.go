package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error categories.
const (
	CategoryRateLimit      = "rate_limit"
	CategoryQuotaExceeded  = "quota_exceeded"
	CategoryAuth           = "auth"
	CategoryInvalidRequest = "invalid_request"
	CategoryProviderError  = "provider_error"
	CategoryNetwork        = "network"
	CategoryUnknown        = "unknown"
)

// StatusError is a non-2xx response from an HTTP model API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Error is a classified model error with a message safe to show users.
type Error struct {
	// Original error from the provider
	Err error

	// HTTP status code, when known
	StatusCode int

	Provider string
	Model    string

	// UserMessage is safe to display; Err carries the raw detail.
	UserMessage string

	Category string

	// Retryable is false for errors that cannot succeed on a retry with the
	// same credentials (bad key, bad request).
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
	}
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return "unknown LLM error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// quotaPatterns mark a quota or rate-limit failure in an error message.
var quotaPatterns = []string{
	"429",
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"resourceexhausted",
	"rate limit",
	"rate_limit",
	"too many requests",
}

// IsQuotaError is the single place that decides whether a model failure is
// quota-type: rate limited (429, gRPC ResourceExhausted) or out of credit
// (402). It checks codes first and falls back to message patterns, since
// not every provider error carries a code.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var le *Error
	if errors.As(err, &le) && le.Category != "" {
		return isQuotaCategory(le.Category)
	}
	if isResourceExhausted(err) {
		return true
	}
	switch statusCodeOf(err) {
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return true
	}
	return matchesQuota(strings.ToLower(err.Error()))
}

func isQuotaCategory(category string) bool {
	return category == CategoryRateLimit || category == CategoryQuotaExceeded
}

// isResourceExhausted reports a gRPC ResourceExhausted status anywhere in
// the chain. The Gemini SDK surfaces quota errors this way.
func isResourceExhausted(err error) bool {
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}
	return false
}

func matchesQuota(msg string) bool {
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// statusCodeOf digs an HTTP status out of known error types.
func statusCodeOf(err error) int {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Classify wraps err in an *Error. Returns nil for nil. An err that is
// already an *Error is returned unchanged.
func Classify(err error, provider, model string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	le := &Error{
		Err:        err,
		StatusCode: statusCodeOf(err),
		Provider:   provider,
		Model:      model,
	}
	msg := strings.ToLower(err.Error())

	switch {
	case le.StatusCode == http.StatusTooManyRequests || isResourceExhausted(err):
		le.Category = CategoryRateLimit
		le.UserMessage = "Rate limit or quota exceeded. Please wait before retrying."
		le.Retryable = true

	case le.StatusCode == http.StatusPaymentRequired:
		le.Category = CategoryQuotaExceeded
		le.UserMessage = "Quota exceeded. Please check your API key's credit or billing status."

	case le.StatusCode == http.StatusUnauthorized || le.StatusCode == http.StatusForbidden:
		le.Category = CategoryAuth
		le.UserMessage = "Invalid API key. Please check your LLM configuration."

	case le.StatusCode == http.StatusBadRequest:
		if matchesQuota(msg) {
			le.Category = CategoryRateLimit
			le.UserMessage = "Rate limit or quota exceeded. Please wait before retrying."
			le.Retryable = true
		} else if strings.Contains(msg, "api key not valid") || strings.Contains(msg, "api_key_invalid") {
			le.Category = CategoryAuth
			le.UserMessage = "Invalid API key. Please check your LLM configuration."
		} else {
			le.Category = CategoryInvalidRequest
			le.UserMessage = "The model rejected the request."
		}

	case le.StatusCode >= 500:
		le.Category = CategoryProviderError
		le.UserMessage = "The LLM provider is experiencing issues. Please try again."
		le.Retryable = true

	case matchesQuota(msg):
		le.Category = CategoryRateLimit
		le.UserMessage = "Rate limit or quota exceeded. Please wait before retrying."
		le.Retryable = true

	case isNetworkError(err):
		le.Category = CategoryNetwork
		le.UserMessage = "Could not reach the LLM provider."
		le.Retryable = true

	default:
		le.Category = CategoryUnknown
		le.UserMessage = "The LLM call failed."
		le.Retryable = true
	}

	return le
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
