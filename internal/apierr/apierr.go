// Package apierr defines the error kinds shared by all API clients.
package apierr

import "errors"

// RateLimitError represents a transient rate-limit signal from any API:
// an HTTP 429/503, or a detected anti-bot challenge page.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// NewRateLimitError creates a new RateLimitError with the given message.
func NewRateLimitError(message string) *RateLimitError {
	return &RateLimitError{Message: message}
}

// IsRateLimit reports whether err is a RateLimitError (even when wrapped).
func IsRateLimit(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// QuotaError represents an exhausted daily quota on a credential. Unlike a
// rate limit it does not clear by waiting; the caller should rotate to the
// next credential before retrying.
type QuotaError struct {
	Message string
}

func (e *QuotaError) Error() string {
	return e.Message
}

// NewQuotaError creates a QuotaError with the given message.
func NewQuotaError(message string) *QuotaError {
	return &QuotaError{Message: message}
}

// IsQuota reports whether err is a QuotaError (even when wrapped).
func IsQuota(err error) bool {
	var qErr *QuotaError
	return errors.As(err, &qErr)
}

// Retryable reports whether err is worth retrying at all: rate limits and
// quota exhaustion are, anything else (parse errors, 404s) is not.
func Retryable(err error) bool {
	return IsRateLimit(err) || IsQuota(err)
}
