package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// maxErrorBodyBytes truncates provider error bodies folded into error
// messages, per spec.md §7 ("bodies over 500 bytes are truncated").
const maxErrorBodyBytes = 500

// ProviderError is returned when a provider responds with a non-2xx status
// or an otherwise malformed body. Whether it is retried is decided by
// isRetriableError, not by this type itself.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// NewProviderError builds a ProviderError from an HTTP status and response
// body, truncating the body per spec.md §7.
func NewProviderError(provider string, statusCode int, body string) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Message: truncateErrorBody(body)}
}

func truncateErrorBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxErrorBodyBytes {
		return body
	}
	return body[:maxErrorBodyBytes] + "...(truncated)"
}

// AuthFailure indicates missing credentials, a failed refresh, or a 401
// observed after refresh. Never retried automatically.
type AuthFailure struct {
	Provider string
	Reason   string
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("%s: auth failure: %s", e.Provider, e.Reason)
}

// MissingCredentials is a specific AuthFailure raised when no credential
// file exists yet for a provider (spec.md §4.1).
func MissingCredentials(provider string) *AuthFailure {
	return &AuthFailure{Provider: provider, Reason: "no stored credentials"}
}

// DecodeError indicates the response body was not valid JSON or was missing
// required fields. Never retried — it's deterministic.
type DecodeError struct {
	Provider string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode error: %s", e.Provider, e.Reason)
}

// Cancelled indicates the caller dropped the outer context before the call
// completed.
type Cancelled struct {
	Provider string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("%s: cancelled", e.Provider)
}

// --- Error classification heuristics (spec.md §4.5, §7, §9) ---
//
// Provider error schemas diverge too widely to classify structurally in the
// general case, so classification is a centralized, text-based heuristic
// over the error's message, case-insensitive. Kept here so retry.go and
// tests share one table.

var statusCodePattern = regexp.MustCompile(`\b5\d\d\b`)

// isRateLimitError reports whether an error's text indicates a 429 / rate
// limit condition.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") || strings.Contains(msg, "rate")
}

// isRetriableError reports whether an error should trigger another attempt:
// rate limits, or text suggesting a transient transport/server condition.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if isRateLimitError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if statusCodePattern.MatchString(msg) {
		return true
	}

	for _, needle := range []string{"timeout", "overloaded", "connection", "temporarily", "internal", "unavailable"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
