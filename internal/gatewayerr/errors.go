// Package gatewayerr defines the Antigravity gateway's error taxonomy.
//
// The Dispatcher classifies every failure it sees into one of a small set
// of kinds so that its retry/rotation policy can decide what to do next
// without re-deriving meaning from raw HTTP status codes every time.
package gatewayerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which bucket of the error taxonomy an error belongs to.
type Kind int

const (
	// KindGeneric covers 4xx/5xx responses not otherwise classified.
	KindGeneric Kind = iota
	// KindAuth signals that re-authentication is needed (OAuth userinfo
	// or token-exchange failure).
	KindAuth
	// KindInvalidCredentials signals that a refresh token was rejected
	// and the owning account should be marked invalid.
	KindInvalidCredentials
	// KindRateLimit signals an Upstream 429; the Ledger should be updated
	// and the Dispatcher should rotate accounts.
	KindRateLimit
	// KindQuotaExhausted signals every account is limited and the
	// minimum wait exceeds the Dispatcher's threshold. Terminal for this
	// (model, moment).
	KindQuotaExhausted
	// KindNoAccounts signals the pool is empty or every account invalid.
	KindNoAccounts
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth_error"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindRateLimit:
		return "rate_limit"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindNoAccounts:
		return "no_accounts"
	default:
		return "generic"
	}
}

// Error is the gateway's single error type, carrying an HTTP status code
// and a Kind alongside the usual message.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	// ResetMs, when set by a KindRateLimit error, is the parsed Upstream
	// cooldown in milliseconds (see ratelimit.ParseResetTime). Nil means
	// "use the default cooldown".
	ResetMs *int64
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: msg, cause: cause}
}

// NewAuthError builds a KindAuth error.
func NewAuthError(status int, msg string, cause error) *Error {
	return newErr(KindAuth, status, msg, cause)
}

// NewInvalidCredentialsError builds a KindInvalidCredentials error.
func NewInvalidCredentialsError(status int, msg string, cause error) *Error {
	return newErr(KindInvalidCredentials, status, msg, cause)
}

// NewRateLimitError builds a KindRateLimit error, optionally carrying the
// parsed Upstream reset time in milliseconds.
func NewRateLimitError(msg string, resetMs *int64) *Error {
	e := newErr(KindRateLimit, 429, msg, nil)
	e.ResetMs = resetMs
	return e
}

// NewQuotaExhaustedError builds a KindQuotaExhausted error.
func NewQuotaExhaustedError(msg string) *Error {
	return newErr(KindQuotaExhausted, 429, msg, nil)
}

// NewNoAccountsError builds a KindNoAccounts error.
func NewNoAccountsError(status int, msg string) *Error {
	return newErr(KindNoAccounts, status, msg, nil)
}

// NewGenericError builds a KindGeneric error.
func NewGenericError(status int, msg string, cause error) *Error {
	return newErr(KindGeneric, status, msg, cause)
}

// FromStatus classifies a raw HTTP status/body pair into the taxonomy.
// This is the preferred classification path: callers that still hold the
// response status code should use this rather than the substring-based
// fallback below.
func FromStatus(status int, body string) *Error {
	switch status {
	case 429:
		return NewRateLimitError(body, nil)
	case 401:
		return NewAuthError(status, body, nil)
	default:
		return NewGenericError(status, body, nil)
	}
}

// IsRateLimitText applies substring-based classification for an error
// whose HTTP status has already been lost (e.g. it surfaced through a
// generic transport error instead of a structured response). Prefer
// FromStatus / a *Error's Kind whenever the status code is still
// available; this is the Dispatcher's last-resort fallback for the rare
// leaf that doesn't wrap its error as a *Error.
func IsRateLimitText(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota_exhausted") ||
		strings.Contains(msg, "rate limit")
}

// IsAuthText applies the same substring fallback for authentication
// errors.
func IsAuthText(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "unauthenticated") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "invalid_grant")
}

// As is a small convenience wrapper around errors.As for *Error, so
// callers don't need to declare the target variable inline everywhere.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
