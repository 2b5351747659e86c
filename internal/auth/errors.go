// Package auth implements the administrator authentication and authorization core:
// credential and second-factor verification, brute-force lockout, opaque session
// tokens with absolute and idle expiry, and resource/action permission checks.
//
// Every failure is reported as an *Error carrying a Kind. Handlers map the Kind to a
// transport status with HTTPStatus; messages are chosen so that a missing account and a
// wrong password are indistinguishable to the caller.
package auth

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Kind classifies an authentication or authorization failure.
type Kind string

const (
	KindInvalidCredentials     Kind = "invalid_credentials"
	KindAccountLocked          Kind = "account_locked"
	KindAccountInactive        Kind = "account_inactive"
	KindTOTPRequired           Kind = "totp_required"
	KindTOTPInvalid            Kind = "totp_invalid"
	KindSessionMissing         Kind = "session_missing"
	KindSessionInvalid         Kind = "session_invalid"
	KindSessionExpired         Kind = "session_expired"
	KindSessionInactiveTimeout Kind = "session_inactive_timeout"
	KindPermissionDenied       Kind = "permission_denied"
	KindInternal               Kind = "internal_error"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgAccountInactive    = "Account is disabled"
	msgTOTPRequired       = "Two-factor authentication code required"
	msgTOTPInvalid        = "Invalid two-factor authentication code"
	msgSessionRequired    = "Session token required"
	msgInvalidSession     = "Invalid or expired session"
	msgPermissionDenied   = "Insufficient permissions"
	msgInternal           = "Internal server error"
)

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind    Kind
	Message string // safe to show to the caller
	// RetryAfter is set for KindAccountLocked.
	RetryAfter time.Duration
	Err        error // underlying cause, never shown to the caller
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrSessionExpired)
// works for errors built on the fly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidCredentials     = &Error{Kind: KindInvalidCredentials, Message: msgInvalidCredentials}
	ErrAccountLocked          = &Error{Kind: KindAccountLocked, Message: "Account is locked"}
	ErrAccountInactive        = &Error{Kind: KindAccountInactive, Message: msgAccountInactive}
	ErrTOTPRequired           = &Error{Kind: KindTOTPRequired, Message: msgTOTPRequired}
	ErrTOTPInvalid            = &Error{Kind: KindTOTPInvalid, Message: msgTOTPInvalid}
	ErrSessionMissing         = &Error{Kind: KindSessionMissing, Message: msgSessionRequired}
	ErrSessionInvalid         = &Error{Kind: KindSessionInvalid, Message: msgInvalidSession}
	ErrSessionExpired         = &Error{Kind: KindSessionExpired, Message: msgInvalidSession}
	ErrSessionInactiveTimeout = &Error{Kind: KindSessionInactiveTimeout, Message: msgInvalidSession}
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied, Message: msgPermissionDenied}
	ErrInternal               = &Error{Kind: KindInternal, Message: msgInternal}
)

// lockedError builds an AccountLocked error whose message names the remaining wait in
// whole minutes, rounded up.
func lockedError(remaining time.Duration) *Error {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return &Error{
		Kind:       KindAccountLocked,
		Message:    fmt.Sprintf("Account is locked. Try again in %d %s.", minutes, unit),
		RetryAfter: remaining,
	}
}

// internalError wraps a store or infrastructure failure.
func internalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msgInternal, Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the Kind of err, or KindInternal for errors from outside this package.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// PublicMessage returns the caller-safe message for err.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return msgInternal
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidCredentials, KindTOTPRequired, KindTOTPInvalid,
		KindSessionMissing, KindSessionInvalid, KindSessionExpired, KindSessionInactiveTimeout:
		return http.StatusUnauthorized
	case KindAccountLocked:
		return http.StatusLocked
	case KindAccountInactive, KindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// SessionHTTPStatus maps a session verification failure to a response status. Any
// rejection of the presented session, including a disabled or locked owner, is
// unauthorized; only infrastructure failures are not.
func SessionHTTPStatus(err error) int {
	if KindOf(err) == KindInternal {
		return http.StatusInternalServerError
	}
	return http.StatusUnauthorized
}

// IsSessionError reports whether err means the presented session cannot be used.
func IsSessionError(err error) bool {
	switch KindOf(err) {
	case KindSessionMissing, KindSessionInvalid, KindSessionExpired, KindSessionInactiveTimeout:
		return true
	}
	return false
}
