package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain lets adapters map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the email was unknown, the account
	// inactive, or the password wrong. One sentinel, one mapped response,
	// prevents account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals a lockout window set after repeated failures.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited signals too many failed attempts inside the trailing window.
	ErrRateLimited = errors.New("rate limited")
	// ErrSessionExpired is returned once a session's absolute lifetime has elapsed.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid covers tokens that are malformed, revoked, or reference
	// no known session. Callers cannot distinguish which.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrAuthorizationDenied is returned when a valid session lacks the
	// capability it asked for.
	ErrAuthorizationDenied = errors.New("authorization denied")

	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)
