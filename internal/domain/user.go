package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical credential record for the water-consumption platform.
// Lockout state lives on the row itself so the login decision table reads a
// single source of truth.
type User struct {
	UserID              uuid.UUID
	Email               string
	PasswordHash        string
	Name                string
	Role                Role
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockedAt reports whether the account is locked at the given instant.
// A lockout is active only while LockedUntil is strictly in the future.
func (u User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Session models an issued login session. The role is snapshotted at issuance
// so authorization decisions do not depend on later role edits.
type Session struct {
	SessionID       uuid.UUID
	UserID          uuid.UUID
	Role            Role
	Origin          string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	LastValidatedAt *time.Time
	RevokedAt       *time.Time
}

// ExpiredAt reports whether the session's absolute lifetime has elapsed.
// The boundary instant itself counts as expired.
func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginAttempt is an append-only fact about one authentication attempt.
// The email is recorded verbatim even when no such user exists, which is what
// lets the failure window survive probing of unknown accounts.
type LoginAttempt struct {
	ID          int64
	UserID      *uuid.UUID
	Email       string
	Origin      string
	AttemptedAt time.Time
	Success     bool
	Reason      string
}
