package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a security event. Kinds are stable strings because
// downstream consumers filter on them.
type EventKind string

const (
	EventLoginSuccess    EventKind = "LOGIN_SUCCESS"
	EventLoginFailure    EventKind = "LOGIN_FAILURE"
	EventRateLimited     EventKind = "RATE_LIMITED"
	EventAccountLocked   EventKind = "ACCOUNT_LOCKED"
	EventSessionIssued   EventKind = "SESSION_ISSUED"
	EventSessionExpired  EventKind = "SESSION_EXPIRED"
	EventSessionRevoked  EventKind = "SESSION_REVOKED"
	EventAuthzDenied     EventKind = "AUTHZ_DENIED"
	EventUserCreated     EventKind = "USER_CREATED"
	EventRoleChanged     EventKind = "ROLE_CHANGED"
	EventUserDeactivated EventKind = "USER_DEACTIVATED"
	EventPasswordChanged EventKind = "PASSWORD_CHANGED"
)

// SecurityEvent is one entry in the security ledger. UserID is nil when the
// event concerns an email that resolved to no account.
type SecurityEvent struct {
	ID        int64
	EventID   uuid.UUID
	Kind      EventKind
	UserID    *uuid.UUID
	Email     string
	Origin    string
	Detail    map[string]any
	CreatedAt time.Time
}
