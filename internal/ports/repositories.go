package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
)

// UserRepository defines persistence operations for credential records.
// Counter mutations are expressed as single repository calls so the adapter
// can serialize them with one atomic statement.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	// RecordLoginFailure increments the failed-attempt counter and, when the
	// post-increment value reaches threshold, sets the lockout expiry. The
	// whole mutation is one serialized update; the returned user reflects the
	// post-update row.
	RecordLoginFailure(ctx context.Context, userID uuid.UUID, threshold int, lockUntil time.Time, at time.Time) (domain.User, error)
	// RecordLoginSuccess resets the counter, clears any lockout, and stamps
	// the last successful login.
	RecordLoginSuccess(ctx context.Context, userID uuid.UUID, at time.Time) error
	UpdateRole(ctx context.Context, userID uuid.UUID, role domain.Role, updatedAt time.Time) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, updatedAt time.Time) error
	Deactivate(ctx context.Context, userID uuid.UUID, deactivatedAt time.Time) error
}

// SessionCreateParams captures the state snapshotted into a session record.
type SessionCreateParams struct {
	UserID    uuid.UUID
	Role      domain.Role
	Origin    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionRepository manages persistent session lifecycle. It is separate from
// token parsing so revocation and validation tracking remain source-of-truth
// driven.
type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Session, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Session, error)
	TouchValidated(ctx context.Context, sessionID uuid.UUID, validatedAt time.Time) error
	RevokeByID(ctx context.Context, sessionID uuid.UUID, revokedAt time.Time) error
	RevokeAllByUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) error
}

// LoginAttemptRepository stores attempt facts used by the rate limiter and
// the login-history endpoint. Rows are append-only.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt domain.LoginAttempt) error
	// CountRecentFailures counts failed attempts for the email with
	// attempted_at in [windowStart, now], both ends inclusive.
	CountRecentFailures(ctx context.Context, email string, windowStart, now time.Time) (int, error)
	ListByEmail(ctx context.Context, email string, limit, offset int, onlyFailures bool) ([]domain.LoginAttempt, error)
}

// SecurityEventFilter narrows audit listings.
type SecurityEventFilter struct {
	Kinds  []domain.EventKind
	UserID *uuid.UUID
	Email  string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// SecurityEventRecord is the durable ledger row including publish-retry
// metadata. The ledger doubles as the transactional outbox for the audit
// pipeline.
type SecurityEventRecord struct {
	ID             int64
	EventID        uuid.UUID
	Kind           domain.EventKind
	UserID         *uuid.UUID
	Email          string
	Origin         string
	Detail         []byte
	CreatedAt      time.Time
	RetryCount     int
	LastError      *string
	LastErrorAt    *time.Time
	PublishedAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// SecurityEventRepository owns the security ledger and its publish workflow.
// Append durability is what the login/authorization paths rely on; the claim
// and mark methods drive the outbox worker.
type SecurityEventRepository interface {
	Append(ctx context.Context, event domain.SecurityEvent) error
	List(ctx context.Context, filter SecurityEventFilter) ([]domain.SecurityEvent, error)
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]SecurityEventRecord, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
