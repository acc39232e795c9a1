package postgres

import (
	"time"

	"github.com/google/uuid"
)

type userModel struct {
	UserID              uuid.UUID  `gorm:"column:user_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email               string     `gorm:"column:email"`
	PasswordHash        string     `gorm:"column:password_hash"`
	Name                string     `gorm:"column:name"`
	Role                string     `gorm:"column:role"`
	IsActive            bool       `gorm:"column:is_active"`
	FailedLoginAttempts int        `gorm:"column:failed_login_attempts"`
	LockedUntil         *time.Time `gorm:"column:locked_until"`
	LastLoginAt         *time.Time `gorm:"column:last_login_at"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type sessionModel struct {
	SessionID       uuid.UUID  `gorm:"column:session_id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID  `gorm:"column:user_id"`
	Role            string     `gorm:"column:role"`
	Origin          *string    `gorm:"column:origin"`
	IssuedAt        time.Time  `gorm:"column:issued_at"`
	ExpiresAt       time.Time  `gorm:"column:expires_at"`
	LastValidatedAt *time.Time `gorm:"column:last_validated_at"`
	RevokedAt       *time.Time `gorm:"column:revoked_at"`
}

func (sessionModel) TableName() string { return "sessions" }

type loginAttemptModel struct {
	ID          int64      `gorm:"column:id;primaryKey"`
	UserID      *uuid.UUID `gorm:"column:user_id"`
	Email       string     `gorm:"column:email"`
	Origin      *string    `gorm:"column:origin"`
	AttemptedAt time.Time  `gorm:"column:attempted_at"`
	Success     bool       `gorm:"column:success"`
	Reason      *string    `gorm:"column:reason"`
}

func (loginAttemptModel) TableName() string { return "login_attempts" }

type securityEventModel struct {
	ID             int64      `gorm:"column:id;primaryKey"`
	EventID        uuid.UUID  `gorm:"column:event_id;type:uuid"`
	Kind           string     `gorm:"column:kind"`
	UserID         *uuid.UUID `gorm:"column:user_id"`
	Email          *string    `gorm:"column:email"`
	Origin         *string    `gorm:"column:origin"`
	Detail         *string    `gorm:"column:detail;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (securityEventModel) TableName() string { return "security_events" }
