package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
)

type Config struct {
	FailedLoginThreshold       int
	RateLimitWindow            time.Duration
	LockoutDuration            time.Duration
	SessionLifetime            time.Duration
	ClientRevalidateInterval   time.Duration
	RevokeSessionsOnRoleChange bool
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Origin   string `json:"-"`
}

// LoginResponse is the session descriptor handed to the desktop client. The
// token carries the same expiry as the session row; there is no renewal.
type LoginResponse struct {
	Token                  string    `json:"token"`
	SessionID              uuid.UUID `json:"session_id"`
	UserID                 uuid.UUID `json:"user_id"`
	Email                  string    `json:"email"`
	Name                   string    `json:"name"`
	Role                   string    `json:"role"`
	IssuedAt               time.Time `json:"issued_at"`
	ExpiresAt              time.Time `json:"expires_at"`
	RevalidateAfterSeconds int64     `json:"revalidate_after_seconds"`
}

type SessionStatusResponse struct {
	Valid                  bool      `json:"valid"`
	SessionID              uuid.UUID `json:"session_id"`
	UserID                 uuid.UUID `json:"user_id"`
	Email                  string    `json:"email"`
	Role                   string    `json:"role"`
	IssuedAt               time.Time `json:"issued_at"`
	ExpiresAt              time.Time `json:"expires_at"`
	RevalidateAfterSeconds int64     `json:"revalidate_after_seconds"`
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type CreateUserResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type ChangeRoleRequest struct {
	Role string `json:"role"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type SessionItem struct {
	SessionID       uuid.UUID  `json:"session_id"`
	Origin          string     `json:"origin"`
	IssuedAt        time.Time  `json:"issued_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	IsCurrent       bool       `json:"is_current"`
}

type LoginHistoryQuery struct {
	Page         int
	Limit        int
	OnlyFailures bool
}

type LoginHistoryItem struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Origin    string    `json:"origin"`
}

type SecurityEventQuery struct {
	Kind   string
	UserID string
	Email  string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

type SecurityEventItem struct {
	EventID   uuid.UUID      `json:"event_id"`
	Kind      string         `json:"kind"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Origin    string         `json:"origin,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func toSessionItem(s domain.Session, currentSessionID uuid.UUID) SessionItem {
	return SessionItem{
		SessionID:       s.SessionID,
		Origin:          s.Origin,
		IssuedAt:        s.IssuedAt,
		ExpiresAt:       s.ExpiresAt,
		LastValidatedAt: s.LastValidatedAt,
		RevokedAt:       s.RevokedAt,
		IsCurrent:       s.SessionID == currentSessionID,
	}
}

func toSecurityEventItem(e domain.SecurityEvent) SecurityEventItem {
	return SecurityEventItem{
		EventID:   e.EventID,
		Kind:      string(e.Kind),
		UserID:    e.UserID,
		Email:     e.Email,
		Origin:    e.Origin,
		Detail:    e.Detail,
		CreatedAt: e.CreatedAt,
	}
}
