package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
)

// normalizeEmail canonicalizes and validates email format before persistence
// and comparison. Lookups and the failure window are keyed by this form.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// appendEvent persists one ledger entry. Callers on security-critical paths
// propagate the error so the triggering operation cannot return before the
// entry is durable.
func (s *Service) appendEvent(ctx context.Context, kind domain.EventKind, userID *uuid.UUID, email, origin string, detail map[string]any) error {
	if err := s.securityEvents.Append(ctx, domain.SecurityEvent{
		EventID:   uuid.New(),
		Kind:      kind,
		UserID:    userID,
		Email:     email,
		Origin:    origin,
		Detail:    detail,
		CreatedAt: s.nowFn(),
	}); err != nil {
		slog.Default().ErrorContext(ctx, "failed to append security event",
			"service", "control-consumo-agua-auth",
			"module", "application",
			"layer", "application",
			"operation", "append_security_event",
			"outcome", "failure",
			"kind", string(kind),
			"error", err,
		)
		return fmt.Errorf("append security event: %w", err)
	}
	return nil
}

// recordAttempt persists one attempt-ledger fact. Failure to persist is
// propagated: the login decision table requires the fact to be durable before
// the outcome is returned.
func (s *Service) recordAttempt(ctx context.Context, userID *uuid.UUID, email, origin string, success bool, reason string, at time.Time) error {
	if err := s.loginAttempts.Insert(ctx, domain.LoginAttempt{
		UserID:      userID,
		Email:       email,
		Origin:      origin,
		AttemptedAt: at,
		Success:     success,
		Reason:      reason,
	}); err != nil {
		slog.Default().ErrorContext(ctx, "failed to persist login attempt",
			"service", "control-consumo-agua-auth",
			"module", "application",
			"layer", "application",
			"operation", "record_login_attempt",
			"outcome", "failure",
			"reason", reason,
			"error", err,
		)
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// equalizePasswordCheck burns one hash comparison against a fixed sentinel so
// unknown-account and wrong-password paths cost the same. The sentinel is
// hashed lazily with the configured hasher to match its cost parameters.
func (s *Service) equalizePasswordCheck(password string) {
	s.sentinelOnce.Do(func() {
		hash, err := s.hasher.Hash("M9v!equalizer-7Qz#sentinel")
		if err == nil {
			s.sentinelHash = hash
		}
	})
	if s.sentinelHash != "" {
		_ = s.hasher.Compare(s.sentinelHash, password)
	}
}

// markSessionsRevoked writes revocation markers for every given session.
// The session rows are the source of truth; markers are an accelerator, so
// marker errors are logged and not propagated.
func (s *Service) markSessionsRevoked(ctx context.Context, sessions []domain.Session) {
	for _, session := range sessions {
		if err := s.revocations.MarkRevoked(ctx, session.SessionID, session.ExpiresAt); err != nil {
			slog.Default().WarnContext(ctx, "failed to mark session revoked in cache",
				"service", "control-consumo-agua-auth",
				"module", "application",
				"layer", "application",
				"operation", "mark_session_revoked",
				"outcome", "warning",
				"session_id", session.SessionID,
				"error", err,
			)
		}
	}
}
