package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

// ValidateToken verifies token integrity and current session validity. The
// session row is re-checked on every call so revocation and the absolute
// lifetime hold even for tokens that still parse.
func (s *Service) ValidateToken(ctx context.Context, token string) (ports.AuthClaims, error) {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			// Expiry noticed during routine validation is not critical;
			// best-effort so a ledger outage cannot block the denial.
			_ = s.appendEvent(ctx, domain.EventSessionExpired, nil, "", "", map[string]any{"source": "token"})
			return ports.AuthClaims{}, domain.ErrSessionExpired
		}
		return ports.AuthClaims{}, domain.ErrSessionInvalid
	}

	if revoked, _ := s.revocations.IsRevoked(ctx, claims.SessionID); revoked {
		return ports.AuthClaims{}, domain.ErrSessionInvalid
	}
	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrSessionInvalid
	}
	if session.UserID != claims.UserID {
		return ports.AuthClaims{}, domain.ErrSessionInvalid
	}
	if session.RevokedAt != nil {
		return ports.AuthClaims{}, domain.ErrSessionInvalid
	}

	now := s.nowFn()
	if session.ExpiredAt(now) {
		_ = s.appendEvent(ctx, domain.EventSessionExpired, &session.UserID, claims.Email, "", map[string]any{
			"session_id": session.SessionID,
			"issued_at":  session.IssuedAt,
		})
		return ports.AuthClaims{}, domain.ErrSessionExpired
	}

	_ = s.sessions.TouchValidated(ctx, session.SessionID, now)
	return claims, nil
}

// SessionStatus is the polling endpoint behind the client's periodic
// re-validation. It never extends the session.
func (s *Service) SessionStatus(ctx context.Context, token string) (SessionStatusResponse, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return SessionStatusResponse{}, err
	}
	return s.SessionStatusFromClaims(claims), nil
}

// SessionStatusFromClaims builds the status payload for claims that the
// caller has already validated this request.
func (s *Service) SessionStatusFromClaims(claims ports.AuthClaims) SessionStatusResponse {
	return SessionStatusResponse{
		Valid:                  true,
		SessionID:              claims.SessionID,
		UserID:                 claims.UserID,
		Email:                  claims.Email,
		Role:                   claims.Role,
		IssuedAt:               claims.IssuedAt,
		ExpiresAt:              claims.ExpiresAt,
		RevalidateAfterSeconds: int64(s.cfg.ClientRevalidateInterval.Seconds()),
	}
}

// LogoutCurrentSession revokes the caller's session and records how long it
// lived. Revoking an already-dead session reports invalid rather than
// succeeding silently.
func (s *Service) LogoutCurrentSession(ctx context.Context, token string) error {
	claims, err := s.tokenSigner.ParseAndValidate(token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			return domain.ErrSessionExpired
		}
		return domain.ErrSessionInvalid
	}
	return s.revokeSession(ctx, claims, claims.SessionID)
}

// RevokeSessionByID revokes one session owned by the caller. Sessions of
// other users read as not found so session identifiers cannot be probed.
func (s *Service) RevokeSessionByID(ctx context.Context, token string, sessionID uuid.UUID) error {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	return s.revokeSession(ctx, claims, sessionID)
}

func (s *Service) revokeSession(ctx context.Context, claims ports.AuthClaims, sessionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load session: %w", err)
	}
	if session.UserID != claims.UserID {
		return domain.ErrNotFound
	}
	if session.RevokedAt != nil {
		return domain.ErrSessionInvalid
	}

	now := s.nowFn()
	if err := s.sessions.RevokeByID(ctx, sessionID, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.markSessionsRevoked(ctx, []domain.Session{session})

	return s.appendEvent(ctx, domain.EventSessionRevoked, &session.UserID, claims.Email, session.Origin, map[string]any{
		"session_id":       session.SessionID,
		"duration_seconds": int64(now.Sub(session.IssuedAt).Seconds()),
	})
}

// ListSessions returns current and historical sessions for the caller.
func (s *Service) ListSessions(ctx context.Context, token string) ([]SessionItem, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByUser(ctx, claims.UserID, 100, 0)
	if err != nil {
		return nil, err
	}

	result := make([]SessionItem, 0, len(sessions))
	for _, it := range sessions {
		result = append(result, toSessionItem(it, claims.SessionID))
	}
	return result, nil
}

// ListLoginHistory returns the caller's own attempt-ledger entries, newest
// first, with pagination and an optional failures-only filter.
func (s *Service) ListLoginHistory(ctx context.Context, token string, q LoginHistoryQuery) ([]LoginHistoryItem, error) {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	attempts, err := s.loginAttempts.ListByEmail(ctx, claims.Email, q.Limit, offset, q.OnlyFailures)
	if err != nil {
		return nil, err
	}

	result := make([]LoginHistoryItem, 0, len(attempts))
	for _, attempt := range attempts {
		result = append(result, LoginHistoryItem{
			ID:        attempt.ID,
			Timestamp: attempt.AttemptedAt,
			Success:   attempt.Success,
			Reason:    attempt.Reason,
			Origin:    attempt.Origin,
		})
	}
	return result, nil
}
