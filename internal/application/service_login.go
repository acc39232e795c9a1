package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

// evaluateLoginPolicy runs the pre-credential decision for one email. The
// lockout check wins over the window check and applies regardless of the
// account's active flag. user is nil when the email resolves to no account;
// the failure window still applies then, keyed by the attempted email.
func (s *Service) evaluateLoginPolicy(ctx context.Context, email string, user *domain.User, now time.Time) error {
	if user != nil && user.LockedAt(now) {
		return domain.ErrAccountLocked
	}

	windowStart := now.Add(-s.cfg.RateLimitWindow)
	count, err := s.loginAttempts.CountRecentFailures(ctx, email, windowStart, now)
	if err != nil {
		return fmt.Errorf("count recent failures: %w", err)
	}
	if count >= s.cfg.FailedLoginThreshold {
		return domain.ErrRateLimited
	}
	return nil
}

// Login runs the credential decision table. Every branch leaves a durable
// attempt-ledger fact and a security event before its outcome is returned;
// unknown account, inactive account, and wrong password all collapse into the
// same generic denial.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return LoginResponse{}, err
	}

	now := s.nowFn()

	var user *domain.User
	found, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		user = &found
	case errors.Is(err, domain.ErrNotFound):
		user = nil
	default:
		return LoginResponse{}, fmt.Errorf("load user: %w", err)
	}

	// A limiter denial is terminal: counters stay untouched, but the denied
	// attempt itself is appended so sustained knocking keeps the window open.
	if policyErr := s.evaluateLoginPolicy(ctx, email, user, now); policyErr != nil {
		if !errors.Is(policyErr, domain.ErrAccountLocked) && !errors.Is(policyErr, domain.ErrRateLimited) {
			return LoginResponse{}, policyErr
		}

		reason := "RATE_LIMITED"
		kind := domain.EventRateLimited
		if errors.Is(policyErr, domain.ErrAccountLocked) {
			reason = "ACCOUNT_LOCKED"
			kind = domain.EventAccountLocked
		}
		var userID *uuid.UUID
		if user != nil {
			userID = &user.UserID
		}
		if err := s.recordAttempt(ctx, userID, email, req.Origin, false, reason, now); err != nil {
			return LoginResponse{}, err
		}
		if err := s.appendEvent(ctx, kind, userID, email, req.Origin, map[string]any{"reason": reason}); err != nil {
			return LoginResponse{}, err
		}
		slog.Default().WarnContext(ctx, "login denied by limiter",
			"service", "control-consumo-agua-auth",
			"module", "application",
			"layer", "application",
			"operation", "login",
			"outcome", "blocked",
			"email", email,
			"reason", reason,
		)
		return LoginResponse{}, policyErr
	}

	if user == nil {
		s.equalizePasswordCheck(req.Password)
		if err := s.recordAttempt(ctx, nil, email, req.Origin, false, "UNKNOWN_EMAIL", now); err != nil {
			return LoginResponse{}, err
		}
		if err := s.appendEvent(ctx, domain.EventLoginFailure, nil, email, req.Origin, map[string]any{"reason": "UNKNOWN_EMAIL"}); err != nil {
			return LoginResponse{}, err
		}
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.equalizePasswordCheck(req.Password)
		if err := s.recordAttempt(ctx, &user.UserID, email, req.Origin, false, "ACCOUNT_INACTIVE", now); err != nil {
			return LoginResponse{}, err
		}
		if err := s.appendEvent(ctx, domain.EventLoginFailure, &user.UserID, email, req.Origin, map[string]any{"reason": "ACCOUNT_INACTIVE"}); err != nil {
			return LoginResponse{}, err
		}
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	if compareErr := s.hasher.Compare(user.PasswordHash, req.Password); compareErr != nil {
		lockUntil := now.Add(s.cfg.LockoutDuration)
		updated, failErr := s.users.RecordLoginFailure(ctx, user.UserID, s.cfg.FailedLoginThreshold, lockUntil, now)
		if failErr != nil {
			return LoginResponse{}, fmt.Errorf("record login failure: %w", failErr)
		}
		if err := s.recordAttempt(ctx, &user.UserID, email, req.Origin, false, "INVALID_PASSWORD", now); err != nil {
			return LoginResponse{}, err
		}
		if err := s.appendEvent(ctx, domain.EventLoginFailure, &user.UserID, email, req.Origin, map[string]any{
			"reason":          "INVALID_PASSWORD",
			"failed_attempts": updated.FailedLoginAttempts,
		}); err != nil {
			return LoginResponse{}, err
		}

		if updated.LockedAt(now) {
			if err := s.appendEvent(ctx, domain.EventAccountLocked, &user.UserID, email, req.Origin, map[string]any{
				"locked_until":    updated.LockedUntil,
				"failed_attempts": updated.FailedLoginAttempts,
			}); err != nil {
				return LoginResponse{}, err
			}
			slog.Default().WarnContext(ctx, "account lockout triggered",
				"service", "control-consumo-agua-auth",
				"module", "application",
				"layer", "application",
				"operation", "login",
				"outcome", "blocked",
				"email", email,
				"locked_until", updated.LockedUntil,
			)
		}
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(ctx, user.UserID, now); err != nil {
		return LoginResponse{}, fmt.Errorf("record login success: %w", err)
	}

	session, err := s.sessions.Create(ctx, ports.SessionCreateParams{
		UserID:    user.UserID,
		Role:      user.Role,
		Origin:    req.Origin,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.SessionLifetime),
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("create session: %w", err)
	}

	if err := s.recordAttempt(ctx, &user.UserID, email, req.Origin, true, "", now); err != nil {
		return LoginResponse{}, err
	}
	if err := s.appendEvent(ctx, domain.EventLoginSuccess, &user.UserID, email, req.Origin, nil); err != nil {
		return LoginResponse{}, err
	}
	if err := s.appendEvent(ctx, domain.EventSessionIssued, &user.UserID, email, req.Origin, map[string]any{
		"session_id": session.SessionID,
		"expires_at": session.ExpiresAt,
	}); err != nil {
		return LoginResponse{}, err
	}

	token, err := s.tokenSigner.Sign(ports.AuthClaims{
		UserID:    user.UserID,
		Email:     user.Email,
		Role:      string(user.Role),
		SessionID: session.SessionID,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	slog.Default().InfoContext(ctx, "login succeeded",
		"service", "control-consumo-agua-auth",
		"module", "application",
		"layer", "application",
		"operation", "login",
		"outcome", "success",
		"user_id", user.UserID,
		"session_id", session.SessionID,
	)

	return LoginResponse{
		Token:                  token,
		SessionID:              session.SessionID,
		UserID:                 user.UserID,
		Email:                  user.Email,
		Name:                   user.Name,
		Role:                   string(user.Role),
		IssuedAt:               session.IssuedAt,
		ExpiresAt:              session.ExpiresAt,
		RevalidateAfterSeconds: int64(s.cfg.ClientRevalidateInterval.Seconds()),
	}, nil
}
