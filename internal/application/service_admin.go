package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

// CreateUser provisions an account. There is no self-registration in this
// platform; every account is created by a holder of manage-users.
func (s *Service) CreateUser(ctx context.Context, token string, req CreateUserRequest) (CreateUserResponse, error) {
	actor, err := s.Authorize(ctx, token, domain.CapabilityManageUsers)
	if err != nil {
		return CreateUserResponse{}, err
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return CreateUserResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return CreateUserResponse{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	role, err := domain.ParseRole(strings.TrimSpace(req.Role))
	if err != nil {
		return CreateUserResponse{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return CreateUserResponse{}, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return CreateUserResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	user, err := s.users.Create(ctx, domain.User{
		UserID:       uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return CreateUserResponse{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
		return CreateUserResponse{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.appendEvent(ctx, domain.EventUserCreated, &user.UserID, user.Email, "", map[string]any{
		"role":          string(user.Role),
		"actor_user_id": actor.UserID,
	}); err != nil {
		return CreateUserResponse{}, err
	}

	return CreateUserResponse{
		UserID:    user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}, nil
}

// ChangeUserRole reassigns a user's tier. Sessions issued before the change
// keep their snapshotted role unless revocation-on-role-change is configured,
// in which case the user is forced to log in again.
func (s *Service) ChangeUserRole(ctx context.Context, token string, userID uuid.UUID, req ChangeRoleRequest) error {
	actor, err := s.Authorize(ctx, token, domain.CapabilityManageUsers)
	if err != nil {
		return err
	}

	role, err := domain.ParseRole(strings.TrimSpace(req.Role))
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role == role {
		return nil
	}

	now := s.nowFn()
	if err := s.users.UpdateRole(ctx, userID, role, now); err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	if s.cfg.RevokeSessionsOnRoleChange {
		if err := s.revokeAllSessions(ctx, userID, now); err != nil {
			return err
		}
	}

	return s.appendEvent(ctx, domain.EventRoleChanged, &userID, user.Email, "", map[string]any{
		"old_role":      string(user.Role),
		"new_role":      string(role),
		"actor_user_id": actor.UserID,
	})
}

// DeactivateUser retires an account. The record is kept for audit; only the
// active flag flips. Outstanding sessions are revoked so the account stops
// working immediately rather than at next login.
func (s *Service) DeactivateUser(ctx context.Context, token string, userID uuid.UUID) error {
	actor, err := s.Authorize(ctx, token, domain.CapabilityManageUsers)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	now := s.nowFn()
	if err := s.users.Deactivate(ctx, userID, now); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if err := s.revokeAllSessions(ctx, userID, now); err != nil {
		return err
	}

	return s.appendEvent(ctx, domain.EventUserDeactivated, &userID, user.Email, "", map[string]any{
		"actor_user_id": actor.UserID,
	})
}

// ChangePassword rotates the caller's own credential after proving the
// current one. Every session of the user is revoked afterwards; the caller
// logs in again with the new password.
func (s *Service) ChangePassword(ctx context.Context, token string, req ChangePasswordRequest) error {
	claims, err := s.ValidateToken(ctx, token)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, req.CurrentPassword); err != nil {
		return domain.ErrInvalidCredentials
	}
	if err := domain.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	if err := s.users.UpdatePassword(ctx, user.UserID, passwordHash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.revokeAllSessions(ctx, user.UserID, now); err != nil {
		return err
	}

	return s.appendEvent(ctx, domain.EventPasswordChanged, &user.UserID, user.Email, "", nil)
}

// ListSecurityEvents exposes the ledger to holders of view-audit.
func (s *Service) ListSecurityEvents(ctx context.Context, token string, q SecurityEventQuery) ([]SecurityEventItem, error) {
	if _, err := s.Authorize(ctx, token, domain.CapabilityViewAudit); err != nil {
		return nil, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}

	filter := ports.SecurityEventFilter{
		Email:  strings.ToLower(strings.TrimSpace(q.Email)),
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	}
	if kind := strings.TrimSpace(q.Kind); kind != "" {
		filter.Kinds = []domain.EventKind{domain.EventKind(strings.ToUpper(kind))}
	}
	if raw := strings.TrimSpace(q.UserID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid user id", domain.ErrInvalidInput)
		}
		filter.UserID = &id
	}

	events, err := s.securityEvents.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := make([]SecurityEventItem, 0, len(events))
	for _, event := range events {
		result = append(result, toSecurityEventItem(event))
	}
	return result, nil
}

// revokeAllSessions ends every live session of one user and mirrors the
// revocations into the cache.
func (s *Service) revokeAllSessions(ctx context.Context, userID uuid.UUID, now time.Time) error {
	active, err := s.sessions.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if err := s.sessions.RevokeAllByUser(ctx, userID, now); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.markSessionsRevoked(ctx, active)
	return nil
}
