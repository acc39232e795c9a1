package postgres

import (
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
)

func toDomainUser(row userModel) domain.User {
	return domain.User{
		UserID:              row.UserID,
		Email:               row.Email,
		PasswordHash:        row.PasswordHash,
		Name:                row.Name,
		Role:                domain.Role(row.Role),
		IsActive:            row.IsActive,
		FailedLoginAttempts: row.FailedLoginAttempts,
		LockedUntil:         row.LockedUntil,
		LastLoginAt:         row.LastLoginAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func toDomainSession(row sessionModel) domain.Session {
	origin := ""
	if row.Origin != nil {
		origin = *row.Origin
	}
	return domain.Session{
		SessionID:       row.SessionID,
		UserID:          row.UserID,
		Role:            domain.Role(row.Role),
		Origin:          origin,
		IssuedAt:        row.IssuedAt,
		ExpiresAt:       row.ExpiresAt,
		LastValidatedAt: row.LastValidatedAt,
		RevokedAt:       row.RevokedAt,
	}
}

func toDomainLoginAttempt(row loginAttemptModel) domain.LoginAttempt {
	origin := ""
	if row.Origin != nil {
		origin = *row.Origin
	}
	reason := ""
	if row.Reason != nil {
		reason = *row.Reason
	}
	return domain.LoginAttempt{
		ID:          row.ID,
		UserID:      row.UserID,
		Email:       row.Email,
		Origin:      origin,
		AttemptedAt: row.AttemptedAt,
		Success:     row.Success,
		Reason:      reason,
	}
}

func toDomainSecurityEvent(row securityEventModel) domain.SecurityEvent {
	email := ""
	if row.Email != nil {
		email = *row.Email
	}
	origin := ""
	if row.Origin != nil {
		origin = *row.Origin
	}
	var detail map[string]any
	if row.Detail != nil && *row.Detail != "" {
		_ = json.Unmarshal([]byte(*row.Detail), &detail)
	}
	return domain.SecurityEvent{
		ID:        row.ID,
		EventID:   row.EventID,
		Kind:      domain.EventKind(row.Kind),
		UserID:    row.UserID,
		Email:     email,
		Origin:    origin,
		Detail:    detail,
		CreatedAt: row.CreatedAt,
	}
}

func marshalDetail(detail map[string]any) (*string, error) {
	if len(detail) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, err
	}
	encoded := string(raw)
	return &encoded, nil
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
