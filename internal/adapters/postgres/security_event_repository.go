package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
	"github.com/ventas-png/control-consumo-agua/internal/ports"
)

type securityEventRepository struct {
	db *gorm.DB
}

func (r *securityEventRepository) Append(ctx context.Context, event domain.SecurityEvent) error {
	detail, err := marshalDetail(event.Detail)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}
	rec := securityEventModel{
		EventID:   event.EventID,
		Kind:      string(event.Kind),
		UserID:    event.UserID,
		Email:     nullableString(event.Email),
		Origin:    nullableString(event.Origin),
		Detail:    detail,
		CreatedAt: event.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *securityEventRepository) List(ctx context.Context, filter ports.SecurityEventFilter) ([]domain.SecurityEvent, error) {
	query := r.db.WithContext(ctx).Model(&securityEventModel{})
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, kind := range filter.Kinds {
			kinds = append(kinds, string(kind))
		}
		query = query.Where("kind IN ?", kinds)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Email != "" {
		query = query.Where("email = ?", filter.Email)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var rows []securityEventModel
	if err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.SecurityEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainSecurityEvent(row))
	}
	return result, nil
}

// ClaimUnpublished reserves a batch for one worker pass. SKIP LOCKED keeps
// concurrent workers from contending on the same rows; stale claims fall back
// into the pool once claim_until passes.
func (r *securityEventRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.SecurityEventRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	now := time.Now().UTC()
	var rows []securityEventModel
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subquery := tx.Model(&securityEventModel{}).
			Select("id").
			Where("published_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Where("claim_until IS NULL OR claim_until < ?", now).
			Order("created_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&securityEventModel{}).
			Where("id IN (?)", subquery).
			Updates(map[string]any{
				"claim_token": claimToken,
				"claim_until": claimUntil,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ?", claimToken).
			Where("published_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Order("created_at ASC").
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}

	result := make([]ports.SecurityEventRecord, 0, len(rows))
	for _, row := range rows {
		var detail []byte
		if row.Detail != nil {
			detail = []byte(*row.Detail)
		}
		email := ""
		if row.Email != nil {
			email = *row.Email
		}
		origin := ""
		if row.Origin != nil {
			origin = *row.Origin
		}
		result = append(result, ports.SecurityEventRecord{
			ID:             row.ID,
			EventID:        row.EventID,
			Kind:           domain.EventKind(row.Kind),
			UserID:         row.UserID,
			Email:          email,
			Origin:         origin,
			Detail:         detail,
			CreatedAt:      row.CreatedAt,
			RetryCount:     row.RetryCount,
			LastError:      row.LastError,
			LastErrorAt:    row.LastErrorAt,
			PublishedAt:    row.PublishedAt,
			ClaimToken:     row.ClaimToken,
			ClaimUntil:     row.ClaimUntil,
			DeadLetteredAt: row.DeadLetteredAt,
		})
	}
	return result, nil
}

func (r *securityEventRepository) MarkPublished(ctx context.Context, eventID uuid.UUID, claimToken string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&securityEventModel{}).
		Where("event_id = ?", eventID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"published_at": at,
			"claim_token":  nil,
			"claim_until":  nil,
		}).Error
}

func (r *securityEventRepository) MarkFailed(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&securityEventModel{}).
		Where("event_id = ?", eventID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    errMsg,
			"last_error_at": at,
			"claim_token":   nil,
			"claim_until":   nil,
		}).Error
}

func (r *securityEventRepository) MarkDeadLettered(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&securityEventModel{}).
		Where("event_id = ?", eventID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":      gorm.Expr("retry_count + 1"),
			"last_error":       errMsg,
			"last_error_at":    at,
			"dead_lettered_at": at,
			"claim_token":      nil,
			"claim_until":      nil,
		}).Error
}
