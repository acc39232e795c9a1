package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ventas-png/control-consumo-agua/internal/domain"
)

type loginAttemptRepository struct {
	db *gorm.DB
}

func (r *loginAttemptRepository) Insert(ctx context.Context, attempt domain.LoginAttempt) error {
	rec := loginAttemptModel{
		UserID:      attempt.UserID,
		Email:       attempt.Email,
		Origin:      nullableString(attempt.Origin),
		AttemptedAt: attempt.AttemptedAt,
		Success:     attempt.Success,
		Reason:      nullableString(attempt.Reason),
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// CountRecentFailures counts failed attempts inside the closed interval
// [windowStart, now]. Attempts stamped exactly at either bound count.
func (r *loginAttemptRepository) CountRecentFailures(ctx context.Context, email string, windowStart, now time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&loginAttemptModel{}).
		Where("email = ?", email).
		Where("success = ?", false).
		Where("attempted_at >= ?", windowStart).
		Where("attempted_at <= ?", now).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *loginAttemptRepository) ListByEmail(ctx context.Context, email string, limit, offset int, onlyFailures bool) ([]domain.LoginAttempt, error) {
	query := r.db.WithContext(ctx).
		Where("email = ?", email)
	if onlyFailures {
		query = query.Where("success = ?", false)
	}

	var rows []loginAttemptModel
	if err := query.Order("attempted_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.LoginAttempt, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainLoginAttempt(row))
	}
	return result, nil
}
