package repository

import (
	"context"

	"github.com/smallbiznis/rentledger/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListByTarget(ctx context.Context, db *gorm.DB, targetType, targetID string) ([]domain.AuditLog, error) {
	var logs []domain.AuditLog
	err := db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", targetType, targetID).
		Order("created_at asc, id asc").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
