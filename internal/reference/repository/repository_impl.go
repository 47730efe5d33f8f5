package repository

import (
	"context"

	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() referencedomain.Repository {
	return &repo{}
}

func (r *repo) Highest(ctx context.Context, db *gorm.DB, prefix, periodKey string) (string, error) {
	var values []string
	err := db.WithContext(ctx).Raw(
		`SELECT value
		 FROM reference_numbers
		 WHERE value LIKE ?
		 ORDER BY sequence DESC, value DESC
		 LIMIT 1`,
		prefix+"-"+periodKey+"-%",
	).Scan(&values).Error
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, rec *referencedomain.ReferenceNumber) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
}
