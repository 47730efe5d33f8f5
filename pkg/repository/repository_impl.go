package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type store[T any] struct {
	db *gorm.DB
}

func On[T any](db *gorm.DB) Store[T] {
	return &store[T]{db: db}
}

// Get returns nil without error when nothing matches.
func (s *store[T]) Get(ctx context.Context, filter *T, opts ...QueryOption) (*T, error) {
	var result T
	err := s.query(ctx, filter, opts).Take(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *store[T]) List(ctx context.Context, filter *T, opts ...QueryOption) ([]*T, error) {
	var result []*T
	if err := s.query(ctx, filter, opts).Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (s *store[T]) Insert(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) UpdateWhere(ctx context.Context, values map[string]any, opts ...QueryOption) (int64, error) {
	if len(opts) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}
	result := s.query(ctx, nil, opts).Updates(values)
	return result.RowsAffected, result.Error
}

func (s *store[T]) DeleteWhere(ctx context.Context, opts ...QueryOption) (int64, error) {
	if len(opts) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}
	result := s.query(ctx, nil, opts).Delete(new(T))
	return result.RowsAffected, result.Error
}

func (s *store[T]) Count(ctx context.Context, filter *T) (int64, error) {
	var count int64
	err := s.query(ctx, filter, nil).Count(&count).Error
	return count, err
}

func (s *store[T]) Pluck(ctx context.Context, column string, dest any, opts ...QueryOption) error {
	return s.query(ctx, nil, opts).Pluck(column, dest).Error
}

func (s *store[T]) query(ctx context.Context, filter *T, opts []QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx).Model(new(T))
	if filter != nil {
		db = db.Where(filter)
	}
	for _, opt := range opts {
		db = opt.Apply(db)
	}
	return db
}
