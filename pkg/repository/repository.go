package repository

import "context"

// Store is a typed view over one gorm handle. Build it on the handle of the
// transaction the caller is running so every statement joins it.
type Store[T any] interface {
	Get(ctx context.Context, filter *T, opts ...QueryOption) (*T, error)
	List(ctx context.Context, filter *T, opts ...QueryOption) ([]*T, error)
	Insert(ctx context.Context, resource *T) error
	// UpdateWhere applies values to the rows matched by opts and returns
	// how many changed.
	UpdateWhere(ctx context.Context, values map[string]any, opts ...QueryOption) (int64, error)
	DeleteWhere(ctx context.Context, opts ...QueryOption) (int64, error)
	Count(ctx context.Context, filter *T) (int64, error)
	Pluck(ctx context.Context, column string, dest any, opts ...QueryOption) error
}
