package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository is a thin generic gorm store shared by the domain repositories.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T) ([]*T, error)
	FindOne(ctx context.Context, query *T) (*T, error)
	Create(ctx context.Context, resource *T) error
	Upsert(ctx context.Context, resource *T, conflict []string, update []string) error
	UpdateWhere(ctx context.Context, query *T, values map[string]any) (int64, error)
	DeleteWhere(ctx context.Context, query *T) (int64, error)
	Count(ctx context.Context, query *T) (int64, error)
}
