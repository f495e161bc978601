package repository

import (
	"context"

	"github.com/smallbiznis/cabletrack/pkg/db/option"
)

// Repository is a generic gorm store for aggregates that need nothing
// beyond lookups and inserts. Callers pass the connection or transaction
// in, so one store serves both.
type Repository[T any] interface {
	Create(ctx context.Context, resource *T) error
	// Find returns every row matching the non-zero fields of filter.
	Find(ctx context.Context, filter *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns (nil, nil) when nothing matches.
	FindOne(ctx context.Context, filter *T, opts ...option.QueryOption) (*T, error)
}
