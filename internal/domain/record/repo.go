package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	CreateBatch(ctx context.Context, recs []*Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// List and Search leave XMLContent empty and order by full name.
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*Record, int, error)
	Truncate(ctx context.Context) error
}
