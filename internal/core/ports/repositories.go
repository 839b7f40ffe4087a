package ports

import (
	"context"

	"github.com/mzabaleta/routefit/internal/core/domain"
)

// ShapeRepository persists drawn shapes.
type ShapeRepository interface {
	Upsert(ctx context.Context, shape *domain.Shape) error
	GetByID(ctx context.Context, id string) (*domain.Shape, error)
	List(ctx context.Context, limit, offset int) ([]domain.Shape, error)
	Delete(ctx context.Context, id string) error
}
