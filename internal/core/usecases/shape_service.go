package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
)

// ShapeService handles stored-shape business logic.
type ShapeService struct {
	shapes ports.ShapeRepository
	cache  ports.CacheService
}

// NewShapeService creates a new ShapeService.
func NewShapeService(shapes ports.ShapeRepository, cache ports.CacheService) *ShapeService {
	return &ShapeService{shapes: shapes, cache: cache}
}

// Save validates and upserts a shape. An empty ID gets one generated.
func (s *ShapeService) Save(ctx context.Context, shape *domain.Shape) (*domain.Shape, error) {
	if shape == nil {
		return nil, fmt.Errorf("shape must not be nil")
	}
	if len(shape.Points) < 1 {
		return nil, fmt.Errorf("shape needs at least 1 point")
	}
	switch shape.Kind {
	case domain.ShapeFreehand, domain.ShapeRectangle, domain.ShapeCircle, domain.ShapePolygon:
	default:
		return nil, fmt.Errorf("unknown shape kind: %q", shape.Kind)
	}
	if shape.TargetDistanceMeters != nil && *shape.TargetDistanceMeters <= 0 {
		return nil, fmt.Errorf("target distance must be positive")
	}

	now := time.Now().UTC()
	if shape.ID == "" {
		shape.ID = newSessionID()
		shape.CreatedAt = now
	}
	shape.UpdatedAt = now

	if err := s.shapes.Upsert(ctx, shape); err != nil {
		return nil, fmt.Errorf("upsert shape: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, shapeCacheKey(shape.ID))
	}
	return shape, nil
}

// Get returns one shape by ID, read-through cached.
func (s *ShapeService) Get(ctx context.Context, id string) (*domain.Shape, error) {
	if id == "" {
		return nil, fmt.Errorf("shape id must not be empty")
	}

	cacheKey := shapeCacheKey(id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var shape domain.Shape
			if err := json.Unmarshal(data, &shape); err == nil {
				return &shape, nil
			}
		}
	}

	shape, err := s.shapes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(shape); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}
	return shape, nil
}

// List returns stored shapes, newest first.
func (s *ShapeService) List(ctx context.Context, limit, offset int) ([]domain.Shape, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.shapes.List(ctx, limit, offset)
}

// Delete removes a shape and its cache entry.
func (s *ShapeService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("shape id must not be empty")
	}
	if err := s.shapes.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, shapeCacheKey(id))
	}
	return nil
}

func shapeCacheKey(id string) string {
	return "shapes:id:" + id
}
