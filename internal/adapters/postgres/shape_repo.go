package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mzabaleta/routefit/internal/core/domain"
)

// ErrShapeNotFound is returned when no shape matches the requested ID.
var ErrShapeNotFound = errors.New("shape not found")

// ShapeRepo implements ports.ShapeRepository with pgx. Points are stored as a
// JSONB array: they are an opaque ordered sequence to the database, never
// queried by geometry.
type ShapeRepo struct {
	db *DB
}

// NewShapeRepo creates a new ShapeRepo.
func NewShapeRepo(db *DB) *ShapeRepo {
	return &ShapeRepo{db: db}
}

// Upsert inserts or replaces a shape.
func (r *ShapeRepo) Upsert(ctx context.Context, s *domain.Shape) error {
	points, err := json.Marshal(s.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO shapes (id, kind, points, target_distance_meters, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET kind = EXCLUDED.kind, points = EXCLUDED.points,
		    target_distance_meters = EXCLUDED.target_distance_meters,
		    color = EXCLUDED.color, updated_at = EXCLUDED.updated_at
	`, s.ID, string(s.Kind), points, s.TargetDistanceMeters, s.Color, s.CreatedAt, s.UpdatedAt)
	return err
}

// GetByID returns a shape by ID.
func (r *ShapeRepo) GetByID(ctx context.Context, id string) (*domain.Shape, error) {
	var (
		s      domain.Shape
		kind   string
		points []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, kind, points, target_distance_meters, COALESCE(color, ''), created_at, updated_at
		FROM shapes WHERE id = $1
	`, id).Scan(&s.ID, &kind, &points, &s.TargetDistanceMeters, &s.Color, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrShapeNotFound
	}
	if err != nil {
		return nil, err
	}

	s.Kind = domain.ShapeKind(kind)
	if err := json.Unmarshal(points, &s.Points); err != nil {
		return nil, fmt.Errorf("unmarshal points: %w", err)
	}
	return &s, nil
}

// List returns shapes ordered newest first.
func (r *ShapeRepo) List(ctx context.Context, limit, offset int) ([]domain.Shape, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, kind, points, target_distance_meters, COALESCE(color, ''), created_at, updated_at
		FROM shapes
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shapes []domain.Shape
	for rows.Next() {
		var (
			s      domain.Shape
			kind   string
			points []byte
		)
		if err := rows.Scan(&s.ID, &kind, &points, &s.TargetDistanceMeters, &s.Color, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Kind = domain.ShapeKind(kind)
		if err := json.Unmarshal(points, &s.Points); err != nil {
			return nil, fmt.Errorf("unmarshal points: %w", err)
		}
		shapes = append(shapes, s)
	}
	return shapes, rows.Err()
}

// Delete removes a shape.
func (r *ShapeRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM shapes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShapeNotFound
	}
	return nil
}
