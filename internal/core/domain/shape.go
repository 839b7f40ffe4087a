package domain

import (
	"time"
)

// ShapeKind is the gesture a shape was drawn with.
type ShapeKind string

const (
	ShapeFreehand  ShapeKind = "freehand"
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapePolygon   ShapeKind = "polygon"
)

// Shape is a user-drawn path near their location. Points preserve draw order;
// they are never reordered, only length-reduced or geometrically transformed.
// Scaling produces a new point slice, not an in-place mutation of a stored shape.
type Shape struct {
	ID                   string     `json:"id"`
	Kind                 ShapeKind  `json:"kind"`
	Points               []GeoPoint `json:"points"`
	TargetDistanceMeters *float64   `json:"target_distance_meters,omitempty"`
	Color                string     `json:"color,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Closed reports whether the shape's first and last points coincide.
func (s *Shape) Closed() bool {
	if len(s.Points) < 2 {
		return false
	}
	first, last := s.Points[0], s.Points[len(s.Points)-1]
	const eps = 1e-9
	return abs(first.Lat-last.Lat) < eps && abs(first.Lon-last.Lon) < eps
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
