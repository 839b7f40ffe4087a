package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mzabaleta/routefit/internal/adapters/postgres"
	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/usecases"
	"github.com/mzabaleta/routefit/internal/pkg/metrics"
)

const maxRequestPoints = 10000

// parseTravelMode maps the request string onto a domain travel mode,
// defaulting to walking.
func parseTravelMode(raw string) (domain.TravelMode, error) {
	switch raw {
	case "", "walking":
		return domain.TravelWalking, nil
	case "bicycling":
		return domain.TravelBicycling, nil
	default:
		return "", errors.New("travel_mode must be walking or bicycling")
	}
}

// ReducePointsHandler runs one reduction pass over raw drawn points.
// POST /v1/points/reduce {"points": [...], "mode": "dedupe|freehand|resample"}
func ReducePointsHandler(deps *Dependencies) fiber.Handler {
	type request struct {
		Points []domain.GeoPoint `json:"points"`
		Mode   string            `json:"mode"`
	}
	return func(c *fiber.Ctx) error {
		var req request
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) == 0 {
			return errBadRequest(c, "points are required")
		}
		if len(req.Points) > maxRequestPoints {
			return errBadRequest(c, "too many points")
		}

		mode := usecases.ReductionMode(req.Mode)
		if req.Mode == "" {
			mode = usecases.ReduceDedupe
		}
		reduced, err := deps.Reduction.ReduceDrawnPoints(req.Points, mode)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		return c.JSON(fiber.Map{
			"points":        reduced,
			"input_count":   len(req.Points),
			"reduced_count": len(reduced),
		})
	}
}

// ResolveRouteHandler routes ordered points onto the street network.
// POST /v1/routes/resolve {"points": [...], "travel_mode": "walking"}
func ResolveRouteHandler(deps *Dependencies) fiber.Handler {
	type request struct {
		Points     []domain.GeoPoint `json:"points"`
		TravelMode string            `json:"travel_mode"`
	}
	return func(c *fiber.Ctx) error {
		var req request
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) < 2 {
			return errBadRequest(c, "at least 2 points are required")
		}
		if len(req.Points) > maxRequestPoints {
			return errBadRequest(c, "too many points")
		}
		mode, err := parseTravelMode(req.TravelMode)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		routed, err := deps.Resolver.ResolveRoute(c.UserContext(), req.Points, mode)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if routed.FallbackSegments > 0 {
			metrics.FallbackSegments.Add(float64(routed.FallbackSegments))
		}
		return c.JSON(routed)
	}
}

// FitRouteHandler scales a shape until its routed distance hits the target.
// POST /v1/routes/fit {"points": [...], "target_meters": 5000, "travel_mode": "walking", "anchor": {...}}
// An anchor triggers land-placement correction before the search runs.
func FitRouteHandler(deps *Dependencies) fiber.Handler {
	type request struct {
		Points       []domain.GeoPoint `json:"points"`
		TargetMeters float64           `json:"target_meters"`
		TravelMode   string            `json:"travel_mode"`
		Anchor       *domain.GeoPoint  `json:"anchor"`
	}
	return func(c *fiber.Ctx) error {
		var req request
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) < 2 {
			return errBadRequest(c, "at least 2 points are required")
		}
		if req.TargetMeters <= 0 {
			return errBadRequest(c, "target_meters must be positive")
		}
		mode, err := parseTravelMode(req.TravelMode)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		points := req.Points
		if req.Anchor != nil {
			points = deps.Placement.CorrectPlacement(points, *req.Anchor)
		}

		shape := &domain.Shape{Kind: domain.ShapeFreehand, Points: points}
		start := time.Now()
		result, err := deps.Fitting.FitToDistance(c.UserContext(), shape, req.TargetMeters, mode)
		if err != nil {
			return errInternal(c, err.Error())
		}
		metrics.FittingDuration.Observe(time.Since(start).Seconds())
		if result.Converged {
			metrics.FittingSearches.WithLabelValues("true").Inc()
		} else {
			metrics.FittingSearches.WithLabelValues("false").Inc()
		}

		return c.JSON(result)
	}
}

// CorrectPlacementHandler nudges a shape toward the anchor and up to the
// minimum routable size.
// POST /v1/points/correct {"points": [...], "anchor": {...}}
func CorrectPlacementHandler(deps *Dependencies) fiber.Handler {
	type request struct {
		Points []domain.GeoPoint `json:"points"`
		Anchor domain.GeoPoint   `json:"anchor"`
	}
	return func(c *fiber.Ctx) error {
		var req request
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) == 0 {
			return errBadRequest(c, "points are required")
		}
		return c.JSON(fiber.Map{
			"points": deps.Placement.CorrectPlacement(req.Points, req.Anchor),
		})
	}
}

// CreateShapeHandler stores a drawn shape.
// POST /v1/shapes
func CreateShapeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var shape domain.Shape
		if err := c.BodyParser(&shape); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		saved, err := deps.Shapes.Save(c.UserContext(), &shape)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(saved)
	}
}

// ListShapesHandler lists stored shapes, newest first.
func ListShapesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 50
		}

		shapes, err := deps.Shapes.List(c.UserContext(), limit, offset)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: offset + len(shapes)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: shapes, Pagination: pg})
	}
}

// GetShapeHandler returns a single shape by ID.
func GetShapeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "shape id is required")
		}
		shape, err := deps.Shapes.Get(c.UserContext(), id)
		if err != nil {
			return errNotFound(c, "shape not found")
		}
		return c.JSON(shape)
	}
}

// DeleteShapeHandler removes a shape.
func DeleteShapeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "shape id is required")
		}
		if err := deps.Shapes.Delete(c.UserContext(), id); err != nil {
			if errors.Is(err, postgres.ErrShapeNotFound) {
				return errNotFound(c, "shape not found")
			}
			return errInternal(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// OpenDirectionsHandler starts a turn-by-turn session for a stored shape or
// an inline point list.
// POST /v1/directions/open {"shape_id": "..."} or {"points": [...]}
func OpenDirectionsHandler(deps *Dependencies) fiber.Handler {
	type request struct {
		ShapeID    string            `json:"shape_id"`
		Points     []domain.GeoPoint `json:"points"`
		TravelMode string            `json:"travel_mode"`
	}
	return func(c *fiber.Ctx) error {
		var req request
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		mode, err := parseTravelMode(req.TravelMode)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		var shape *domain.Shape
		switch {
		case req.ShapeID != "":
			shape, err = deps.Shapes.Get(c.UserContext(), req.ShapeID)
			if err != nil {
				return errNotFound(c, "shape not found")
			}
		case len(req.Points) >= 2:
			shape = &domain.Shape{Kind: domain.ShapeFreehand, Points: req.Points}
		default:
			return errBadRequest(c, "shape_id or at least 2 points are required")
		}

		view, err := deps.Narration.OpenDirections(c.UserContext(), shape, mode)
		if err != nil {
			return errInternal(c, err.Error())
		}
		metrics.ActiveSessions.Set(1)
		metrics.NarrationEvents.WithLabelValues("open").Inc()
		return c.Status(201).JSON(view)
	}
}

// GetSessionHandler returns the active directions session.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view := deps.Narration.Session()
		if view == nil {
			return errNotFound(c, "no active directions session")
		}
		return c.JSON(view)
	}
}

// AdvanceStepHandler moves the session cursor forward manually.
func AdvanceStepHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := deps.Narration.Advance(c.UserContext())
		if err != nil {
			return errConflict(c, err.Error())
		}
		metrics.NarrationEvents.WithLabelValues("advance").Inc()
		return c.JSON(view)
	}
}

// RetreatStepHandler moves the session cursor backward manually.
func RetreatStepHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := deps.Narration.Retreat(c.UserContext())
		if err != nil {
			return errConflict(c, err.Error())
		}
		metrics.NarrationEvents.WithLabelValues("retreat").Inc()
		return c.JSON(view)
	}
}

// CloseDirectionsHandler ends the active session.
func CloseDirectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Narration.Close(c.UserContext()); err != nil {
			return errConflict(c, err.Error())
		}
		metrics.ActiveSessions.Set(0)
		metrics.NarrationEvents.WithLabelValues("close").Inc()
		return c.SendStatus(204)
	}
}

// SetVoiceHandler toggles spoken narration.
// POST /v1/directions/voice {"enabled": true}
func SetVoiceHandler(deps *Dependencies) fiber.Handler {
	type request struct {
		Enabled bool `json:"enabled"`
	}
	return func(c *fiber.Ctx) error {
		var req request
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		view, err := deps.Narration.SetVoiceEnabled(c.UserContext(), req.Enabled)
		if err != nil {
			return errConflict(c, err.Error())
		}
		return c.JSON(view)
	}
}

// FeedPositionHandler applies one live position fix over plain HTTP, for
// clients that cannot hold a WebSocket open.
// POST /v1/directions/position {"lat": ..., "lon": ..., "accuracy_meters": ...}
func FeedPositionHandler(deps *Dependencies) fiber.Handler {
	type request struct {
		Lat            float64 `json:"lat"`
		Lon            float64 `json:"lon"`
		AccuracyMeters float64 `json:"accuracy_meters"`
	}
	return func(c *fiber.Ctx) error {
		var req request
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		deps.Narration.FeedPosition(c.UserContext(), &domain.PositionFix{
			Location:       domain.GeoPoint{Lat: req.Lat, Lon: req.Lon},
			AccuracyMeters: req.AccuracyMeters,
		})
		return c.SendStatus(202)
	}
}

// StatsHandler returns row counts from the shapes table.
func StatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats struct {
			Shapes     int    `json:"shapes"`
			LastUpdate string `json:"last_update,omitempty"`
		}
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM shapes),
				COALESCE((SELECT max(updated_at)::text FROM shapes), '')
		`)
		if err := row.Scan(&stats.Shapes, &stats.LastUpdate); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
