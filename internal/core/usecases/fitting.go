package usecases

import (
	"context"
	"fmt"
	"math"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

// RouteResolver is the slice of ResolverService the fitter needs: something
// that can tell how long a candidate shape is once routed onto streets.
type RouteResolver interface {
	ResolveRoute(ctx context.Context, points []domain.GeoPoint, mode domain.TravelMode) (*domain.RoutedShape, error)
}

// FittingConfig bounds the scale search.
type FittingConfig struct {
	MinScale         float64 // lowest scale factor ever tried
	MaxScale         float64 // highest scale factor ever tried
	BracketAttempts  int     // bracket widenings before giving up on bracketing
	Iterations       int     // bisection iterations
	ToleranceFloor   float64 // absolute tolerance in meters
	TolerancePercent float64 // relative tolerance as a fraction of the target
}

// DefaultFittingConfig returns the tuned search bounds.
func DefaultFittingConfig() FittingConfig {
	return FittingConfig{
		MinScale:         0.2,
		MaxScale:         5.0,
		BracketAttempts:  4,
		Iterations:       7,
		ToleranceFloor:   10,
		TolerancePercent: 0.01,
	}
}

// FittingService scales a drawn shape about its centroid until the routed
// distance of the scaled shape matches a target. Routed distance is not a
// linear function of scale (streets snap), so the search brackets the target
// and bisects, keeping the best candidate seen in case it never converges.
type FittingService struct {
	resolver RouteResolver
	cfg      FittingConfig
}

// NewFittingService creates a new FittingService.
func NewFittingService(resolver RouteResolver, cfg FittingConfig) *FittingService {
	if cfg.MinScale <= 0 {
		cfg.MinScale = 0.2
	}
	if cfg.MaxScale <= cfg.MinScale {
		cfg.MaxScale = 5.0
	}
	if cfg.BracketAttempts <= 0 {
		cfg.BracketAttempts = 4
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 7
	}
	if cfg.ToleranceFloor <= 0 {
		cfg.ToleranceFloor = 10
	}
	if cfg.TolerancePercent <= 0 {
		cfg.TolerancePercent = 0.01
	}
	return &FittingService{resolver: resolver, cfg: cfg}
}

// FitToDistance searches for the scale factor whose routed distance is
// closest to targetMeters. It always returns the best candidate found;
// Converged on the result reports whether it landed within tolerance.
func (s *FittingService) FitToDistance(ctx context.Context, shape *domain.Shape, targetMeters float64, mode domain.TravelMode) (*domain.FitResult, error) {
	if shape == nil || len(shape.Points) < 2 {
		return nil, fmt.Errorf("fitting needs a shape with at least 2 points")
	}
	if targetMeters <= 0 {
		return nil, fmt.Errorf("target distance must be positive, got %f", targetMeters)
	}

	closed := shape.Closed()
	centroid := geospatial.Centroid(shape.Points)
	tolerance := math.Max(s.cfg.ToleranceFloor, s.cfg.TolerancePercent*targetMeters)

	best := &domain.FitResult{ScaleFactor: 1}
	bestErr := math.Inf(1)

	measure := func(scale float64) (float64, []domain.GeoPoint, error) {
		candidate := scaleAboutCentroid(shape.Points, centroid, scale)
		if closed {
			candidate[len(candidate)-1] = candidate[0]
		}
		routed, err := s.resolver.ResolveRoute(ctx, candidate, mode)
		if err != nil {
			return 0, nil, err
		}
		dist := routed.TotalDistanceMeters
		if e := math.Abs(dist - targetMeters); e < bestErr {
			bestErr = e
			best = &domain.FitResult{
				ScaleFactor:            scale,
				ScaledPoints:           candidate,
				AchievedDistanceMeters: dist,
			}
		}
		return dist, candidate, nil
	}

	base, _, err := measure(1)
	if err != nil {
		return nil, fmt.Errorf("measure base distance: %w", err)
	}
	if base <= 0 {
		return nil, fmt.Errorf("shape routes to zero distance")
	}

	// First guess assumes distance scales linearly, clamped to sane bounds.
	f0 := clampScale(targetMeters/base, s.cfg.MinScale, s.cfg.MaxScale)

	lo := clampScale(0.5*f0, s.cfg.MinScale, s.cfg.MaxScale)
	hi := clampScale(1.5*f0, s.cfg.MinScale, s.cfg.MaxScale)

	dLo, _, err := measure(lo)
	if err != nil {
		return nil, err
	}
	dHi, _, err := measure(hi)
	if err != nil {
		return nil, err
	}

	// Widen the bracket until it straddles the target or we run out of room.
	for attempt := 0; attempt < s.cfg.BracketAttempts && !(dLo <= targetMeters && targetMeters <= dHi); attempt++ {
		if bestErr <= tolerance {
			break
		}
		widened := false
		if targetMeters < dLo && lo > s.cfg.MinScale {
			lo = clampScale(lo*0.5, s.cfg.MinScale, s.cfg.MaxScale)
			if dLo, _, err = measure(lo); err != nil {
				return nil, err
			}
			widened = true
		}
		if targetMeters > dHi && hi < s.cfg.MaxScale {
			hi = clampScale(hi*1.5, s.cfg.MinScale, s.cfg.MaxScale)
			if dHi, _, err = measure(hi); err != nil {
				return nil, err
			}
			widened = true
		}
		if !widened {
			break
		}
	}

	for i := 0; i < s.cfg.Iterations && bestErr > tolerance; i++ {
		mid := (lo + hi) / 2
		dMid, _, err := measure(mid)
		if err != nil {
			return nil, err
		}
		// Routed distance grows with scale for all practical shapes, so a
		// plain bisection on the bracket is safe.
		if dMid < targetMeters {
			lo = mid
		} else {
			hi = mid
		}
	}

	best.Converged = bestErr <= tolerance
	return best, nil
}

// scaleAboutCentroid returns a new point slice scaled by factor about c.
func scaleAboutCentroid(points []domain.GeoPoint, c domain.GeoPoint, factor float64) []domain.GeoPoint {
	out := make([]domain.GeoPoint, len(points))
	for i, p := range points {
		out[i] = domain.GeoPoint{
			Lat: c.Lat + (p.Lat-c.Lat)*factor,
			Lon: c.Lon + (p.Lon-c.Lon)*factor,
		}
	}
	return out
}

func clampScale(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
