package usecases

import (
	"fmt"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

// ReductionMode selects which reduction strategy ReduceDrawnPoints applies.
type ReductionMode string

const (
	// ReduceDedupe drops points closer than a minimum spacing to the last kept one.
	ReduceDedupe ReductionMode = "dedupe"
	// ReduceFreehand keeps points at direction changes and maximum run lengths,
	// producing sparse shape-preserving waypoints during live capture.
	ReduceFreehand ReductionMode = "freehand"
	// ReduceResample emits points at fixed distance intervals along the path.
	ReduceResample ReductionMode = "resample"
)

// ReductionConfig holds the thresholds for the three reduction operations.
type ReductionConfig struct {
	MinSpacingMeters float64 // sequential dedupe threshold
	TurnThresholdDeg float64 // freehand direction-change threshold
	MaxRunMeters     float64 // freehand maximum distance between kept points
	ResampleInterval float64 // fixed-interval resampling distance
}

// DefaultReductionConfig mirrors the thresholds tuned for hand-drawn running routes.
func DefaultReductionConfig() ReductionConfig {
	return ReductionConfig{
		MinSpacingMeters: 8,
		TurnThresholdDeg: 15,
		MaxRunMeters:     10,
		ResampleInterval: 30,
	}
}

// ReductionService collapses raw drawn polylines into materially distinct
// waypoint sequences. All operations are pure: they never reorder points and
// always keep the first and last point of their input.
type ReductionService struct {
	cfg ReductionConfig
}

// NewReductionService creates a ReductionService.
func NewReductionService(cfg ReductionConfig) *ReductionService {
	if cfg.MinSpacingMeters <= 0 {
		cfg.MinSpacingMeters = 8
	}
	if cfg.TurnThresholdDeg <= 0 {
		cfg.TurnThresholdDeg = 15
	}
	if cfg.MaxRunMeters <= 0 {
		cfg.MaxRunMeters = 10
	}
	if cfg.ResampleInterval <= 0 {
		cfg.ResampleInterval = 30
	}
	return &ReductionService{cfg: cfg}
}

// ReduceDrawnPoints applies the reduction strategy named by mode.
func (s *ReductionService) ReduceDrawnPoints(points []domain.GeoPoint, mode ReductionMode) ([]domain.GeoPoint, error) {
	switch mode {
	case ReduceDedupe:
		return s.Dedupe(points), nil
	case ReduceFreehand:
		return s.ConsolidateDirection(points), nil
	case ReduceResample:
		return s.Resample(points), nil
	default:
		return nil, fmt.Errorf("unknown reduction mode: %q", mode)
	}
}

// Dedupe keeps a point only if it is farther than the minimum spacing from
// the last kept point. The first and last points are always kept.
func (s *ReductionService) Dedupe(points []domain.GeoPoint) []domain.GeoPoint {
	if len(points) <= 2 {
		return clonePoints(points)
	}

	kept := make([]domain.GeoPoint, 0, len(points))
	kept = append(kept, points[0])

	for i := 1; i < len(points)-1; i++ {
		if geospatial.Distance(kept[len(kept)-1], points[i]) > s.cfg.MinSpacingMeters {
			kept = append(kept, points[i])
		}
	}

	kept = append(kept, points[len(points)-1])
	return kept
}

// ConsolidateDirection keeps a point when the path turns by more than the
// configured angle versus the previous two kept points, or when the distance
// from the last kept point exceeds the maximum run length. The first three
// points are always kept so a direction can be established.
func (s *ReductionService) ConsolidateDirection(points []domain.GeoPoint) []domain.GeoPoint {
	if len(points) <= 3 {
		return clonePoints(points)
	}

	kept := make([]domain.GeoPoint, 0, len(points))
	kept = append(kept, points[0])

	for i := 1; i < len(points)-1; i++ {
		p := points[i]
		if len(kept) < 3 {
			kept = append(kept, p)
			continue
		}

		prev := kept[len(kept)-1]
		prevPrev := kept[len(kept)-2]

		turn := turnAngle(prevPrev, prev, p)
		if turn > s.cfg.TurnThresholdDeg || geospatial.Distance(prev, p) > s.cfg.MaxRunMeters {
			kept = append(kept, p)
		}
	}

	last := points[len(points)-1]
	if !samePoint(kept[len(kept)-1], last) {
		kept = append(kept, last)
	}
	return kept
}

// Resample walks the path accumulating distance and emits a point every time
// the accumulated distance crosses the configured interval, interpolating on
// the segment where the crossing happens. The final point is always included.
func (s *ReductionService) Resample(points []domain.GeoPoint) []domain.GeoPoint {
	if len(points) <= 2 {
		return clonePoints(points)
	}

	interval := s.cfg.ResampleInterval
	out := make([]domain.GeoPoint, 0, len(points))
	out = append(out, points[0])

	carried := 0.0
	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		segLen := geospatial.Distance(a, b)
		if segLen == 0 {
			continue
		}

		// Emit every interval crossing inside this segment.
		pos := carried
		for pos+interval <= segLen {
			pos += interval
			out = append(out, geospatial.Interpolate(a, b, pos/segLen))
		}
		carried = pos - segLen // negative remainder carried into next segment
	}

	// Always include the final point, compared by value, not identity.
	last := points[len(points)-1]
	if !samePoint(out[len(out)-1], last) {
		out = append(out, last)
	}
	return out
}

// turnAngle returns the absolute change of heading, in degrees, at point b
// when travelling a -> b -> c.
func turnAngle(a, b, c domain.GeoPoint) float64 {
	inbound := geospatial.Bearing(a, b)
	outbound := geospatial.Bearing(b, c)
	diff := outbound - inbound
	for diff > 180 {
		diff -= 360
	}
	for diff < -180 {
		diff += 360
	}
	if diff < 0 {
		return -diff
	}
	return diff
}

func samePoint(a, b domain.GeoPoint) bool {
	const eps = 1e-9
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	if dLat < 0 {
		dLat = -dLat
	}
	if dLon < 0 {
		dLon = -dLon
	}
	return dLat < eps && dLon < eps
}

func clonePoints(points []domain.GeoPoint) []domain.GeoPoint {
	out := make([]domain.GeoPoint, len(points))
	copy(out, points)
	return out
}
