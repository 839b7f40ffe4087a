package usecases

import (
	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

// PlacementConfig holds the correction thresholds.
type PlacementConfig struct {
	// MaxAnchorDistanceMeters flags points likely drawn over water or other
	// unroutable terrain. A coarse proxy, not a land/water lookup.
	MaxAnchorDistanceMeters float64
	// PullFraction is how far the shape is translated toward the anchor when
	// flagged, as a fraction of the centroid-to-anchor vector.
	PullFraction float64
	// MinSizeMeters is the smallest maximum pairwise extent that still routes
	// to something meaningful.
	MinSizeMeters float64
}

// DefaultPlacementConfig returns the tuned correction thresholds.
func DefaultPlacementConfig() PlacementConfig {
	return PlacementConfig{
		MaxAnchorDistanceMeters: 1000,
		PullFraction:            0.3,
		MinSizeMeters:           50,
	}
}

// PlacementService nudges drawn shapes into routable positions before
// fitting: far-flung shapes are pulled partway toward the user's anchor
// location, and degenerate tiny shapes are scaled up to a minimum extent.
// Corrections are applied in that order and are no-ops on shapes that
// already satisfy both constraints.
type PlacementService struct {
	cfg PlacementConfig
}

// NewPlacementService creates a new PlacementService.
func NewPlacementService(cfg PlacementConfig) *PlacementService {
	if cfg.MaxAnchorDistanceMeters <= 0 {
		cfg.MaxAnchorDistanceMeters = 1000
	}
	if cfg.PullFraction <= 0 {
		cfg.PullFraction = 0.3
	}
	if cfg.MinSizeMeters <= 0 {
		cfg.MinSizeMeters = 50
	}
	return &PlacementService{cfg: cfg}
}

// CorrectPlacement returns a corrected copy of points. The input is never
// mutated and point order is preserved.
func (s *PlacementService) CorrectPlacement(points []domain.GeoPoint, anchor domain.GeoPoint) []domain.GeoPoint {
	if len(points) == 0 {
		return nil
	}

	out := clonePoints(points)

	if s.anyUnroutable(out, anchor) {
		centroid := geospatial.Centroid(out)
		dLat := (anchor.Lat - centroid.Lat) * s.cfg.PullFraction
		dLon := (anchor.Lon - centroid.Lon) * s.cfg.PullFraction
		for i := range out {
			out[i].Lat += dLat
			out[i].Lon += dLon
		}
	}

	if maxDist := geospatial.MaxPairwiseDistance(out); maxDist > 0 && maxDist < s.cfg.MinSizeMeters {
		centroid := geospatial.Centroid(out)
		out = scaleAboutCentroid(out, centroid, s.cfg.MinSizeMeters/maxDist)
	}

	return out
}

func (s *PlacementService) anyUnroutable(points []domain.GeoPoint, anchor domain.GeoPoint) bool {
	for _, p := range points {
		if geospatial.Distance(p, anchor) > s.cfg.MaxAnchorDistanceMeters {
			return true
		}
	}
	return false
}
