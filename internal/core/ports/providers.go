package ports

import (
	"context"
	"errors"

	"github.com/mzabaleta/routefit/internal/core/domain"
)

// ErrProviderUnavailable means the directions provider could not be reached
// at all (not configured, DNS failure, connection refused).
var ErrProviderUnavailable = errors.New("directions provider unavailable")

// ErrNoRoute means the provider answered but found no route for the request.
var ErrNoRoute = errors.New("no route found")

// Waypoint is an intermediate point a routing request must pass through.
// Non-stopover waypoints only shape the path; they do not split the route
// into separate legs with their own instruction lists.
type Waypoint struct {
	Point    domain.GeoPoint
	Stopover bool
}

// RouteRequest describes one directions request.
type RouteRequest struct {
	Origin      domain.GeoPoint
	Destination domain.GeoPoint
	Waypoints   []Waypoint
	TravelMode  domain.TravelMode
	// OptimizeWaypoints must stay false for drawn shapes: the user's point
	// order is the route, not an optimization input.
	OptimizeWaypoints bool
}

// RouteResponse is the provider's answer for one request.
type RouteResponse struct {
	Path            []domain.GeoPoint
	DistanceMeters  float64
	DurationSeconds float64
	Steps           []domain.RouteStep
}

// DirectionsProvider resolves an ordered waypoint request into a walkable path.
type DirectionsProvider interface {
	Route(ctx context.Context, req RouteRequest) (*RouteResponse, error)
}
