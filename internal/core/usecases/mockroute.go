package usecases

import (
	"fmt"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

// GenerateMockRoute builds a fully local route when the provider yields
// nothing: straight segments between the given waypoints with synthesized
// compass instructions. Consecutive same-direction segments collapse later
// through the narration step merge, so instructions carry only the heading.
func GenerateMockRoute(points []domain.GeoPoint) *domain.RoutedShape {
	if len(points) < 2 {
		return &domain.RoutedShape{}
	}

	shape := &domain.RoutedShape{
		FullPath:         clonePoints(points),
		FallbackSegments: len(points) - 1,
	}

	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		dist := geospatial.Distance(a, b)
		heading := geospatial.CompassDirection(geospatial.Bearing(a, b))

		start, end := a, b
		shape.Steps = append(shape.Steps, domain.RouteStep{
			Instruction:     fmt.Sprintf("Head %s", heading),
			DistanceMeters:  dist,
			DurationSeconds: dist / domain.AverageWalkingSpeed,
			StartPoint:      &start,
			EndPoint:        &end,
		})
		shape.TotalDistanceMeters += dist
		shape.TotalDurationSeconds += dist / domain.AverageWalkingSpeed
	}

	return shape
}
