package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

// maxInteriorWaypoints is the provider's per-request waypoint limit. A chunk
// therefore holds at most maxInteriorWaypoints+2 points (origin, interior
// waypoints, destination).
const maxInteriorWaypoints = 20

// routeCacheTTLSeconds caches resolved chunks for one hour. Street networks
// change slowly; stale routes are merely slightly suboptimal, never wrong.
const routeCacheTTLSeconds = 3600

// ResolverService turns an ordered point sequence into a walkable route by
// splitting it into provider-sized chunks, routing them sequentially, and
// stitching the answers back together. Chunks share a joint point: each chunk
// starts where the previous one ended, and the duplicated joint is dropped
// when concatenating.
type ResolverService struct {
	provider ports.DirectionsProvider
	cache    ports.CacheService
}

// NewResolverService creates a new ResolverService. cache may be nil.
func NewResolverService(provider ports.DirectionsProvider, cache ports.CacheService) *ResolverService {
	return &ResolverService{provider: provider, cache: cache}
}

// ResolveRoute routes the given points in order. It never fails outright:
// fewer than 2 points yields an empty shape, chunks the provider cannot route
// degrade to straight geodesic segments, and if the provider is entirely
// unreachable the whole shape degrades the same way. With 2 or more points
// the returned shape always connects the first point to the last.
func (s *ResolverService) ResolveRoute(ctx context.Context, points []domain.GeoPoint, mode domain.TravelMode) (*domain.RoutedShape, error) {
	if len(points) < 2 {
		return &domain.RoutedShape{}, nil
	}
	if mode == "" {
		mode = domain.TravelWalking
	}

	chunks := chunkPoints(points, maxInteriorWaypoints+2)

	shape := &domain.RoutedShape{}
	for i, chunk := range chunks {
		seg := s.resolveChunk(ctx, chunk, mode)

		path := seg.Path
		if i > 0 && len(path) > 0 {
			// The chunk begins at the previous chunk's joint point; drop
			// the duplicate so the stitched path has no repeated vertex.
			path = path[1:]
		}
		shape.FullPath = append(shape.FullPath, path...)
		shape.TotalDistanceMeters += seg.DistanceMeters
		shape.TotalDurationSeconds += seg.DurationSeconds
		shape.Steps = append(shape.Steps, seg.Steps...)
		if seg.Fallback {
			shape.FallbackSegments++
		}
	}

	return shape, nil
}

// resolveChunk routes one chunk, consulting the cache first and falling back
// to a straight-line segment when the provider fails.
func (s *ResolverService) resolveChunk(ctx context.Context, chunk []domain.GeoPoint, mode domain.TravelMode) *domain.RoutedSegment {
	cacheKey := chunkCacheKey(chunk, mode)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var seg domain.RoutedSegment
			if err := json.Unmarshal(data, &seg); err == nil {
				return &seg
			}
		}
	}

	req := ports.RouteRequest{
		Origin:      chunk[0],
		Destination: chunk[len(chunk)-1],
		TravelMode:  mode,
	}
	for _, p := range chunk[1 : len(chunk)-1] {
		req.Waypoints = append(req.Waypoints, ports.Waypoint{Point: p, Stopover: false})
	}

	resp, err := s.provider.Route(ctx, req)
	if err != nil || resp == nil || len(resp.Path) == 0 {
		return straightSegment(chunk)
	}

	seg := &domain.RoutedSegment{
		Path:            resp.Path,
		DistanceMeters:  resp.DistanceMeters,
		DurationSeconds: resp.DurationSeconds,
		Steps:           resp.Steps,
	}

	if s.cache != nil {
		if data, err := json.Marshal(seg); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, routeCacheTTLSeconds)
		}
	}

	return seg
}

// straightSegment synthesizes a fallback segment that simply connects the
// chunk's points as drawn, with duration estimated at average walking speed.
func straightSegment(chunk []domain.GeoPoint) *domain.RoutedSegment {
	dist := geospatial.PathLength(chunk)
	return &domain.RoutedSegment{
		Path:            clonePoints(chunk),
		DistanceMeters:  dist,
		DurationSeconds: dist / domain.AverageWalkingSpeed,
		Fallback:        true,
	}
}

// chunkPoints splits points into slices of at most size points where each
// slice after the first begins with the last point of the previous slice.
func chunkPoints(points []domain.GeoPoint, size int) [][]domain.GeoPoint {
	if size < 2 {
		size = 2
	}
	if len(points) <= size {
		return [][]domain.GeoPoint{points}
	}

	var chunks [][]domain.GeoPoint
	for start := 0; start < len(points)-1; start += size - 1 {
		end := start + size
		if end > len(points) {
			end = len(points)
		}
		chunks = append(chunks, points[start:end])
		if end == len(points) {
			break
		}
	}
	return chunks
}

func chunkCacheKey(chunk []domain.GeoPoint, mode domain.TravelMode) string {
	h := sha256.New()
	for _, p := range chunk {
		fmt.Fprintf(h, "%.6f,%.6f;", p.Lat, p.Lon)
	}
	return fmt.Sprintf("route:chunk:%s:%x", mode, h.Sum(nil)[:16])
}
