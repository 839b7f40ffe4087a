package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

type mockProvider struct {
	routeFn  func(ctx context.Context, req ports.RouteRequest) (*ports.RouteResponse, error)
	requests []ports.RouteRequest
}

func (m *mockProvider) Route(ctx context.Context, req ports.RouteRequest) (*ports.RouteResponse, error) {
	m.requests = append(m.requests, req)
	if m.routeFn != nil {
		return m.routeFn(ctx, req)
	}
	return echoRoute(req), nil
}

// echoRoute answers with the request's own points as the routed path.
func echoRoute(req ports.RouteRequest) *ports.RouteResponse {
	path := []domain.GeoPoint{req.Origin}
	for _, wp := range req.Waypoints {
		path = append(path, wp.Point)
	}
	path = append(path, req.Destination)
	return &ports.RouteResponse{
		Path:           path,
		DistanceMeters: geospatial.PathLength(path),
	}
}

type mockCache struct {
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("miss")
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ int) error {
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func gridPoints(n int) []domain.GeoPoint {
	points := make([]domain.GeoPoint, n)
	for i := range points {
		points[i] = domain.GeoPoint{Lat: 43.26 + float64(i)*0.0005, Lon: -2.93}
	}
	return points
}

func TestResolveRoute_ChunksSequentiallyWithSharedJoints(t *testing.T) {
	provider := &mockProvider{}
	svc := NewResolverService(provider, nil)

	points := gridPoints(50)
	shape, err := svc.ResolveRoute(context.Background(), points, domain.TravelWalking)
	if err != nil {
		t.Fatal(err)
	}

	// 50 points with 22 per chunk and shared joints: 0..21, 21..42, 42..49.
	if len(provider.requests) != 3 {
		t.Fatalf("expected 3 provider requests, got %d", len(provider.requests))
	}

	// Chunks must join: each request starts at the previous destination.
	for i := 1; i < len(provider.requests); i++ {
		if provider.requests[i].Origin != provider.requests[i-1].Destination {
			t.Errorf("chunk %d origin does not match previous destination", i)
		}
	}

	// The stitched path must contain every input point exactly once.
	if len(shape.FullPath) != len(points) {
		t.Fatalf("expected %d stitched points, got %d", len(points), len(shape.FullPath))
	}
	for i, p := range shape.FullPath {
		if p != points[i] {
			t.Fatalf("stitched point %d mismatch: %+v != %+v", i, p, points[i])
		}
	}
}

func TestResolveRoute_WaypointsAreNotStopovers(t *testing.T) {
	provider := &mockProvider{}
	svc := NewResolverService(provider, nil)

	if _, err := svc.ResolveRoute(context.Background(), gridPoints(10), domain.TravelWalking); err != nil {
		t.Fatal(err)
	}

	req := provider.requests[0]
	if len(req.Waypoints) != 8 {
		t.Fatalf("expected 8 interior waypoints, got %d", len(req.Waypoints))
	}
	for _, wp := range req.Waypoints {
		if wp.Stopover {
			t.Error("drawn points must be routed as non-stopover waypoints")
		}
	}
	if req.OptimizeWaypoints {
		t.Error("waypoint order must never be optimized")
	}
}

func TestResolveRoute_ChunkFailureFallsBackToStraightLine(t *testing.T) {
	calls := 0
	provider := &mockProvider{
		routeFn: func(_ context.Context, req ports.RouteRequest) (*ports.RouteResponse, error) {
			calls++
			if calls == 2 {
				return nil, ports.ErrNoRoute
			}
			return echoRoute(req), nil
		},
	}
	svc := NewResolverService(provider, nil)

	points := gridPoints(50)
	shape, err := svc.ResolveRoute(context.Background(), points, domain.TravelWalking)
	if err != nil {
		t.Fatal(err)
	}

	if shape.FallbackSegments != 1 {
		t.Errorf("expected 1 fallback segment, got %d", shape.FallbackSegments)
	}
	// The path must still be continuous through the failed chunk.
	if len(shape.FullPath) != len(points) {
		t.Errorf("expected continuous path of %d points, got %d", len(points), len(shape.FullPath))
	}
	if shape.TotalDurationSeconds <= 0 {
		t.Error("fallback segment should contribute an estimated duration")
	}
}

func TestResolveRoute_ProviderDownDegradesWholeShape(t *testing.T) {
	provider := &mockProvider{
		routeFn: func(_ context.Context, _ ports.RouteRequest) (*ports.RouteResponse, error) {
			return nil, ports.ErrProviderUnavailable
		},
	}
	svc := NewResolverService(provider, nil)

	points := gridPoints(30)
	shape, err := svc.ResolveRoute(context.Background(), points, domain.TravelWalking)
	if err != nil {
		t.Fatal(err)
	}

	if shape.FallbackSegments != 2 {
		t.Errorf("expected every chunk to fall back, got %d fallbacks", shape.FallbackSegments)
	}
	if shape.FullPath[0] != points[0] || shape.FullPath[len(shape.FullPath)-1] != points[len(points)-1] {
		t.Error("degraded shape must still connect first point to last")
	}

	wantDist := geospatial.PathLength(points)
	if diff := shape.TotalDistanceMeters - wantDist; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected straight-line distance %f, got %f", wantDist, shape.TotalDistanceMeters)
	}
	wantDur := wantDist / domain.AverageWalkingSpeed
	if diff := shape.TotalDurationSeconds - wantDur; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected duration %f at walking speed, got %f", wantDur, shape.TotalDurationSeconds)
	}
}

func TestResolveRoute_CachesChunks(t *testing.T) {
	provider := &mockProvider{}
	cache := newMockCache()
	svc := NewResolverService(provider, cache)

	points := gridPoints(10)
	if _, err := svc.ResolveRoute(context.Background(), points, domain.TravelWalking); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ResolveRoute(context.Background(), points, domain.TravelWalking); err != nil {
		t.Fatal(err)
	}

	if len(provider.requests) != 1 {
		t.Errorf("expected second resolve to hit the cache, provider called %d times", len(provider.requests))
	}

	// A different travel mode must not share cache entries.
	if _, err := svc.ResolveRoute(context.Background(), points, domain.TravelBicycling); err != nil {
		t.Fatal(err)
	}
	if len(provider.requests) != 2 {
		t.Errorf("expected cache miss for different mode, provider called %d times", len(provider.requests))
	}
}

func TestResolveRoute_FallbackSegmentsAreNotCached(t *testing.T) {
	fail := true
	provider := &mockProvider{
		routeFn: func(_ context.Context, req ports.RouteRequest) (*ports.RouteResponse, error) {
			if fail {
				return nil, ports.ErrProviderUnavailable
			}
			return echoRoute(req), nil
		},
	}
	cache := newMockCache()
	svc := NewResolverService(provider, cache)

	points := gridPoints(5)
	if _, err := svc.ResolveRoute(context.Background(), points, domain.TravelWalking); err != nil {
		t.Fatal(err)
	}

	// Once the provider recovers, the route must be re-requested, not served
	// from a cached fallback.
	fail = false
	shape, err := svc.ResolveRoute(context.Background(), points, domain.TravelWalking)
	if err != nil {
		t.Fatal(err)
	}
	if shape.FallbackSegments != 0 {
		t.Error("recovered provider should replace fallback segments")
	}
	if len(provider.requests) != 2 {
		t.Errorf("expected provider retry after fallback, got %d calls", len(provider.requests))
	}
}

func TestResolveRoute_TooFewPointsIsEmptyNotError(t *testing.T) {
	provider := &mockProvider{}
	svc := NewResolverService(provider, nil)

	shape, err := svc.ResolveRoute(context.Background(), gridPoints(1), domain.TravelWalking)
	if err != nil {
		t.Fatalf("single-point input should not error: %v", err)
	}
	if !shape.Empty() {
		t.Error("expected empty shape for single-point input")
	}
	if len(provider.requests) != 0 {
		t.Errorf("provider should not be called, got %d requests", len(provider.requests))
	}
}

func TestChunkPoints(t *testing.T) {
	cases := []struct {
		n, size int
		chunks  int
		lastLen int
	}{
		{10, 22, 1, 10},
		{22, 22, 1, 22},
		{23, 22, 2, 2},
		{50, 22, 3, 8},
		{43, 22, 2, 22},
	}
	for _, c := range cases {
		chunks := chunkPoints(gridPoints(c.n), c.size)
		if len(chunks) != c.chunks {
			t.Errorf("n=%d size=%d: expected %d chunks, got %d", c.n, c.size, c.chunks, len(chunks))
			continue
		}
		if got := len(chunks[len(chunks)-1]); got != c.lastLen {
			t.Errorf("n=%d size=%d: expected last chunk of %d, got %d", c.n, c.size, c.lastLen, got)
		}
		for i := 1; i < len(chunks); i++ {
			prev := chunks[i-1]
			if chunks[i][0] != prev[len(prev)-1] {
				t.Errorf("n=%d: chunk %d does not start at previous chunk's end", c.n, i)
			}
		}
	}
}
