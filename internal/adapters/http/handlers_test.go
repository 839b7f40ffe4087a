package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/mzabaleta/routefit/internal/adapters/http"
	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
	"github.com/mzabaleta/routefit/internal/core/usecases"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

// ---- Mock ports ----

type mockShapeRepo struct {
	upsertFn  func(ctx context.Context, shape *domain.Shape) error
	getByIDFn func(ctx context.Context, id string) (*domain.Shape, error)
	listFn    func(ctx context.Context, limit, offset int) ([]domain.Shape, error)
	deleteFn  func(ctx context.Context, id string) error
}

func (m *mockShapeRepo) Upsert(ctx context.Context, shape *domain.Shape) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, shape)
	}
	return nil
}
func (m *mockShapeRepo) GetByID(ctx context.Context, id string) (*domain.Shape, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("shape not found")
}
func (m *mockShapeRepo) List(ctx context.Context, limit, offset int) ([]domain.Shape, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}
func (m *mockShapeRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("cache miss")
}
func (m *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type mockDirectionsProvider struct {
	routeFn func(ctx context.Context, req ports.RouteRequest) (*ports.RouteResponse, error)
	calls   int
}

func (m *mockDirectionsProvider) Route(ctx context.Context, req ports.RouteRequest) (*ports.RouteResponse, error) {
	m.calls++
	if m.routeFn != nil {
		return m.routeFn(ctx, req)
	}
	// Echo: a straight route through the requested points.
	path := []domain.GeoPoint{req.Origin}
	for _, w := range req.Waypoints {
		path = append(path, w.Point)
	}
	path = append(path, req.Destination)
	dist := geospatial.PathLength(path)
	start, end := path[0], path[len(path)-1]
	return &ports.RouteResponse{
		Path:            path,
		DistanceMeters:  dist,
		DurationSeconds: dist / domain.AverageWalkingSpeed,
		Steps: []domain.RouteStep{
			{Instruction: "Head north", DistanceMeters: dist, StartPoint: &start, EndPoint: &end},
		},
	}, nil
}

// pathResolver reports the input's geodesic length, so fitting converges on
// any reachable target.
type pathResolver struct{}

func (r *pathResolver) ResolveRoute(ctx context.Context, points []domain.GeoPoint, mode domain.TravelMode) (*domain.RoutedShape, error) {
	dist := geospatial.PathLength(points)
	start, end := points[0], points[len(points)-1]
	return &domain.RoutedShape{
		FullPath:             points,
		TotalDistanceMeters:  dist,
		TotalDurationSeconds: dist / domain.AverageWalkingSpeed,
		Steps: []domain.RouteStep{
			{Instruction: "Head east", DistanceMeters: dist, StartPoint: &start, EndPoint: &end},
		},
	}, nil
}

type mockNarrator struct{}

func (m *mockNarrator) Say(ctx context.Context, sessionID, text string) error { return nil }
func (m *mockNarrator) Cancel(ctx context.Context, sessionID string) error    { return nil }

type mockPublisher struct{}

func (m *mockPublisher) PublishNarration(ctx context.Context, event *domain.NarrationEvent) error {
	return nil
}
func (m *mockPublisher) PublishPosition(ctx context.Context, fix *domain.PositionFix) error {
	return nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	resolver := &pathResolver{}
	d := &handler.Dependencies{
		Shapes:    usecases.NewShapeService(&mockShapeRepo{}, newMemCache()),
		Reduction: usecases.NewReductionService(usecases.DefaultReductionConfig()),
		Resolver:  usecases.NewResolverService(&mockDirectionsProvider{}, newMemCache()),
		Fitting:   usecases.NewFittingService(resolver, usecases.DefaultFittingConfig()),
		Placement: usecases.NewPlacementService(usecases.DefaultPlacementConfig()),
		Narration: usecases.NewNarrationService(resolver, &mockNarrator{}, &mockPublisher{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, out.Bytes()
}

// latStep offsets a latitude by roughly the given number of meters.
func latStep(meters float64) float64 { return meters / 111320.0 }

func linePoints(n int, spacingMeters float64) []domain.GeoPoint {
	pts := make([]domain.GeoPoint, n)
	for i := range pts {
		pts[i] = domain.GeoPoint{Lat: 43.263 + latStep(spacingMeters*float64(i)), Lon: -2.935}
	}
	return pts
}

// ---- Pipeline handler tests ----

func TestReducePoints_Dedupe(t *testing.T) {
	app := setupApp(makeDeps())

	// 3 m spacing: interior points collapse, endpoints survive.
	status, body := doJSON(t, app, "POST", "/v1/points/reduce", fiber.Map{
		"points": linePoints(10, 3),
		"mode":   "dedupe",
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Points       []domain.GeoPoint `json:"points"`
		InputCount   int               `json:"input_count"`
		ReducedCount int               `json:"reduced_count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.InputCount != 10 {
		t.Errorf("expected input_count 10, got %d", result.InputCount)
	}
	if result.ReducedCount >= 10 {
		t.Errorf("expected reduction, got %d points", result.ReducedCount)
	}
	if len(result.Points) != result.ReducedCount {
		t.Errorf("reduced_count %d does not match %d points", result.ReducedCount, len(result.Points))
	}
}

func TestReducePoints_UnknownMode(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/points/reduce", fiber.Map{
		"points": linePoints(3, 20),
		"mode":   "simplify",
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestReducePoints_EmptyBody(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/points/reduce", fiber.Map{"points": []domain.GeoPoint{}})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestResolveRoute_Success(t *testing.T) {
	provider := &mockDirectionsProvider{}
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Resolver = usecases.NewResolverService(provider, newMemCache())
	}))

	status, body := doJSON(t, app, "POST", "/v1/routes/resolve", fiber.Map{
		"points":      linePoints(3, 100),
		"travel_mode": "walking",
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var routed domain.RoutedShape
	if err := json.Unmarshal(body, &routed); err != nil {
		t.Fatal(err)
	}
	if len(routed.FullPath) != 3 {
		t.Errorf("expected 3 path points, got %d", len(routed.FullPath))
	}
	if routed.TotalDistanceMeters <= 0 {
		t.Errorf("expected positive distance, got %f", routed.TotalDistanceMeters)
	}
	if provider.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.calls)
	}
}

func TestResolveRoute_TooFewPoints(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/routes/resolve", fiber.Map{
		"points": linePoints(1, 0),
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestResolveRoute_BadTravelMode(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/routes/resolve", fiber.Map{
		"points":      linePoints(2, 100),
		"travel_mode": "driving",
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestFitRoute_Converges(t *testing.T) {
	app := setupApp(makeDeps())

	points := linePoints(3, 500) // ~1 km baseline
	base := geospatial.PathLength(points)

	status, body := doJSON(t, app, "POST", "/v1/routes/fit", fiber.Map{
		"points":        points,
		"target_meters": base * 1.5,
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result domain.FitResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if !result.Converged {
		t.Errorf("expected converged fit, achieved %f of %f", result.AchievedDistanceMeters, base*1.5)
	}
	if result.ScaleFactor <= 1 {
		t.Errorf("expected scale above 1, got %f", result.ScaleFactor)
	}
	if len(result.ScaledPoints) != len(points) {
		t.Errorf("expected %d scaled points, got %d", len(points), len(result.ScaledPoints))
	}
}

func TestFitRoute_RejectsNonPositiveTarget(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/routes/fit", fiber.Map{
		"points":        linePoints(3, 500),
		"target_meters": 0,
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestCorrectPlacement_NearbyUntouched(t *testing.T) {
	app := setupApp(makeDeps())

	points := linePoints(4, 50)
	status, body := doJSON(t, app, "POST", "/v1/points/correct", fiber.Map{
		"points": points,
		"anchor": points[0],
	})
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		Points []domain.GeoPoint `json:"points"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(result.Points))
	}
	for i, p := range result.Points {
		if geospatial.Distance(p, points[i]) > 0.5 {
			t.Errorf("point %d moved unexpectedly", i)
		}
	}
}

// ---- Shape handler tests ----

func TestCreateShape_Success(t *testing.T) {
	var stored *domain.Shape
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Shapes = usecases.NewShapeService(&mockShapeRepo{
			upsertFn: func(ctx context.Context, shape *domain.Shape) error {
				stored = shape
				return nil
			},
		}, newMemCache())
	}))

	status, body := doJSON(t, app, "POST", "/v1/shapes", fiber.Map{
		"kind":   "freehand",
		"points": linePoints(3, 100),
		"color":  "#ff5500",
	})
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	var shape domain.Shape
	if err := json.Unmarshal(body, &shape); err != nil {
		t.Fatal(err)
	}
	if shape.ID == "" {
		t.Error("expected generated shape ID")
	}
	if stored == nil || stored.ID != shape.ID {
		t.Error("shape was not persisted")
	}
}

func TestCreateShape_RejectsUnknownKind(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/shapes", fiber.Map{
		"kind":   "scribble",
		"points": linePoints(3, 100),
	})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestListShapes_Pagination(t *testing.T) {
	shapes := make([]domain.Shape, 2)
	for i := range shapes {
		shapes[i] = domain.Shape{ID: fmt.Sprintf("s%d", i), Kind: domain.ShapeFreehand}
	}
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Shapes = usecases.NewShapeService(&mockShapeRepo{
			listFn: func(ctx context.Context, limit, offset int) ([]domain.Shape, error) {
				return shapes, nil
			},
		}, newMemCache())
	}))

	status, body := doJSON(t, app, "GET", "/v1/shapes?offset=0&limit=2", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	var result struct {
		Data       []domain.Shape `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Limit  int `json:"limit"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 shapes, got %d", len(result.Data))
	}
	if result.Pagination.Limit != 2 {
		t.Errorf("expected limit 2, got %d", result.Pagination.Limit)
	}
}

func TestGetShape_NotFound(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "GET", "/v1/shapes/nope", nil)
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestGetShape_Success(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Shapes = usecases.NewShapeService(&mockShapeRepo{
			getByIDFn: func(ctx context.Context, id string) (*domain.Shape, error) {
				return &domain.Shape{ID: id, Kind: domain.ShapeCircle, Points: linePoints(3, 100)}, nil
			},
		}, newMemCache())
	}))

	status, body := doJSON(t, app, "GET", "/v1/shapes/s1", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var shape domain.Shape
	if err := json.Unmarshal(body, &shape); err != nil {
		t.Fatal(err)
	}
	if shape.ID != "s1" || shape.Kind != domain.ShapeCircle {
		t.Errorf("unexpected shape: %+v", shape)
	}
}

// ---- Directions handler tests ----

func TestDirectionsLifecycle(t *testing.T) {
	app := setupApp(makeDeps())

	// No session yet.
	status, _ := doJSON(t, app, "GET", "/v1/directions", nil)
	if status != 404 {
		t.Fatalf("expected 404 before open, got %d", status)
	}

	status, body := doJSON(t, app, "POST", "/v1/directions/open", fiber.Map{
		"points": linePoints(3, 200),
	})
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	var view usecases.SessionView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.State != usecases.SessionActive {
		t.Errorf("expected active session, got %s", view.State)
	}
	if len(view.Steps) == 0 {
		t.Fatal("expected narration steps")
	}

	status, _ = doJSON(t, app, "GET", "/v1/directions", nil)
	if status != 200 {
		t.Fatalf("expected 200 after open, got %d", status)
	}

	status, _ = doJSON(t, app, "POST", "/v1/directions/close", nil)
	if status != 204 {
		t.Fatalf("expected 204 on close, got %d", status)
	}

	status, _ = doJSON(t, app, "GET", "/v1/directions", nil)
	if status != 404 {
		t.Fatalf("expected 404 after close, got %d", status)
	}
}

func TestOpenDirections_RequiresInput(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/directions/open", fiber.Map{})
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestOpenDirections_FromStoredShape(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Shapes = usecases.NewShapeService(&mockShapeRepo{
			getByIDFn: func(ctx context.Context, id string) (*domain.Shape, error) {
				return &domain.Shape{ID: id, Kind: domain.ShapeFreehand, Points: linePoints(4, 250)}, nil
			},
		}, newMemCache())
	}))

	status, body := doJSON(t, app, "POST", "/v1/directions/open", fiber.Map{
		"shape_id": "s1",
	})
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}
}

func TestCloseDirections_WithoutSession(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/directions/close", nil)
	if status != 409 {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestFeedPosition_Accepted(t *testing.T) {
	app := setupApp(makeDeps())

	status, _ := doJSON(t, app, "POST", "/v1/directions/position", fiber.Map{
		"lat": 43.263, "lon": -2.935,
	})
	if status != 202 {
		t.Fatalf("expected 202, got %d", status)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps())

	status, body := doJSON(t, app, "GET", "/v1/health", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result["status"] != "healthy" {
		t.Errorf("unexpected health payload: %v", result)
	}
}
