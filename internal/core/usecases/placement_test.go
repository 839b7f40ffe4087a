package usecases

import (
	"math"
	"testing"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/pkg/geospatial"
)

func TestCorrectPlacement_NearbyShapeUntouched(t *testing.T) {
	svc := NewPlacementService(DefaultPlacementConfig())
	anchor := domain.GeoPoint{Lat: 43.263, Lon: -2.935}

	// ~100 m square around the anchor: routable and big enough.
	points := []domain.GeoPoint{
		{Lat: 43.2625, Lon: -2.9355},
		{Lat: 43.2635, Lon: -2.9355},
		{Lat: 43.2635, Lon: -2.9345},
		{Lat: 43.2625, Lon: -2.9345},
	}
	out := svc.CorrectPlacement(points, anchor)

	for i := range points {
		if out[i] != points[i] {
			t.Fatalf("point %d moved without cause: %+v -> %+v", i, points[i], out[i])
		}
	}
}

func TestCorrectPlacement_PullsDistantShapeTowardAnchor(t *testing.T) {
	svc := NewPlacementService(DefaultPlacementConfig())
	anchor := domain.GeoPoint{Lat: 43.263, Lon: -2.935}

	// Shape ~5.5 km north of the anchor, well past the 1 km flag.
	points := []domain.GeoPoint{
		{Lat: 43.3125, Lon: -2.9355},
		{Lat: 43.3135, Lon: -2.9355},
		{Lat: 43.3135, Lon: -2.9345},
		{Lat: 43.3125, Lon: -2.9345},
	}
	before := geospatial.Distance(geospatial.Centroid(points), anchor)
	out := svc.CorrectPlacement(points, anchor)
	after := geospatial.Distance(geospatial.Centroid(out), anchor)

	// A 30% pull leaves 70% of the centroid-to-anchor distance.
	if math.Abs(after-0.7*before) > 5 {
		t.Errorf("expected centroid distance ~%f after pull, got %f", 0.7*before, after)
	}

	// Translation must not distort the shape.
	origExtent := geospatial.MaxPairwiseDistance(points)
	newExtent := geospatial.MaxPairwiseDistance(out)
	if math.Abs(origExtent-newExtent) > 0.5 {
		t.Errorf("pull changed shape extent: %f -> %f", origExtent, newExtent)
	}
}

func TestCorrectPlacement_ScalesUpTinyShape(t *testing.T) {
	svc := NewPlacementService(DefaultPlacementConfig())
	anchor := domain.GeoPoint{Lat: 43.263, Lon: -2.935}

	// ~10 m square at the anchor.
	points := []domain.GeoPoint{
		{Lat: 43.26295, Lon: -2.93505},
		{Lat: 43.26305, Lon: -2.93505},
		{Lat: 43.26305, Lon: -2.93495},
		{Lat: 43.26295, Lon: -2.93495},
	}
	out := svc.CorrectPlacement(points, anchor)

	extent := geospatial.MaxPairwiseDistance(out)
	if extent < 49.9 {
		t.Errorf("expected shape scaled up to >= 50 m extent, got %f", extent)
	}

	// Scale-up happens about the centroid, so the centroid stays put.
	c1 := geospatial.Centroid(points)
	c2 := geospatial.Centroid(out)
	if geospatial.Distance(c1, c2) > 0.1 {
		t.Error("scale-up moved the centroid")
	}
}

func TestCorrectPlacement_Idempotent(t *testing.T) {
	svc := NewPlacementService(DefaultPlacementConfig())
	anchor := domain.GeoPoint{Lat: 43.263, Lon: -2.935}

	// Tiny shape ~1.2 km away: both corrections fire on the first pass.
	points := []domain.GeoPoint{
		{Lat: 43.27395, Lon: -2.93505},
		{Lat: 43.27405, Lon: -2.93505},
		{Lat: 43.27405, Lon: -2.93495},
	}
	once := svc.CorrectPlacement(points, anchor)
	twice := svc.CorrectPlacement(once, anchor)

	for i := range once {
		if math.Abs(once[i].Lat-twice[i].Lat) > 1e-9 || math.Abs(once[i].Lon-twice[i].Lon) > 1e-9 {
			t.Fatalf("second pass changed point %d: %+v -> %+v", i, once[i], twice[i])
		}
	}
}

func TestCorrectPlacement_EmptyInput(t *testing.T) {
	svc := NewPlacementService(DefaultPlacementConfig())
	if out := svc.CorrectPlacement(nil, domain.GeoPoint{}); out != nil {
		t.Errorf("expected nil for empty input, got %+v", out)
	}
}

func TestCorrectPlacement_DoesNotMutateInput(t *testing.T) {
	svc := NewPlacementService(DefaultPlacementConfig())
	anchor := domain.GeoPoint{Lat: 43.263, Lon: -2.935}

	points := []domain.GeoPoint{
		{Lat: 43.3125, Lon: -2.9355},
		{Lat: 43.3135, Lon: -2.9345},
	}
	snapshot := clonePoints(points)
	_ = svc.CorrectPlacement(points, anchor)

	for i := range points {
		if points[i] != snapshot[i] {
			t.Fatal("input slice was mutated")
		}
	}
}
