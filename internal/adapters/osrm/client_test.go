package osrm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
)

func encode(points [][]float64) string {
	return string(polyline.EncodeCoords(points))
}

func okBody() string {
	geom := encode([][]float64{{43.263, -2.935}, {43.264, -2.934}, {43.265, -2.933}})
	stepGeom := encode([][]float64{{43.263, -2.935}, {43.264, -2.934}})
	return `{
		"code": "Ok",
		"routes": [{
			"geometry": "` + geom + `",
			"distance": 250.5,
			"duration": 180.2,
			"legs": [{
				"distance": 250.5,
				"duration": 180.2,
				"steps": [
					{"geometry": "` + stepGeom + `", "name": "Gran Via", "distance": 120, "duration": 90,
					 "maneuver": {"type": "depart", "modifier": ""}},
					{"geometry": "` + stepGeom + `", "name": "", "distance": 130.5, "duration": 90.2,
					 "maneuver": {"type": "arrive", "modifier": ""}}
				]
			}]
		}]
	}`
}

func testRequest() ports.RouteRequest {
	return ports.RouteRequest{
		Origin:      domain.GeoPoint{Lat: 43.263, Lon: -2.935},
		Destination: domain.GeoPoint{Lat: 43.265, Lon: -2.933},
		Waypoints: []ports.Waypoint{
			{Point: domain.GeoPoint{Lat: 43.264, Lon: -2.934}},
		},
		TravelMode: domain.TravelWalking,
	}
}

func TestRoute_ParsesResponse(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.Write([]byte(okBody()))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	resp, err := client.Route(context.Background(), testRequest())
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(gotPath, "/route/v1/walking/") {
		t.Errorf("unexpected request path %q", gotPath)
	}
	// lon,lat order, origin;waypoint;destination.
	if !strings.Contains(gotPath, "-2.935000,43.263000;-2.934000,43.264000;-2.933000,43.265000") {
		t.Errorf("coordinates malformed or reordered: %q", gotPath)
	}
	if !strings.Contains(gotPath, "steps=true") {
		t.Error("steps must be requested")
	}

	if len(resp.Path) != 3 {
		t.Fatalf("expected 3 decoded points, got %d", len(resp.Path))
	}
	if resp.Path[0].Lat < 43.2629 || resp.Path[0].Lat > 43.2631 {
		t.Errorf("decoded path start off: %+v", resp.Path[0])
	}
	if resp.DistanceMeters != 250.5 || resp.DurationSeconds != 180.2 {
		t.Errorf("totals mismatch: %f / %f", resp.DistanceMeters, resp.DurationSeconds)
	}

	if len(resp.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(resp.Steps))
	}
	if resp.Steps[0].Instruction != "Head straight onto Gran Via" {
		t.Errorf("unexpected instruction %q", resp.Steps[0].Instruction)
	}
	if resp.Steps[0].EndPoint == nil {
		t.Error("step end point missing")
	}
	if resp.Steps[1].Instruction != "You have arrived at your destination" {
		t.Errorf("unexpected arrival instruction %q", resp.Steps[1].Instruction)
	}
}

func TestRoute_CyclingProfile(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(okBody()))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	req := testRequest()
	req.TravelMode = domain.TravelBicycling
	if _, err := client.Route(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(gotPath, "/route/v1/cycling/") {
		t.Errorf("expected cycling profile, got %q", gotPath)
	}
}

func TestRoute_NoRouteFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "message": "Impossible route between points"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	_, err := client.Route(context.Background(), testRequest())
	if !errors.Is(err, ports.ErrNoRoute) {
		t.Errorf("expected ErrNoRoute, got %v", err)
	}
}

func TestRoute_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, nil)
	_, err := client.Route(context.Background(), testRequest())
	if !errors.Is(err, ports.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRoute_ConnectionRefusedIsUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, nil)
	_, err := client.Route(context.Background(), testRequest())
	if !errors.Is(err, ports.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestStepInstruction(t *testing.T) {
	cases := []struct {
		typ, modifier, name string
		want                string
	}{
		{"turn", "left", "Calle Mayor", "Turn left onto Calle Mayor"},
		{"turn", "right", "", "Turn right"},
		{"depart", "", "Alameda", "Head straight onto Alameda"},
		{"continue", "slight left", "", "Continue slight left"},
		{"roundabout", "", "", "Enter the roundabout"},
		{"arrive", "", "Plaza", "You have arrived at your destination"},
	}
	for _, c := range cases {
		if got := stepInstruction(c.typ, c.modifier, c.name); got != c.want {
			t.Errorf("stepInstruction(%q,%q,%q) = %q, want %q", c.typ, c.modifier, c.name, got, c.want)
		}
	}
}
