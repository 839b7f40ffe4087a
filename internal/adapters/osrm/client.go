// Package osrm implements the DirectionsProvider port against an OSRM
// routing server (the public demo instance by default).
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/mzabaleta/routefit/internal/core/domain"
	"github.com/mzabaleta/routefit/internal/core/ports"
	"github.com/mzabaleta/routefit/internal/pkg/metrics"
)

// DefaultBaseURL is the public OSRM demo server. Fine for development;
// production deployments should point at their own instance.
const DefaultBaseURL = "https://router.project-osrm.org"

// Client talks to an OSRM HTTP server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new OSRM client. baseURL may be empty for the default.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Legs     []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Steps    []struct {
				Geometry string  `json:"geometry"`
				Name     string  `json:"name"`
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
				Maneuver struct {
					Type     string `json:"type"`
					Modifier string `json:"modifier"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Route issues one OSRM route request. Waypoints are sent as interior
// coordinates; OSRM never reorders them, which matches the contract that the
// drawn point order is the route.
func (c *Client) Route(ctx context.Context, req ports.RouteRequest) (*ports.RouteResponse, error) {
	coords := buildCoords(req)
	profile := profileFor(req.TravelMode)
	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=polyline&steps=true",
		c.baseURL, profile, coords)

	metrics.ProviderRequests.WithLabelValues(profile).Inc()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("osrm request failed", "error", err)
		metrics.ProviderErrors.WithLabelValues(profile, "unavailable").Inc()
		return nil, fmt.Errorf("%w: %v", ports.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		metrics.ProviderErrors.WithLabelValues(profile, "unavailable").Inc()
		return nil, fmt.Errorf("%w: status %d", ports.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("osrm rejected request", "status", resp.StatusCode, "body", string(body))
		metrics.ProviderErrors.WithLabelValues(profile, "no_route").Inc()
		return nil, fmt.Errorf("%w: status %d", ports.ErrNoRoute, resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		metrics.ProviderErrors.WithLabelValues(profile, "no_route").Inc()
		return nil, fmt.Errorf("%w: %s %s", ports.ErrNoRoute, parsed.Code, parsed.Message)
	}

	route := parsed.Routes[0]
	path, err := decodePolyline(route.Geometry)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}

	out := &ports.RouteResponse{
		Path:            path,
		DistanceMeters:  route.Distance,
		DurationSeconds: route.Duration,
	}

	for _, leg := range route.Legs {
		for _, step := range leg.Steps {
			rs := domain.RouteStep{
				Instruction:     stepInstruction(step.Maneuver.Type, step.Maneuver.Modifier, step.Name),
				DistanceMeters:  step.Distance,
				DurationSeconds: step.Duration,
			}
			if stepPath, err := decodePolyline(step.Geometry); err == nil && len(stepPath) > 0 {
				start := stepPath[0]
				end := stepPath[len(stepPath)-1]
				rs.StartPoint = &start
				rs.EndPoint = &end
			}
			out.Steps = append(out.Steps, rs)
		}
	}

	return out, nil
}

// buildCoords renders lon,lat pairs separated by semicolons, origin first,
// interior waypoints in order, destination last.
func buildCoords(req ports.RouteRequest) string {
	var b strings.Builder
	writePoint := func(p domain.GeoPoint) {
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%f,%f", p.Lon, p.Lat)
	}
	writePoint(req.Origin)
	for _, wp := range req.Waypoints {
		writePoint(wp.Point)
	}
	writePoint(req.Destination)
	return b.String()
}

func profileFor(mode domain.TravelMode) string {
	if mode == domain.TravelBicycling {
		return "cycling"
	}
	return "walking"
}

func decodePolyline(encoded string) ([]domain.GeoPoint, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	points := make([]domain.GeoPoint, len(coords))
	for i, c := range coords {
		points[i] = domain.GeoPoint{Lat: c[0], Lon: c[1]}
	}
	return points, nil
}

// stepInstruction synthesizes readable text from an OSRM maneuver. OSRM does
// not return prose, only type/modifier/road-name triples.
func stepInstruction(maneuverType, modifier, name string) string {
	var text string
	switch maneuverType {
	case "depart":
		text = "Head " + orStraight(modifier)
	case "arrive":
		return "You have arrived at your destination"
	case "turn", "end of road", "fork":
		text = "Turn " + orStraight(modifier)
	case "continue", "new name":
		text = "Continue " + orStraight(modifier)
	case "roundabout", "rotary":
		text = "Enter the roundabout"
	default:
		text = "Continue " + orStraight(modifier)
	}
	if name != "" {
		text += " onto " + name
	}
	return text
}

func orStraight(modifier string) string {
	if modifier == "" {
		return "straight"
	}
	return modifier
}
