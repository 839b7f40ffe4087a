package domain

// TravelMode selects the routing profile requested from the directions provider.
type TravelMode string

const (
	TravelWalking   TravelMode = "walking"
	TravelBicycling TravelMode = "bicycling"
)

// AverageWalkingSpeed is used to estimate durations for straight-line
// fallback segments when the provider cannot route a chunk.
const AverageWalkingSpeed = 1.4 // m/s

// RoutedSegment is the provider's answer for one chunked request. It is
// transient: segments are concatenated into a RoutedShape and discarded.
type RoutedSegment struct {
	Path            []GeoPoint  `json:"path"`
	DistanceMeters  float64     `json:"distance_meters"`
	DurationSeconds float64     `json:"duration_seconds"`
	Steps           []RouteStep `json:"steps,omitempty"`
	// Fallback marks a segment synthesized as a straight line because the
	// provider failed for this chunk.
	Fallback bool `json:"fallback,omitempty"`
}

// RoutedShape is the stitched result of resolving an ordered point sequence.
type RoutedShape struct {
	FullPath             []GeoPoint  `json:"full_path"`
	TotalDistanceMeters  float64     `json:"total_distance_meters"`
	TotalDurationSeconds float64     `json:"total_duration_seconds"`
	Steps                []RouteStep `json:"steps,omitempty"`
	// FallbackSegments counts chunks that degraded to straight lines.
	FallbackSegments int `json:"fallback_segments,omitempty"`
}

// Empty reports whether the shape carries no routed path.
func (r *RoutedShape) Empty() bool {
	return r == nil || len(r.FullPath) == 0
}

// RouteStep is a raw provider step, possibly HTML-formatted, before merging.
type RouteStep struct {
	Instruction     string    `json:"instruction"`
	DistanceMeters  float64   `json:"distance_meters"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartPoint      *GeoPoint `json:"start_point,omitempty"`
	EndPoint        *GeoPoint `json:"end_point,omitempty"`
}

// NarrationStep is a merged, narration-ready step. Built once per directions
// session and never mutated afterwards; the session cursor moves over them.
type NarrationStep struct {
	InstructionText string    `json:"instruction_text"`
	DistanceMeters  float64   `json:"distance_meters"`
	StartPoint      *GeoPoint `json:"start_point,omitempty"`
	EndPoint        *GeoPoint `json:"end_point,omitempty"`
}

// FitResult is the outcome of a distance-fitting search.
type FitResult struct {
	ScaleFactor            float64    `json:"scale_factor"`
	ScaledPoints           []GeoPoint `json:"scaled_points"`
	AchievedDistanceMeters float64    `json:"achieved_distance_meters"`
	// Converged is true when the achieved distance is within tolerance of the target.
	Converged bool `json:"converged"`
}

// NarrationEvent is emitted whenever the session narrates something.
type NarrationEvent struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"` // "say" | "speak" | "cancel"
	Text      string `json:"text,omitempty"`
	StepIndex int    `json:"step_index"`
	Arrival   bool   `json:"arrival,omitempty"`
}
