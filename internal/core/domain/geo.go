package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoLineString represents an ordered sequence of geographic coordinates.
type GeoLineString struct {
	Coordinates []GeoPoint `json:"coordinates"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// PositionFix is a single live GPS reading fed into an open directions session.
type PositionFix struct {
	SessionID string   `json:"session_id,omitempty"`
	Location  GeoPoint `json:"location"`
	// AccuracyMeters is the reported horizontal accuracy, 0 if unknown.
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`
}
