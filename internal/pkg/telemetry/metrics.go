package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Routing pipeline
	MetricProviderLatency = "routing.provider_latency"
	MetricFittingDuration = "fitting.search_duration"
	MetricPositionLatency = "tracking.position_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricRoutesFitted   = "business.routes_fitted"
	MetricSessionsOpened = "business.sessions_opened"
)
