package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"
	"github.com/mzabaleta/routefit/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")

	// Drawing pipeline
	v1.Post("/points/reduce", timeout.NewWithContext(ReducePointsHandler(deps), 15*time.Second))
	v1.Post("/points/correct", timeout.NewWithContext(CorrectPlacementHandler(deps), 15*time.Second))
	v1.Post("/routes/resolve", timeout.NewWithContext(ResolveRouteHandler(deps), 15*time.Second))
	v1.Post("/routes/fit", timeout.NewWithContext(FitRouteHandler(deps), 60*time.Second))

	// Stored shapes
	v1.Post("/shapes", timeout.NewWithContext(CreateShapeHandler(deps), 15*time.Second))
	v1.Get("/shapes", timeout.NewWithContext(ListShapesHandler(deps), 15*time.Second))
	v1.Get("/shapes/:id", timeout.NewWithContext(GetShapeHandler(deps), 15*time.Second))
	v1.Delete("/shapes/:id", timeout.NewWithContext(DeleteShapeHandler(deps), 15*time.Second))

	// Turn-by-turn directions session
	v1.Post("/directions/open", timeout.NewWithContext(OpenDirectionsHandler(deps), 30*time.Second))
	v1.Get("/directions", timeout.NewWithContext(GetSessionHandler(deps), 15*time.Second))
	v1.Post("/directions/advance", timeout.NewWithContext(AdvanceStepHandler(deps), 15*time.Second))
	v1.Post("/directions/retreat", timeout.NewWithContext(RetreatStepHandler(deps), 15*time.Second))
	v1.Post("/directions/voice", timeout.NewWithContext(SetVoiceHandler(deps), 15*time.Second))
	v1.Post("/directions/position", timeout.NewWithContext(FeedPositionHandler(deps), 15*time.Second))
	v1.Post("/directions/close", timeout.NewWithContext(CloseDirectionsHandler(deps), 15*time.Second))

	v1.Get("/stats", timeout.NewWithContext(StatsHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket position tracking
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/track", websocket.New(TrackHandler(deps)))
}
