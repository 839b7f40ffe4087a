package http

import (
	"github.com/nats-io/nats.go"

	"github.com/mzabaleta/routefit/internal/adapters/postgres"
	"github.com/mzabaleta/routefit/internal/adapters/valkey"
	"github.com/mzabaleta/routefit/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Shapes    *usecases.ShapeService
	Reduction *usecases.ReductionService
	Resolver  *usecases.ResolverService
	Fitting   *usecases.FittingService
	Placement *usecases.PlacementService
	Narration *usecases.NarrationService
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
}
