package ports

import (
	"context"

	"github.com/mzabaleta/routefit/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishNarration(ctx context.Context, event *domain.NarrationEvent) error
	PublishPosition(ctx context.Context, fix *domain.PositionFix) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePositions(ctx context.Context, handler func(ctx context.Context, fix *domain.PositionFix) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// Narrator delivers spoken turn instructions. Implementations that cannot
// speak (no backend configured) must swallow calls silently; narration is
// never allowed to fail a session.
type Narrator interface {
	Say(ctx context.Context, sessionID, text string) error
	Cancel(ctx context.Context, sessionID string) error
}
