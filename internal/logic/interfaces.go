package logic

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tourneynet/ratings-api/internal/models"
)

// RatingReader is the read path into the rating store. The hierarchy
// service never writes through it.
type RatingReader interface {
	ListByPlayer(ctx context.Context, playerID string) ([]*models.PerEventRating, error)
}

// RedisClient defines the cache operations the hierarchy service uses,
// narrowed from *redis.Client for testability.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// HierarchyService serves the three-tier hierarchy. GetHierarchy is
// single-flight per player; Invalidate is idempotent and never
// recomputes synchronously.
type HierarchyService interface {
	GetHierarchy(ctx context.Context, playerID string) (*models.Hierarchy, error)
	CalculateClusterAggregate(ctx context.Context, playerID string, clusterNumber int) (float64, error)
	Invalidate(playerID string)
}

// Notifier is the invalidation channel between a completed rating write
// and the cache. NotifyRatingChanged returns only after the player's
// cached hierarchy can no longer be read stale.
type Notifier interface {
	NotifyRatingChanged(ctx context.Context, playerID string)
}
