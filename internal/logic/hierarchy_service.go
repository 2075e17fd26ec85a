package logic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tourneynet/ratings-api/internal/models"
)

// Prometheus metrics
var (
	hierarchyCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_hierarchy_cache_hits_total",
		Help: "Hierarchy reads served from cache",
	})

	hierarchyCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_hierarchy_cache_misses_total",
		Help: "Hierarchy reads that triggered a computation",
	})

	hierarchyCacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_hierarchy_cache_errors_total",
		Help: "Cache operations that failed and were degraded around",
	})

	hierarchyFlightsShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_hierarchy_flights_shared_total",
		Help: "Hierarchy reads that joined another caller's in-flight computation",
	})

	hierarchyComputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratings_hierarchy_compute_duration_seconds",
		Help:    "Duration of full hierarchy computations",
		Buckets: prometheus.DefBuckets,
	})
)

// CachedHierarchyService caches computed hierarchies in Redis, one
// entry per player. Coherence comes from two mechanisms working
// together:
//
//   - Invalidate bumps a per-player generation counter and deletes the
//     cache entry. Cached entries carry the generation they were
//     computed under; an entry from an older generation is a miss even
//     if the delete was lost (Redis hiccup, concurrent writer).
//   - Computations are single-flight keyed by player AND generation, so
//     a reader arriving after an invalidation never shares a flight
//     that started before it. That preserves read-your-writes while
//     still collapsing stampedes.
//
// Redis being down degrades reads to direct computation; it never
// degrades correctness.
type CachedHierarchyService struct {
	store    RatingReader
	cache    RedisClient
	policy   AggregationPolicy
	registry *Registry
	ttl      time.Duration
	logger   *zap.SugaredLogger

	flights singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedHierarchyService(store RatingReader, cache RedisClient, policy AggregationPolicy, registry *Registry, ttl time.Duration, logger *zap.Logger) *CachedHierarchyService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedHierarchyService{
		store:       store,
		cache:       cache,
		policy:      policy,
		registry:    registry,
		ttl:         ttl,
		logger:      logger.Sugar(),
		generations: make(map[string]uint64),
	}
}

func cacheKey(playerID string) string {
	return "ratings:hierarchy:" + playerID
}

func (s *CachedHierarchyService) generation(playerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[playerID]
}

// GetHierarchy returns the cached entry if valid, otherwise computes,
// caches and returns a fresh one. Exactly one computation runs per
// player per invalidation cycle even under concurrent readers.
func (s *CachedHierarchyService) GetHierarchy(ctx context.Context, playerID string) (*models.Hierarchy, error) {
	gen := s.generation(playerID)

	if h, ok := s.lookup(ctx, playerID, gen); ok {
		hierarchyCacheHits.Inc()
		return h, nil
	}
	hierarchyCacheMisses.Inc()

	flightKey := fmt.Sprintf("%s@%d", playerID, gen)
	v, err, shared := s.flights.Do(flightKey, func() (interface{}, error) {
		start := time.Now()
		h, err := s.compute(ctx, playerID, gen)
		hierarchyComputeDuration.Observe(time.Since(start).Seconds())
		return h, err
	})
	if shared {
		hierarchyFlightsShared.Inc()
	}
	if err != nil {
		// Failed computations leave no cache entry behind; the error
		// surfaces and retry is the caller's responsibility.
		return nil, err
	}
	return v.(*models.Hierarchy), nil
}

// CalculateClusterAggregate projects one cluster out of the full
// hierarchy. It is deliberately NOT an independent computation path:
// any divergence between this and GetHierarchy is ruled out by
// construction.
func (s *CachedHierarchyService) CalculateClusterAggregate(ctx context.Context, playerID string, clusterNumber int) (float64, error) {
	h, err := s.GetHierarchy(ctx, playerID)
	if err != nil {
		return 0, err
	}
	agg, ok := h.Clusters[clusterNumber]
	if !ok {
		return 0, fmt.Errorf("player %s, cluster %d: %w", playerID, clusterNumber, ErrClusterNotRated)
	}
	return agg, nil
}

// Invalidate marks the player's cached hierarchy stale. It does not
// recompute, and invalidating an absent or already-stale entry is a
// no-op beyond bumping the generation.
func (s *CachedHierarchyService) Invalidate(playerID string) {
	s.mu.Lock()
	s.generations[playerID]++
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	// Best-effort delete: if it fails, the generation mismatch still
	// keeps the stale entry from being served.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.Del(ctx, cacheKey(playerID)).Err(); err != nil {
		hierarchyCacheErrors.Inc()
		s.logger.Warnw("Cache delete failed, relying on generation check", "player", playerID, "error", err)
	}
}

// lookup fetches a cached entry and checks it against the current
// generation. Any cache failure reads as a miss.
func (s *CachedHierarchyService) lookup(ctx context.Context, playerID string, gen uint64) (*models.Hierarchy, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey(playerID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		hierarchyCacheErrors.Inc()
		s.logger.Warnw("Cache read failed, computing directly", "player", playerID, "error", err)
		return nil, false
	}

	var h models.Hierarchy
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		s.logger.Warnw("Corrupt cache entry, recomputing", "player", playerID, "error", err)
		return nil, false
	}
	if h.Version != gen {
		return nil, false
	}
	return &h, true
}

// compute fetches all per-event ratings and runs the calculator. The
// result is cached only if no invalidation arrived since the read
// began; a raced result is still returned to callers, just not stored.
func (s *CachedHierarchyService) compute(ctx context.Context, playerID string, gen uint64) (*models.Hierarchy, error) {
	ratings, err := s.store.ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("fetch ratings for %s: %w", playerID, err)
	}

	h, err := s.policy.Hierarchy(playerID, ratings, s.registry)
	if err != nil {
		return nil, fmt.Errorf("compute hierarchy for %s: %w", playerID, err)
	}
	h.Version = gen

	if s.cache != nil && s.generation(playerID) == gen {
		payload, err := json.Marshal(h)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey(playerID), payload, s.ttl).Err(); err != nil {
				hierarchyCacheErrors.Inc()
				s.logger.Warnw("Cache write failed", "player", playerID, "error", err)
			}
		}
	}
	return h, nil
}
