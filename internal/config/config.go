package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tourneynet/ratings-api/internal/models"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Storage backends
	StoreBackend  string // "memory" or "postgres"
	PostgresURL   string
	RedisURL      string
	ClickHouseURL string // empty disables rating history

	// Rating record defaults
	StartingRating float64
	RatingFloor    float64

	// Aggregation policies. ClusterAggregation applies per cluster over
	// clamped scoring + bonuses: "mean" averages every qualifying
	// event, "best_n" averages the ClusterBestN highest (ties by event
	// ID). OverallAggregation combines present cluster aggregates:
	// "mean" or "weighted" (by cluster weight). Clusters with no
	// qualifying events are always excluded, never counted as zero.
	ClusterAggregation string
	ClusterBestN       int
	OverallAggregation string

	// Cache
	CacheTTL time.Duration

	// Row locking
	LockTimeout time.Duration
	LockRetries int

	// Ingest worker pool
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration

	// Tournament layout
	Clusters []models.Cluster
	Events   []models.Event
}

// Load loads configuration from environment variables.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		StoreBackend:  getEnv("STORE_BACKEND", "memory"),
		ClickHouseURL: getEnv("CLICKHOUSE_URL", ""),

		StartingRating: getEnvFloat("STARTING_RATING", 1000),
		RatingFloor:    getEnvFloat("RATING_FLOOR", 100),

		ClusterAggregation: getEnv("CLUSTER_AGGREGATION", "mean"),
		ClusterBestN:       getEnvInt("CLUSTER_BEST_N", 3),
		OverallAggregation: getEnv("OVERALL_AGGREGATION", "mean"),

		CacheTTL:    getEnvDuration("CACHE_TTL", 15*time.Minute),
		LockTimeout: getEnvDuration("LOCK_TIMEOUT", 250*time.Millisecond),
		LockRetries: getEnvInt("LOCK_RETRIES", 3),

		WorkerCount:   getEnvInt("WORKER_COUNT", 4),
		QueueSize:     getEnvInt("QUEUE_SIZE", 1024),
		BatchSize:     getEnvInt("BATCH_SIZE", 200),
		FlushInterval: getEnvDuration("FLUSH_INTERVAL", 1*time.Second),
	}

	// CORS
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	switch cfg.ClusterAggregation {
	case "mean", "best_n":
	default:
		return nil, fmt.Errorf("invalid CLUSTER_AGGREGATION %q (want mean or best_n)", cfg.ClusterAggregation)
	}
	switch cfg.OverallAggregation {
	case "mean", "weighted":
	default:
		return nil, fmt.Errorf("invalid OVERALL_AGGREGATION %q (want mean or weighted)", cfg.OverallAggregation)
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.RedisURL, err = getEnvRequired("REDIS_URL"); err != nil {
		return nil, err
	}
	if cfg.StoreBackend == "postgres" {
		if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
			return nil, err
		}
	} else if cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q (want memory or postgres)", cfg.StoreBackend)
	}

	if err := cfg.loadLayout(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadLayout reads the tournament cluster/event layout from
// CLUSTERS_JSON / EVENTS_JSON, falling back to a minimal dev layout.
func (c *Config) loadLayout() error {
	if raw := os.Getenv("CLUSTERS_JSON"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Clusters); err != nil {
			return fmt.Errorf("invalid CLUSTERS_JSON: %w", err)
		}
	}
	if raw := os.Getenv("EVENTS_JSON"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Events); err != nil {
			return fmt.Errorf("invalid EVENTS_JSON: %w", err)
		}
	}
	if len(c.Clusters) == 0 {
		c.Clusters = []models.Cluster{
			{Number: 1, Name: "Precision", Weight: 1},
			{Number: 2, Name: "Endurance", Weight: 1},
		}
		c.Events = []models.Event{
			{ID: "evt-a", Name: "Event A", ClusterNumber: 1, Scoring: models.ScoringHeadToHead},
			{ID: "evt-b", Name: "Event B", ClusterNumber: 1, Scoring: models.ScoringHeadToHead},
			{ID: "evt-c", Name: "Event C", ClusterNumber: 2, Scoring: models.ScoringFreeForAll},
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
