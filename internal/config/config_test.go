package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.StartingRating != 1000 {
		t.Errorf("StartingRating = %v, want 1000", cfg.StartingRating)
	}
	if cfg.RatingFloor != 100 {
		t.Errorf("RatingFloor = %v, want 100", cfg.RatingFloor)
	}
	if cfg.ClusterAggregation != "mean" || cfg.OverallAggregation != "mean" {
		t.Errorf("aggregation = %q/%q, want mean/mean", cfg.ClusterAggregation, cfg.OverallAggregation)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("CacheTTL = %v, want 15m", cfg.CacheTTL)
	}
	if cfg.LockTimeout != 250*time.Millisecond || cfg.LockRetries != 3 {
		t.Errorf("locking = %v/%d, want 250ms/3", cfg.LockTimeout, cfg.LockRetries)
	}
	// Dev layout fallback kicks in when CLUSTERS_JSON is unset.
	if len(cfg.Clusters) != 2 {
		t.Errorf("Clusters = %d, want 2", len(cfg.Clusters))
	}
	if len(cfg.Events) != 3 {
		t.Errorf("Events = %d, want 3", len(cfg.Events))
	}
}

func TestLoadRequiredVariables(t *testing.T) {
	t.Run("Missing Redis URL", func(t *testing.T) {
		t.Setenv("REDIS_URL", "")
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
			t.Errorf("expected REDIS_URL error, got %v", err)
		}
	})

	t.Run("Postgres Backend Requires URL", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("STORE_BACKEND", "postgres")
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "POSTGRES_URL") {
			t.Errorf("expected POSTGRES_URL error, got %v", err)
		}
	})

	t.Run("Memory Backend Needs No Postgres", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("STORE_BACKEND", "memory")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.PostgresURL != "" {
			t.Errorf("PostgresURL = %q, want empty", cfg.PostgresURL)
		}
	})

	t.Run("Unknown Backend Rejected", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("STORE_BACKEND", "cassandra")
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "STORE_BACKEND") {
			t.Errorf("expected STORE_BACKEND error, got %v", err)
		}
	})
}

func TestLoadPolicyValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"Valid Best N", "CLUSTER_AGGREGATION", "best_n", ""},
		{"Valid Weighted", "OVERALL_AGGREGATION", "weighted", ""},
		{"Bad Cluster Policy", "CLUSTER_AGGREGATION", "median", "CLUSTER_AGGREGATION"},
		{"Bad Overall Policy", "OVERALL_AGGREGATION", "max", "OVERALL_AGGREGATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_URL", "redis://localhost:6379")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %s error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadLayout(t *testing.T) {
	t.Run("Custom Layout", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("CLUSTERS_JSON", `[{"number":7,"name":"Sprint","weight":2}]`)
		t.Setenv("EVENTS_JSON", `[{"id":"evt-x","name":"X","cluster_number":7,"scoring":"head_to_head"}]`)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(cfg.Clusters) != 1 || cfg.Clusters[0].Number != 7 {
			t.Fatalf("unexpected clusters: %+v", cfg.Clusters)
		}
		if len(cfg.Events) != 1 || cfg.Events[0].ClusterNumber != 7 {
			t.Fatalf("unexpected events: %+v", cfg.Events)
		}
	})

	t.Run("Malformed Clusters JSON", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379")
		t.Setenv("CLUSTERS_JSON", `{"not": "an array"`)

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "CLUSTERS_JSON") {
			t.Errorf("expected CLUSTERS_JSON error, got %v", err)
		}
	})
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}
