package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tourneynet/ratings-api/internal/config"
	"github.com/tourneynet/ratings-api/internal/handlers"
	"github.com/tourneynet/ratings-api/internal/logic"
	"github.com/tourneynet/ratings-api/internal/store"
	"github.com/tourneynet/ratings-api/internal/worker"
)

func main() {
	// Best-effort .env for local development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis (hierarchy cache)
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		sugar.Fatalw("Invalid REDIS_URL", "error", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	// Rating store backend
	storeOpts := store.Options{
		StartingRating: cfg.StartingRating,
		RatingFloor:    cfg.RatingFloor,
		LockTimeout:    cfg.LockTimeout,
		LockRetries:    cfg.LockRetries,
	}
	var ratingStore store.RatingStore
	var pgPool *pgxpool.Pool
	if cfg.StoreBackend == "postgres" {
		pgPool, err = pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			sugar.Fatalw("Failed to connect to Postgres", "error", err)
		}
		defer pgPool.Close()

		pg := store.NewPostgresPool(pgPool, storeOpts)
		if err := pg.Migrate(ctx); err != nil {
			sugar.Fatalw("Failed to migrate ratings schema", "error", err)
		}
		ratingStore = pg
	} else {
		ratingStore = store.NewMemory(storeOpts)
	}

	// ClickHouse (rating-change history, optional)
	var chConn handlers.HistoryConn
	var poolSink worker.HistorySink
	if cfg.ClickHouseURL != "" {
		chOpts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			sugar.Fatalw("Invalid CLICKHOUSE_URL", "error", err)
		}
		conn, err := clickhouse.Open(chOpts)
		if err != nil {
			sugar.Fatalw("Failed to connect to ClickHouse", "error", err)
		}
		defer conn.Close()
		chConn = conn
		poolSink = conn
	}

	registry, err := logic.NewRegistry(cfg.Clusters, cfg.Events)
	if err != nil {
		sugar.Fatalw("Invalid tournament layout", "error", err)
	}

	policy := logic.AggregationPolicy{
		Cluster:     logic.ClusterPolicy(cfg.ClusterAggregation),
		BestN:       cfg.ClusterBestN,
		Overall:     logic.OverallPolicy(cfg.OverallAggregation),
		RatingFloor: cfg.RatingFloor,
	}

	hierarchy := logic.NewCachedHierarchyService(ratingStore, rdb, policy, registry, cfg.CacheTTL, logger)
	notifier := logic.NewRatingChangeNotifier(hierarchy, logger)

	pool := worker.NewPool(worker.PoolConfig{
		WorkerCount:   cfg.WorkerCount,
		QueueSize:     cfg.QueueSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Store:         ratingStore,
		Notifier:      notifier,
		Registry:      registry,
		ClickHouse:    poolSink,
		Logger:        logger,
	})
	pool.Start(ctx)

	h := handlers.New(handlers.Config{
		WorkerPool: pool,
		Postgres:   pgPool,
		ClickHouse: chConn,
		Redis:      rdb,
		Logger:     logger,
		Store:      ratingStore,
		Hierarchy:  hierarchy,
		Registry:   registry,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ratings/player/{playerID}", func(r chi.Router) {
			r.Get("/hierarchy", h.GetHierarchy)
			r.Get("/cluster/{clusterNumber}", h.GetClusterAggregate)
			r.Get("/event/{eventID}", h.GetEventRating)
			r.Get("/history", h.GetRatingHistory)
		})
		r.Post("/matches/results", h.PostMatchResult)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		sugar.Infow("Server listening", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("HTTP shutdown failed", "error", err)
	}
	pool.Stop()
}
