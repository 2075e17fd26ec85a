package handlers

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tourneynet/ratings-api/internal/logic"
	"github.com/tourneynet/ratings-api/internal/models"
	"github.com/tourneynet/ratings-api/internal/store"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1048576

// IngestQueue defines the interface for the match-result worker pool
type IngestQueue interface {
	Enqueue(result *models.MatchResultRequest) bool
	QueueDepth() int
}

// HistoryConn is the ClickHouse read path for rating history.
type HistoryConn interface {
	Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error)
	Ping(ctx context.Context) error
}

type Config struct {
	WorkerPool IngestQueue
	Postgres   *pgxpool.Pool // nil with the memory store backend
	ClickHouse HistoryConn   // nil disables history
	Redis      *redis.Client
	Logger     *zap.Logger
	// Services
	Store     store.RatingStore
	Hierarchy logic.HierarchyService
	Registry  *logic.Registry
}

type Handler struct {
	pool      IngestQueue
	pg        *pgxpool.Pool
	ch        HistoryConn
	redis     *redis.Client
	logger    *zap.SugaredLogger
	validator *validator.Validate
	store     store.RatingStore
	hierarchy logic.HierarchyService
	registry  *logic.Registry
}

func New(cfg Config) *Handler {
	return &Handler{
		pool:      cfg.WorkerPool,
		pg:        cfg.Postgres,
		ch:        cfg.ClickHouse,
		redis:     cfg.Redis,
		logger:    cfg.Logger.Sugar(),
		validator: validator.New(),
		store:     cfg.Store,
		hierarchy: cfg.Hierarchy,
		registry:  cfg.Registry,
	}
}
