// Package worker implements the buffered worker pool that applies
// resolved match results. It decouples HTTP ingest from the rating
// store and ClickHouse, providing:
// - Backpressure handling via load shedding
// - Per-participant update + invalidation ordering (write, then notify)
// - Batched history inserts with graceful shutdown flush
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/tourneynet/ratings-api/internal/logic"
	"github.com/tourneynet/ratings-api/internal/models"
	"github.com/tourneynet/ratings-api/internal/store"
)

// Prometheus metrics
var (
	matchesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_matches_ingested_total",
		Help: "Total number of match results accepted into the queue",
	})

	matchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_matches_processed_total",
		Help: "Total number of match results fully applied",
	})

	matchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_matches_failed_total",
		Help: "Total number of match results that failed to apply",
	})

	matchesLoadShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratings_matches_load_shed_total",
		Help: "Total number of match results dropped due to a full queue",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ratings_worker_queue_depth",
		Help: "Current depth of the match result queue",
	})

	historyInsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratings_history_insert_duration_seconds",
		Help:    "Duration of batch history inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})
)

// HistorySink is the slice of driver.Conn used for history writes.
type HistorySink interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// Job is one resolved match result waiting to be applied.
type Job struct {
	Result     *models.MatchResultRequest
	ReceivedAt time.Time
}

// historyRow is one applied rating change, destined for ClickHouse.
type historyRow struct {
	ChangeID      string
	ChallengeID   string
	PlayerID      string
	EventID       string
	ClusterNumber int
	OldRaw        float64
	NewRaw        float64
	OldScoring    float64
	NewScoring    float64
	BonusTotal    int64
	AppliedAt     time.Time
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	WorkerCount   int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	Store         store.RatingStore
	Notifier      logic.Notifier
	Registry      *logic.Registry
	ClickHouse    HistorySink // nil disables history
	Logger        *zap.Logger
}

// Pool applies match results: for every participant, a per-event
// rating update followed synchronously by an invalidation notify.
type Pool struct {
	config   PoolConfig
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	return &Pool{
		config:   cfg,
		jobQueue: make(chan Job, cfg.QueueSize),
		logger:   cfg.Logger.Sugar(),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	go p.reportQueueDepth()

	p.logger.Infow("Worker pool started",
		"workers", p.config.WorkerCount,
		"queueSize", p.config.QueueSize,
		"batchSize", p.config.BatchSize,
	)
}

// Stop gracefully shuts down the pool, draining the queue and flushing
// any buffered history rows.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")
	p.cancel()
	close(p.jobQueue)
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Enqueue adds a match result to the queue. Returns false when the
// queue is full (load shed) or the pool is stopped.
func (p *Pool) Enqueue(result *models.MatchResultRequest) bool {
	job := Job{Result: result, ReceivedAt: time.Now().UTC()}

	// Protect against sending on closed channel
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warnw("Failed to enqueue match result (pool stopped)", "error", r)
		}
	}()

	select {
	case p.jobQueue <- job:
		matchesIngested.Inc()
		return true
	default:
		matchesLoadShed.Inc()
		p.logger.Warnw("Queue full, shedding match result", "challenge", result.ChallengeID)
		return false
	}
}

// QueueDepth returns current queue size
func (p *Pool) QueueDepth() int {
	return len(p.jobQueue)
}

func (p *Pool) reportQueueDepth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			queueDepth.Set(float64(len(p.jobQueue)))
		case <-p.ctx.Done():
			return
		}
	}
}

// worker applies jobs and batches their history rows.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	batch := make([]historyRow, 0, p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := p.insertHistory(batch); err != nil {
			p.logger.Errorw("History batch insert failed",
				"worker", id,
				"rows", len(batch),
				"error", err,
			)
		}
		historyInsertDuration.Observe(time.Since(start).Seconds())
		batch = batch[:0]
	}

	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				flush()
				return
			}

			rows, err := p.applyResult(job)
			if err != nil {
				matchesFailed.Inc()
				p.logger.Errorw("Failed to apply match result",
					"worker", id,
					"challenge", job.Result.ChallengeID,
					"error", err,
				)
			} else {
				matchesProcessed.Inc()
			}
			// Rows for participants applied before a mid-match failure
			// are still recorded; their updates did happen.
			batch = append(batch, rows...)
			if len(batch) >= p.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// applyResult updates every participant's per-event rating, notifying
// the invalidation channel after each successful write. Returns the
// history rows for the updates that were applied.
func (p *Pool) applyResult(job Job) ([]historyRow, error) {
	ctx := context.Background()
	result := job.Result

	event, ok := p.config.Registry.Event(result.EventID)
	if !ok {
		return nil, fmt.Errorf("unknown event %q", result.EventID)
	}

	rows := make([]historyRow, 0, len(result.Results))
	for _, pr := range result.Results {
		old, err := p.config.Store.GetOrCreate(ctx, pr.PlayerID, result.EventID)
		if err != nil {
			return rows, fmt.Errorf("get-or-create %s/%s: %w", pr.PlayerID, result.EventID, err)
		}

		updated, err := p.config.Store.Update(ctx, pr.PlayerID, result.EventID, applyParticipant(pr))
		if err != nil {
			return rows, fmt.Errorf("update %s/%s: %w", pr.PlayerID, result.EventID, err)
		}

		// Write first, notify second: once the notify returns, no
		// reader can see the pre-update hierarchy for this player.
		p.config.Notifier.NotifyRatingChanged(ctx, pr.PlayerID)

		rows = append(rows, historyRow{
			ChangeID:      uuid.NewString(),
			ChallengeID:   result.ChallengeID,
			PlayerID:      pr.PlayerID,
			EventID:       result.EventID,
			ClusterNumber: event.ClusterNumber,
			OldRaw:        old.Raw,
			NewRaw:        updated.Raw,
			OldScoring:    old.Scoring,
			NewScoring:    updated.Scoring,
			BonusTotal:    updated.BonusTotal(),
			AppliedAt:     updated.UpdatedAt,
		})
	}
	return rows, nil
}

// applyParticipant builds the store mutation for one participant's
// finalized result.
func applyParticipant(pr models.ParticipantResult) store.Mutation {
	return func(r *models.PerEventRating) error {
		r.Raw += pr.RatingDelta
		r.Scoring = r.Raw
		if pr.FinalScore != nil {
			fs := *pr.FinalScore
			r.FinalScore = &fs
		}
		if len(pr.Bonuses) > 0 {
			if r.Bonuses == nil {
				r.Bonuses = make(map[string]int64, len(pr.Bonuses))
			}
			for name, v := range pr.Bonuses {
				r.Bonuses[name] += v
			}
		}
		return nil
	}
}

// insertHistory writes one batch of rating changes to ClickHouse.
func (p *Pool) insertHistory(rows []historyRow) error {
	if p.config.ClickHouse == nil {
		return nil
	}
	ctx := context.Background()

	chBatch, err := p.config.ClickHouse.PrepareBatch(ctx, `
		INSERT INTO tournament_ratings.rating_changes (
			change_id, challenge_id, player_id, event_id, cluster_number,
			old_raw, new_raw, old_scoring, new_scoring, bonus_total, applied_at
		)
	`)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := chBatch.Append(
			row.ChangeID,
			row.ChallengeID,
			row.PlayerID,
			row.EventID,
			int32(row.ClusterNumber),
			row.OldRaw,
			row.NewRaw,
			row.OldScoring,
			row.NewScoring,
			row.BonusTotal,
			row.AppliedAt,
		); err != nil {
			p.logger.Warnw("Failed to append history row", "change", row.ChangeID, "error", err)
			continue
		}
	}

	return chBatch.Send()
}
