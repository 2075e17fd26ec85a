package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourneynet/ratings-api/internal/models"
)

// PgPool is the subset of pgxpool.Pool the store needs, narrowed for
// testability.
type PgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is the durable RatingStore. Row-level locking comes from
// SELECT ... FOR UPDATE inside a transaction with a local lock_timeout;
// lock timeouts are retried with backoff before surfacing ErrConflict.
type Postgres struct {
	pg   PgPool
	opts Options
}

func NewPostgres(pg PgPool, opts Options) *Postgres {
	return &Postgres{pg: pg, opts: opts.withDefaults()}
}

// NewPostgresPool is a convenience constructor from a live pool.
func NewPostgresPool(pool *pgxpool.Pool, opts Options) *Postgres {
	return NewPostgres(pool, opts)
}

// Migrate creates the ratings table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pg.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS per_event_ratings (
			player_id   TEXT NOT NULL,
			event_id    TEXT NOT NULL,
			raw         DOUBLE PRECISION NOT NULL,
			scoring     DOUBLE PRECISION NOT NULL,
			final_score DOUBLE PRECISION,
			bonuses     JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (player_id, event_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate per_event_ratings: %w", err)
	}
	return nil
}

func (p *Postgres) GetOrCreate(ctx context.Context, playerID, eventID string) (*models.PerEventRating, error) {
	// ON CONFLICT DO NOTHING makes concurrent creation race-free: the
	// loser of the race reads the winner's row.
	_, err := p.pg.Exec(ctx, `
		INSERT INTO per_event_ratings (player_id, event_id, raw, scoring, bonuses)
		VALUES ($1, $2, $3, $3, '{}'::jsonb)
		ON CONFLICT (player_id, event_id) DO NOTHING
	`, playerID, eventID, p.opts.StartingRating)
	if err != nil {
		return nil, fmt.Errorf("create rating %s/%s: %w", playerID, eventID, err)
	}
	return p.Get(ctx, playerID, eventID)
}

func (p *Postgres) Get(ctx context.Context, playerID, eventID string) (*models.PerEventRating, error) {
	row := p.pg.QueryRow(ctx, `
		SELECT player_id, event_id, raw, scoring, final_score, bonuses, updated_at
		FROM per_event_ratings
		WHERE player_id = $1 AND event_id = $2
	`, playerID, eventID)
	return scanRating(row)
}

func (p *Postgres) Update(ctx context.Context, playerID, eventID string, mutate Mutation) (*models.PerEventRating, error) {
	wait := p.opts.LockTimeout
	for attempt := 0; ; attempt++ {
		rec, err := p.updateOnce(ctx, playerID, eventID, mutate)
		if err == nil || !isLockTimeout(err) {
			return rec, err
		}
		if attempt+1 >= p.opts.LockRetries {
			return nil, fmt.Errorf("%w: %s/%s", ErrConflict, playerID, eventID)
		}
		select {
		case <-time.After(wait):
			wait *= 2
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Postgres) updateOnce(ctx context.Context, playerID, eventID string, mutate Mutation) (*models.PerEventRating, error) {
	tx, err := p.pg.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.opts.LockTimeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("set lock_timeout: %w", err)
	}

	row := tx.QueryRow(ctx, `
		SELECT player_id, event_id, raw, scoring, final_score, bonuses, updated_at
		FROM per_event_ratings
		WHERE player_id = $1 AND event_id = $2
		FOR UPDATE
	`, playerID, eventID)
	rec, err := scanRating(row)
	if err != nil {
		return nil, err
	}

	if err := mutate(rec); err != nil {
		return nil, err
	}
	if err := validate(rec, p.opts.RatingFloor); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()

	bonuses, err := json.Marshal(rec.Bonuses)
	if err != nil {
		return nil, fmt.Errorf("marshal bonuses: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE per_event_ratings
		SET raw = $3, scoring = $4, final_score = $5, bonuses = $6, updated_at = $7
		WHERE player_id = $1 AND event_id = $2
	`, playerID, eventID, rec.Raw, rec.Scoring, rec.FinalScore, bonuses, rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("persist rating %s/%s: %w", playerID, eventID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

func (p *Postgres) ListByPlayer(ctx context.Context, playerID string) ([]*models.PerEventRating, error) {
	rows, err := p.pg.Query(ctx, `
		SELECT player_id, event_id, raw, scoring, final_score, bonuses, updated_at
		FROM per_event_ratings
		WHERE player_id = $1
		ORDER BY event_id
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list ratings for %s: %w", playerID, err)
	}
	defer rows.Close()

	out := make([]*models.PerEventRating, 0)
	for rows.Next() {
		rec, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRating(row pgx.Row) (*models.PerEventRating, error) {
	var rec models.PerEventRating
	var bonuses []byte
	err := row.Scan(&rec.PlayerID, &rec.EventID, &rec.Raw, &rec.Scoring, &rec.FinalScore, &bonuses, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rating: %w", err)
	}
	if len(bonuses) > 0 {
		if err := json.Unmarshal(bonuses, &rec.Bonuses); err != nil {
			return nil, fmt.Errorf("decode bonuses: %w", err)
		}
	}
	return &rec, nil
}

// 55P03 is lock_not_available, raised when lock_timeout expires.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}
