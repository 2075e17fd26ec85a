package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tourneynet/ratings-api/internal/models"
)

var (
	// ErrNotFound is returned by Update when no record exists for the
	// (player, event) pair. GetOrCreate never returns it.
	ErrNotFound = errors.New("rating record not found")

	// ErrConflict is returned when a record's lock could not be
	// acquired within the configured bound, after internal retries.
	// Callers should retry with backoff.
	ErrConflict = errors.New("rating record lock contention")

	// ErrInvalidMutation is returned when a mutator produces an
	// out-of-range record (e.g. a negative bonus component). The stored
	// record is left unchanged.
	ErrInvalidMutation = errors.New("invalid rating mutation")
)

// Mutation transforms a rating record in place. It receives a copy of
// the current record; the store persists the result only if the
// mutation returns nil and the result passes validation.
type Mutation func(r *models.PerEventRating) error

// RatingStore is the per-event rating store. GetOrCreate and Update are
// atomic per (player, event) record; operations on different records
// never block each other.
type RatingStore interface {
	GetOrCreate(ctx context.Context, playerID, eventID string) (*models.PerEventRating, error)
	Get(ctx context.Context, playerID, eventID string) (*models.PerEventRating, error)
	Update(ctx context.Context, playerID, eventID string, mutate Mutation) (*models.PerEventRating, error)
	ListByPlayer(ctx context.Context, playerID string) ([]*models.PerEventRating, error)
}

// Options configure record defaults and lock behavior, shared by all
// store implementations.
type Options struct {
	StartingRating float64
	RatingFloor    float64
	LockTimeout    time.Duration
	LockRetries    int
}

func (o Options) withDefaults() Options {
	if o.StartingRating == 0 {
		o.StartingRating = 1000
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 250 * time.Millisecond
	}
	if o.LockRetries <= 0 {
		o.LockRetries = 3
	}
	return o
}

// validate enforces the write-time invariants: scoring rating clamped
// to the floor, bonus components non-negative.
func validate(r *models.PerEventRating, floor float64) error {
	for name, v := range r.Bonuses {
		if v < 0 {
			return fmt.Errorf("%w: negative bonus component %q", ErrInvalidMutation, name)
		}
	}
	if r.Scoring < floor {
		r.Scoring = floor
	}
	return nil
}
