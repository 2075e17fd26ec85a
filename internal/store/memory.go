// Package store implements the per-event rating store. The memory
// implementation is the reference for the locking contract: one
// exclusive lock per (player, event) record, timed acquisition with
// bounded retry, no lock shared across records.
package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tourneynet/ratings-api/internal/models"
)

type memoryRecord struct {
	// sem is the record's exclusive write lock. Held only for the
	// duration of one read-modify-write.
	sem chan struct{}
	// rec holds the current committed record. Readers load it without
	// taking sem; writers swap in a fresh copy.
	rec atomic.Pointer[models.PerEventRating]
}

// Memory is an in-process RatingStore.
type Memory struct {
	opts Options

	mu      sync.RWMutex
	records map[string]*memoryRecord            // (player,event) -> record
	byOwner map[string]map[string]*memoryRecord // player -> eventID -> record
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:    opts.withDefaults(),
		records: make(map[string]*memoryRecord),
		byOwner: make(map[string]map[string]*memoryRecord),
	}
}

func recordKey(playerID, eventID string) string {
	return playerID + "\x00" + eventID
}

// GetOrCreate returns the existing record or atomically creates one
// with baseline defaults. Concurrent creators for the same pair all
// observe the single created record.
func (m *Memory) GetOrCreate(ctx context.Context, playerID, eventID string) (*models.PerEventRating, error) {
	key := recordKey(playerID, eventID)

	m.mu.RLock()
	entry, ok := m.records[key]
	m.mu.RUnlock()
	if ok {
		return entry.rec.Load().Clone(), nil
	}

	m.mu.Lock()
	// Double-check under the write lock: another creator may have won.
	if entry, ok = m.records[key]; !ok {
		entry = &memoryRecord{sem: make(chan struct{}, 1)}
		entry.rec.Store(&models.PerEventRating{
			PlayerID:  playerID,
			EventID:   eventID,
			Raw:       m.opts.StartingRating,
			Scoring:   m.opts.StartingRating,
			UpdatedAt: time.Now().UTC(),
		})
		m.records[key] = entry
		if m.byOwner[playerID] == nil {
			m.byOwner[playerID] = make(map[string]*memoryRecord)
		}
		m.byOwner[playerID][eventID] = entry
	}
	m.mu.Unlock()

	return entry.rec.Load().Clone(), nil
}

func (m *Memory) Get(ctx context.Context, playerID, eventID string) (*models.PerEventRating, error) {
	m.mu.RLock()
	entry, ok := m.records[recordKey(playerID, eventID)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return entry.rec.Load().Clone(), nil
}

// Update applies mutate to the current record under the record's
// exclusive lock and commits the result. Serializable per record;
// updates to different records proceed concurrently.
func (m *Memory) Update(ctx context.Context, playerID, eventID string, mutate Mutation) (*models.PerEventRating, error) {
	m.mu.RLock()
	entry, ok := m.records[recordKey(playerID, eventID)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if err := m.acquire(ctx, entry); err != nil {
		return nil, err
	}
	defer func() { <-entry.sem }()

	next := entry.rec.Load().Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := validate(next, m.opts.RatingFloor); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	entry.rec.Store(next)
	return next.Clone(), nil
}

// acquire takes the record lock with a timed wait, retrying with
// doubling backoff up to the configured bound before surfacing
// ErrConflict.
func (m *Memory) acquire(ctx context.Context, entry *memoryRecord) error {
	wait := m.opts.LockTimeout
	for attempt := 0; ; attempt++ {
		timer := time.NewTimer(wait)
		select {
		case entry.sem <- struct{}{}:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if attempt+1 >= m.opts.LockRetries {
				return ErrConflict
			}
			wait *= 2
		}
	}
}

// ListByPlayer returns copies of all of a player's records, ordered by
// event ID so downstream aggregation is deterministic under re-fetch.
func (m *Memory) ListByPlayer(ctx context.Context, playerID string) ([]*models.PerEventRating, error) {
	m.mu.RLock()
	owned := m.byOwner[playerID]
	out := make([]*models.PerEventRating, 0, len(owned))
	for _, entry := range owned {
		out = append(out, entry.rec.Load().Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}
