package models

import "time"

// ScoringType describes how an event produces per-event ratings.
// It affects the external rating-update formula, not aggregation.
type ScoringType string

const (
	ScoringHeadToHead ScoringType = "head_to_head"
	ScoringFreeForAll ScoringType = "free_for_all"
)

// Player is a tournament participant. Identity is immutable once created.
type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cluster groups events. Weight is only consulted by the "weighted"
// overall aggregation policy.
type Cluster struct {
	Number int     `json:"number"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Event belongs to exactly one cluster.
type Event struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	ClusterNumber int         `json:"cluster_number"`
	Scoring       ScoringType `json:"scoring"`
}

// PerEventRating is one row per (player, event) pair.
// Scoring is the floor-clamped value used for display and aggregation;
// Raw is the unclamped underlying rating. Bonuses are named non-negative
// components added on top of Scoring during aggregation.
type PerEventRating struct {
	PlayerID   string           `json:"player_id"`
	EventID    string           `json:"event_id"`
	Raw        float64          `json:"raw"`
	Scoring    float64          `json:"scoring"`
	FinalScore *float64         `json:"final_score,omitempty"`
	Bonuses    map[string]int64 `json:"bonuses,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Clone returns a deep copy. Mutators and readers always work on copies
// so the store's canonical record is never aliased.
func (r *PerEventRating) Clone() *PerEventRating {
	out := *r
	if r.FinalScore != nil {
		fs := *r.FinalScore
		out.FinalScore = &fs
	}
	if r.Bonuses != nil {
		out.Bonuses = make(map[string]int64, len(r.Bonuses))
		for k, v := range r.Bonuses {
			out.Bonuses[k] = v
		}
	}
	return &out
}

// BonusTotal sums all bonus components.
func (r *PerEventRating) BonusTotal() int64 {
	var total int64
	for _, v := range r.Bonuses {
		total += v
	}
	return total
}

// Hierarchy is a player's computed rating hierarchy: one aggregate per
// cluster the player has qualifying ratings in, plus the overall
// aggregate. Clusters without qualifying ratings are absent, never zero.
type Hierarchy struct {
	PlayerID   string          `json:"player_id"`
	Clusters   map[int]float64 `json:"clusters"`
	Overall    float64         `json:"overall"`
	ComputedAt time.Time       `json:"computed_at"`
	// Version is the invalidation generation observed when the
	// computation started. Cached entries from older generations are
	// treated as misses.
	Version uint64 `json:"version"`
}
