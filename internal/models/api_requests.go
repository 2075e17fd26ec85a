package models

type ParticipantResult struct {
	PlayerID    string           `json:"player_id" validate:"required"`
	RatingDelta float64          `json:"rating_delta"`
	FinalScore  *float64         `json:"final_score,omitempty"`
	Bonuses     map[string]int64 `json:"bonuses,omitempty"`
	Team        string           `json:"team,omitempty"`
}

// MatchResultRequest is the boundary with the match-resolution
// collaborator: one finalized outcome for one event, carrying a rating
// delta for every participant of the resolved challenge.
type MatchResultRequest struct {
	ChallengeID string              `json:"challenge_id" validate:"required"`
	EventID     string              `json:"event_id" validate:"required"`
	Results     []ParticipantResult `json:"results" validate:"required,min=2,dive"`
}

type MatchResultResponse struct {
	Accepted   bool   `json:"accepted"`
	ChangeID   string `json:"change_id,omitempty"`
	QueueDepth int    `json:"queue_depth"`
}

type HierarchyResponse struct {
	PlayerID   string             `json:"player_id"`
	Clusters   []ClusterAggregate `json:"clusters"`
	Overall    float64            `json:"overall"`
	ComputedAt string             `json:"computed_at"` // ISO8601
}

type ClusterAggregate struct {
	ClusterNumber int     `json:"cluster_number"`
	ClusterName   string  `json:"cluster_name"`
	Aggregate     float64 `json:"aggregate"`
}

type RatingChangeEntry struct {
	ChangeID    string  `json:"change_id"`
	ChallengeID string  `json:"challenge_id"`
	EventID     string  `json:"event_id"`
	OldRaw      float64 `json:"old_raw"`
	NewRaw      float64 `json:"new_raw"`
	OldScoring  float64 `json:"old_scoring"`
	NewScoring  float64 `json:"new_scoring"`
	AppliedAt   string  `json:"applied_at"`
}
