package models

import (
	"fmt"
	"time"
)

// ConfirmationState tracks a participant's response to a challenge.
type ConfirmationState string

const (
	ConfirmationPending  ConfirmationState = "pending"
	ConfirmationAccepted ConfirmationState = "accepted"
	ConfirmationDeclined ConfirmationState = "declined"
)

// Challenge groups 2..N participants for one event. The scheduling and
// confirmation workflow lives outside this service; resolving a
// challenge feeds per-event rating updates for every participant.
type Challenge struct {
	ID           string                 `json:"id"`
	EventID      string                 `json:"event_id"`
	Participants []ChallengeParticipant `json:"participants"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ChallengeParticipant links one player to a challenge. Team is optional
// and only meaningful for team-based events.
type ChallengeParticipant struct {
	PlayerID     string            `json:"player_id"`
	Team         string            `json:"team,omitempty"`
	Confirmation ConfirmationState `json:"confirmation"`
}

// Validate enforces the structural invariants: at least two
// participants, and no (challenge, player) pair appearing twice.
func (c *Challenge) Validate() error {
	if len(c.Participants) < 2 {
		return fmt.Errorf("challenge %s has %d participants, need at least 2", c.ID, len(c.Participants))
	}
	seen := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		if _, dup := seen[p.PlayerID]; dup {
			return fmt.Errorf("player %s appears twice in challenge %s", p.PlayerID, c.ID)
		}
		seen[p.PlayerID] = struct{}{}
	}
	return nil
}
