// Seeder posts a few resolved match results against a locally running
// server so the hierarchy endpoints have data to serve.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
)

const apiURL = "http://localhost:8080/api/v1/matches/results"

type participantResult struct {
	PlayerID    string           `json:"player_id"`
	RatingDelta float64          `json:"rating_delta"`
	Bonuses     map[string]int64 `json:"bonuses,omitempty"`
}

type matchResult struct {
	ChallengeID string              `json:"challenge_id"`
	EventID     string              `json:"event_id"`
	Results     []participantResult `json:"results"`
}

func main() {
	results := []matchResult{
		{
			ChallengeID: uuid.NewString(),
			EventID:     "evt-a",
			Results: []participantResult{
				{PlayerID: "player-1", RatingDelta: 25, Bonuses: map[string]int64{"participation": 5}},
				{PlayerID: "player-2", RatingDelta: -25},
			},
		},
		{
			ChallengeID: uuid.NewString(),
			EventID:     "evt-b",
			Results: []participantResult{
				{PlayerID: "player-1", RatingDelta: 40},
				{PlayerID: "player-3", RatingDelta: -40},
			},
		},
		{
			ChallengeID: uuid.NewString(),
			EventID:     "evt-c",
			Results: []participantResult{
				{PlayerID: "player-1", RatingDelta: 10},
				{PlayerID: "player-2", RatingDelta: 0},
				{PlayerID: "player-3", RatingDelta: -10},
			},
		},
	}

	for _, result := range results {
		payload, err := json.Marshal(result)
		if err != nil {
			log.Fatalf("marshal: %v", err)
		}

		resp, err := http.Post(apiURL, "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Fatalf("post: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		fmt.Printf("%s %s -> %d %s\n", result.EventID, result.ChallengeID, resp.StatusCode, body)
	}
}
