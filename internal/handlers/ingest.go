package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tourneynet/ratings-api/internal/models"
)

// PostMatchResult handles POST /api/v1/matches/results
// @Summary Ingest Match Result
// @Description Accepts one finalized match outcome with per-participant rating deltas
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param body body models.MatchResultRequest true "Match result"
// @Success 202 {object} models.MatchResultResponse "Accepted"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 429 {object} map[string]string "Queue Full"
// @Router /matches/results [post]
func (h *Handler) PostMatchResult(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	defer r.Body.Close()

	var result models.MatchResultRequest
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.validator.Struct(&result); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := h.registry.Event(result.EventID); !ok {
		h.errorResponse(w, http.StatusBadRequest, "unknown event: "+result.EventID)
		return
	}
	// Mirror the challenge invariant: no participant twice, bonuses
	// non-negative.
	seen := make(map[string]struct{}, len(result.Results))
	for _, pr := range result.Results {
		if _, dup := seen[pr.PlayerID]; dup {
			h.errorResponse(w, http.StatusBadRequest, "duplicate participant: "+pr.PlayerID)
			return
		}
		seen[pr.PlayerID] = struct{}{}
		for name, v := range pr.Bonuses {
			if v < 0 {
				h.errorResponse(w, http.StatusBadRequest, "negative bonus component: "+name)
				return
			}
		}
	}

	if !h.pool.Enqueue(&result) {
		h.errorResponse(w, http.StatusTooManyRequests, "ingest queue full, retry later")
		return
	}

	h.logger.Infow("Match result accepted",
		"challenge", result.ChallengeID,
		"event", result.EventID,
		"participants", len(result.Results),
	)
	h.jsonResponse(w, http.StatusAccepted, models.MatchResultResponse{
		Accepted:   true,
		QueueDepth: h.pool.QueueDepth(),
	})
}
