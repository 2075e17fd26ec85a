package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourneynet/ratings-api/internal/models"
)

// GetRatingHistory returns recent rating changes for a player
// @Summary Get Rating History
// @Description Most recent applied rating changes, newest first
// @Tags Ratings
// @Produce json
// @Param playerID path string true "Player ID"
// @Param limit query int false "Max entries (default 50)"
// @Success 200 {array} models.RatingChangeEntry "History"
// @Failure 503 {object} map[string]string "History disabled"
// @Router /ratings/player/{playerID}/history [get]
func (h *Handler) GetRatingHistory(w http.ResponseWriter, r *http.Request) {
	if h.ch == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "rating history is not enabled")
		return
	}

	playerID := chi.URLParam(r, "playerID")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := h.ch.Query(r.Context(), `
		SELECT change_id, challenge_id, event_id, old_raw, new_raw, old_scoring, new_scoring, applied_at
		FROM tournament_ratings.rating_changes
		WHERE player_id = ?
		ORDER BY applied_at DESC
		LIMIT ?
	`, playerID, limit)
	if err != nil {
		h.logger.Errorw("Failed to query rating history", "player", playerID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	defer rows.Close()

	history := make([]models.RatingChangeEntry, 0, limit)
	for rows.Next() {
		var e models.RatingChangeEntry
		var appliedAt time.Time
		if err := rows.Scan(&e.ChangeID, &e.ChallengeID, &e.EventID,
			&e.OldRaw, &e.NewRaw, &e.OldScoring, &e.NewScoring, &appliedAt); err != nil {
			continue
		}
		e.AppliedAt = appliedAt.Format(time.RFC3339)
		history = append(history, e)
	}

	h.jsonResponse(w, http.StatusOK, history)
}
