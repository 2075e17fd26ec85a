package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tourneynet/ratings-api/internal/logic"
	"github.com/tourneynet/ratings-api/internal/store"
)

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready check endpoint
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check whichever dependencies are wired
	checks := map[string]bool{
		"redis": h.redis.Ping(ctx).Err() == nil,
	}
	if h.pg != nil {
		checks["postgres"] = h.pg.Ping(ctx) == nil
	}
	if h.ch != nil {
		checks["clickhouse"] = h.ch.Ping(ctx) == nil
	}

	allHealthy := true
	for _, ok := range checks {
		if !ok {
			allHealthy = false
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !allHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":      allHealthy,
		"checks":     checks,
		"queueDepth": h.pool.QueueDepth(),
	})
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}

// serviceError maps domain errors to HTTP responses. Failed reads are
// surfaced as errors, never as default or zero ratings.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, logic.ErrClusterNotRated):
		h.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		h.errorResponse(w, http.StatusConflict, "rating record busy, retry with backoff")
	case errors.Is(err, logic.ErrInvalidRating), errors.Is(err, store.ErrInvalidMutation):
		h.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Errorw("Request failed", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}
