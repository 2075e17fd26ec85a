package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourneynet/ratings-api/internal/models"
)

// GetHierarchy returns a player's full rating hierarchy
// @Summary Get Rating Hierarchy
// @Description Per-cluster aggregates and overall aggregate for a player
// @Tags Ratings
// @Produce json
// @Param playerID path string true "Player ID"
// @Success 200 {object} models.HierarchyResponse "Hierarchy"
// @Failure 500 {object} map[string]string "Internal Error"
// @Router /ratings/player/{playerID}/hierarchy [get]
func (h *Handler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	hierarchy, err := h.hierarchy.GetHierarchy(r.Context(), playerID)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, h.toResponse(hierarchy))
}

// GetClusterAggregate returns one cluster's aggregate for a player
// @Summary Get Cluster Aggregate
// @Description One cluster's aggregate rating, projected from the full hierarchy
// @Tags Ratings
// @Produce json
// @Param playerID path string true "Player ID"
// @Param clusterNumber path int true "Cluster Number"
// @Success 200 {object} models.ClusterAggregate "Aggregate"
// @Failure 404 {object} map[string]string "No qualifying ratings"
// @Router /ratings/player/{playerID}/cluster/{clusterNumber} [get]
func (h *Handler) GetClusterAggregate(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	clusterNumber, err := strconv.Atoi(chi.URLParam(r, "clusterNumber"))
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid cluster number")
		return
	}

	agg, err := h.hierarchy.CalculateClusterAggregate(r.Context(), playerID, clusterNumber)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, models.ClusterAggregate{
		ClusterNumber: clusterNumber,
		ClusterName:   h.registry.ClusterName(clusterNumber),
		Aggregate:     agg,
	})
}

// GetEventRating returns the raw per-event rating row
// @Summary Get Per-Event Rating
// @Tags Ratings
// @Produce json
// @Param playerID path string true "Player ID"
// @Param eventID path string true "Event ID"
// @Success 200 {object} models.PerEventRating "Rating"
// @Failure 404 {object} map[string]string "Not Found"
// @Router /ratings/player/{playerID}/event/{eventID} [get]
func (h *Handler) GetEventRating(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	eventID := chi.URLParam(r, "eventID")

	rec, err := h.store.Get(r.Context(), playerID, eventID)
	if err != nil {
		h.serviceError(w, err)
		return
	}

	h.jsonResponse(w, http.StatusOK, rec)
}

func (h *Handler) toResponse(hierarchy *models.Hierarchy) models.HierarchyResponse {
	clusters := make([]models.ClusterAggregate, 0, len(hierarchy.Clusters))
	for number, agg := range hierarchy.Clusters {
		clusters = append(clusters, models.ClusterAggregate{
			ClusterNumber: number,
			ClusterName:   h.registry.ClusterName(number),
			Aggregate:     agg,
		})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ClusterNumber < clusters[j].ClusterNumber })

	return models.HierarchyResponse{
		PlayerID:   hierarchy.PlayerID,
		Clusters:   clusters,
		Overall:    hierarchy.Overall,
		ComputedAt: hierarchy.ComputedAt.Format(time.RFC3339),
	}
}
