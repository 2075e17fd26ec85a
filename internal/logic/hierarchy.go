// Package logic holds the hierarchy calculator and the cached
// hierarchy service. The calculator is the single source of truth for
// aggregation: every caller, cached or not, goes through it.
package logic

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tourneynet/ratings-api/internal/models"
)

var (
	// ErrClusterNotRated is returned when a cluster has no qualifying
	// ratings for the player. Callers must not substitute zero.
	ErrClusterNotRated = errors.New("cluster has no qualifying ratings")

	// ErrInvalidRating rejects inconsistent calculator input; the
	// underlying data is left unchanged.
	ErrInvalidRating = errors.New("invalid rating input")
)

// ClusterPolicy selects how per-event values combine into a cluster
// aggregate.
type ClusterPolicy string

// OverallPolicy selects how cluster aggregates combine into the overall
// aggregate.
type OverallPolicy string

const (
	// ClusterMean averages all qualifying event values.
	ClusterMean ClusterPolicy = "mean"
	// ClusterBestN averages the N highest event values; ties between
	// equal values are broken by event ID order, never insertion order.
	ClusterBestN ClusterPolicy = "best_n"

	// OverallMean is the simple mean of present cluster aggregates.
	OverallMean OverallPolicy = "mean"
	// OverallWeighted is the cluster-weight weighted mean. Clusters
	// absent from the hierarchy contribute neither value nor weight.
	OverallWeighted OverallPolicy = "weighted"
)

// AggregationPolicy is the full, explicit aggregation configuration.
// It is applied identically by every caller.
type AggregationPolicy struct {
	Cluster     ClusterPolicy
	BestN       int
	Overall     OverallPolicy
	RatingFloor float64
}

// Value is the number a rating contributes to aggregation: the
// floor-clamped scoring rating plus all bonus components.
func (p AggregationPolicy) Value(r *models.PerEventRating) (float64, error) {
	for name, b := range r.Bonuses {
		if b < 0 {
			return 0, fmt.Errorf("%w: negative bonus %q on %s/%s", ErrInvalidRating, name, r.PlayerID, r.EventID)
		}
	}
	scoring := r.Scoring
	if scoring < p.RatingFloor {
		scoring = p.RatingFloor
	}
	return scoring + float64(r.BonusTotal()), nil
}

// ClusterAggregate combines one cluster's qualifying ratings. An empty
// input means the cluster does not qualify and is excluded entirely
// from the hierarchy, so it is an error here rather than zero.
func (p AggregationPolicy) ClusterAggregate(ratings []*models.PerEventRating) (float64, error) {
	if len(ratings) == 0 {
		return 0, ErrClusterNotRated
	}

	type rated struct {
		eventID string
		value   float64
	}
	values := make([]rated, 0, len(ratings))
	for _, r := range ratings {
		v, err := p.Value(r)
		if err != nil {
			return 0, err
		}
		values = append(values, rated{eventID: r.EventID, value: v})
	}

	// Deterministic order regardless of how the caller fetched rows:
	// value descending, then event ID ascending as the tie-break.
	sort.Slice(values, func(i, j int) bool {
		if values[i].value != values[j].value {
			return values[i].value > values[j].value
		}
		return values[i].eventID < values[j].eventID
	})

	taken := values
	if p.Cluster == ClusterBestN && p.BestN > 0 && len(values) > p.BestN {
		taken = values[:p.BestN]
	}

	var sum float64
	for _, v := range taken {
		sum += v.value
	}
	return sum / float64(len(taken)), nil
}

// OverallAggregate combines the present cluster aggregates. weights
// supplies per-cluster weights for the weighted policy; clusters
// missing from aggregates never contribute.
func (p AggregationPolicy) OverallAggregate(aggregates map[int]float64, weights map[int]float64) (float64, error) {
	if len(aggregates) == 0 {
		return 0, ErrClusterNotRated
	}

	if p.Overall == OverallWeighted {
		var sum, totalWeight float64
		for cluster, agg := range aggregates {
			w := weights[cluster]
			sum += w * agg
			totalWeight += w
		}
		if totalWeight > 0 {
			return sum / totalWeight, nil
		}
		// All weights zero: fall through to the simple mean.
	}

	var sum float64
	for _, agg := range aggregates {
		sum += agg
	}
	return sum / float64(len(aggregates)), nil
}

// Hierarchy computes the full three-tier hierarchy from a player's
// per-event ratings. Pure: identical inputs yield identical outputs.
func (p AggregationPolicy) Hierarchy(playerID string, ratings []*models.PerEventRating, registry *Registry) (*models.Hierarchy, error) {
	byCluster := make(map[int][]*models.PerEventRating)
	for _, r := range ratings {
		event, ok := registry.Event(r.EventID)
		if !ok {
			return nil, fmt.Errorf("%w: rating references unknown event %q", ErrInvalidRating, r.EventID)
		}
		byCluster[event.ClusterNumber] = append(byCluster[event.ClusterNumber], r)
	}

	clusters := make(map[int]float64, len(byCluster))
	for number, group := range byCluster {
		agg, err := p.ClusterAggregate(group)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", number, err)
		}
		clusters[number] = agg
	}

	h := &models.Hierarchy{
		PlayerID:   playerID,
		Clusters:   clusters,
		ComputedAt: time.Now().UTC(),
	}
	if len(clusters) > 0 {
		overall, err := p.OverallAggregate(clusters, registry.Weights())
		if err != nil {
			return nil, err
		}
		h.Overall = overall
	}
	return h, nil
}
