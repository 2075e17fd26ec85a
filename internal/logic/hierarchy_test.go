package logic

import (
	"errors"
	"math"
	"testing"

	"github.com/tourneynet/ratings-api/internal/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(
		[]models.Cluster{
			{Number: 1, Name: "Precision", Weight: 2},
			{Number: 2, Name: "Endurance", Weight: 1},
			{Number: 3, Name: "Strategy", Weight: 1},
		},
		[]models.Event{
			{ID: "evt-a", ClusterNumber: 1},
			{ID: "evt-b", ClusterNumber: 1},
			{ID: "evt-c", ClusterNumber: 2},
			{ID: "evt-d", ClusterNumber: 3},
		},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}

func rating(eventID string, scoring float64) *models.PerEventRating {
	return &models.PerEventRating{PlayerID: "p1", EventID: eventID, Raw: scoring, Scoring: scoring}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestHierarchy_MeanPolicy(t *testing.T) {
	policy := AggregationPolicy{Cluster: ClusterMean, Overall: OverallMean, RatingFloor: 100}

	// Event A (cluster 1) = 1200, Event B (cluster 1) = 1400,
	// Event C (cluster 2) = 1000. Cluster 3 has no ratings.
	ratings := []*models.PerEventRating{
		rating("evt-a", 1200),
		rating("evt-b", 1400),
		rating("evt-c", 1000),
	}

	h, err := policy.Hierarchy("p1", ratings, testRegistry(t))
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}

	if got := h.Clusters[1]; !almostEqual(got, 1300) {
		t.Errorf("cluster 1 aggregate = %v, want 1300", got)
	}
	if got := h.Clusters[2]; !almostEqual(got, 1000) {
		t.Errorf("cluster 2 aggregate = %v, want 1000", got)
	}
	if _, present := h.Clusters[3]; present {
		t.Error("cluster 3 has no qualifying ratings and must be excluded, not zero")
	}
	if !almostEqual(h.Overall, 1150) {
		t.Errorf("overall aggregate = %v, want 1150", h.Overall)
	}
}

func TestHierarchy_NoRatings(t *testing.T) {
	policy := AggregationPolicy{Cluster: ClusterMean, Overall: OverallMean}

	h, err := policy.Hierarchy("p1", nil, testRegistry(t))
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}
	if len(h.Clusters) != 0 {
		t.Errorf("expected no cluster aggregates, got %v", h.Clusters)
	}
	if h.Overall != 0 {
		t.Errorf("overall = %v, want 0 for empty hierarchy", h.Overall)
	}
}

func TestHierarchy_UnknownEvent(t *testing.T) {
	policy := AggregationPolicy{Cluster: ClusterMean, Overall: OverallMean}

	_, err := policy.Hierarchy("p1", []*models.PerEventRating{rating("evt-x", 1200)}, testRegistry(t))
	if !errors.Is(err, ErrInvalidRating) {
		t.Errorf("expected ErrInvalidRating for unknown event, got %v", err)
	}
}

func TestClusterAggregate(t *testing.T) {
	tests := []struct {
		name    string
		policy  AggregationPolicy
		ratings []*models.PerEventRating
		want    float64
		wantErr error
	}{
		{
			name:    "empty cluster excluded not zero",
			policy:  AggregationPolicy{Cluster: ClusterMean},
			ratings: nil,
			wantErr: ErrClusterNotRated,
		},
		{
			name:    "mean of all",
			policy:  AggregationPolicy{Cluster: ClusterMean},
			ratings: []*models.PerEventRating{rating("evt-a", 1200), rating("evt-b", 1400)},
			want:    1300,
		},
		{
			name:   "best n takes the n highest",
			policy: AggregationPolicy{Cluster: ClusterBestN, BestN: 2},
			ratings: []*models.PerEventRating{
				rating("evt-a", 1000), rating("evt-b", 1400), rating("evt-c", 1200),
			},
			want: 1300,
		},
		{
			name:    "best n with fewer than n ratings",
			policy:  AggregationPolicy{Cluster: ClusterBestN, BestN: 3},
			ratings: []*models.PerEventRating{rating("evt-a", 1100)},
			want:    1100,
		},
		{
			name:   "bonuses added to scoring value",
			policy: AggregationPolicy{Cluster: ClusterMean},
			ratings: []*models.PerEventRating{
				{PlayerID: "p1", EventID: "evt-a", Scoring: 1000, Bonuses: map[string]int64{"participation": 20, "shop": 30}},
			},
			want: 1050,
		},
		{
			name:   "scoring clamped to floor",
			policy: AggregationPolicy{Cluster: ClusterMean, RatingFloor: 100},
			ratings: []*models.PerEventRating{
				{PlayerID: "p1", EventID: "evt-a", Scoring: -500},
			},
			want: 100,
		},
		{
			name:   "negative bonus rejected",
			policy: AggregationPolicy{Cluster: ClusterMean},
			ratings: []*models.PerEventRating{
				{PlayerID: "p1", EventID: "evt-a", Scoring: 1000, Bonuses: map[string]int64{"shop": -5}},
			},
			wantErr: ErrInvalidRating,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.ClusterAggregate(tt.ratings)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ClusterAggregate: %v", err)
			}
			if !almostEqual(got, tt.want) {
				t.Errorf("aggregate = %v, want %v", got, tt.want)
			}
		})
	}
}

// Equal-value ratings must tie-break on event ID, so best-N is stable
// no matter what order rows arrived in.
func TestClusterAggregate_TieBreakDeterminism(t *testing.T) {
	policy := AggregationPolicy{Cluster: ClusterBestN, BestN: 1}

	forward := []*models.PerEventRating{rating("evt-a", 1200), rating("evt-b", 1200)}
	reversed := []*models.PerEventRating{rating("evt-b", 1200), rating("evt-a", 1200)}

	a, err := policy.ClusterAggregate(forward)
	if err != nil {
		t.Fatalf("ClusterAggregate: %v", err)
	}
	b, err := policy.ClusterAggregate(reversed)
	if err != nil {
		t.Fatalf("ClusterAggregate: %v", err)
	}
	if a != b {
		t.Errorf("tie-break is order-dependent: %v vs %v", a, b)
	}
}

func TestOverallAggregate(t *testing.T) {
	weights := map[int]float64{1: 2, 2: 1}

	tests := []struct {
		name       string
		policy     AggregationPolicy
		aggregates map[int]float64
		want       float64
		wantErr    error
	}{
		{
			name:    "no clusters",
			policy:  AggregationPolicy{Overall: OverallMean},
			wantErr: ErrClusterNotRated,
		},
		{
			name:       "simple mean",
			policy:     AggregationPolicy{Overall: OverallMean},
			aggregates: map[int]float64{1: 1300, 2: 1000},
			want:       1150,
		},
		{
			name:       "weighted mean",
			policy:     AggregationPolicy{Overall: OverallWeighted},
			aggregates: map[int]float64{1: 1300, 2: 1000},
			want:       1200, // (2*1300 + 1*1000) / 3
		},
		{
			name:       "weighted with absent cluster contributes nothing",
			policy:     AggregationPolicy{Overall: OverallWeighted},
			aggregates: map[int]float64{2: 1000},
			want:       1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.OverallAggregate(tt.aggregates, weights)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("OverallAggregate: %v", err)
			}
			if !almostEqual(got, tt.want) {
				t.Errorf("overall = %v, want %v", got, tt.want)
			}
		})
	}
}

// Determinism: the calculator is pure, so repeated runs over the same
// input must agree bit for bit.
func TestHierarchy_Deterministic(t *testing.T) {
	policy := AggregationPolicy{Cluster: ClusterBestN, BestN: 2, Overall: OverallWeighted, RatingFloor: 100}
	registry := testRegistry(t)
	ratings := []*models.PerEventRating{
		rating("evt-a", 1207.5), rating("evt-b", 1207.5), rating("evt-c", 991.25), rating("evt-d", 1500),
	}

	first, err := policy.Hierarchy("p1", ratings, registry)
	if err != nil {
		t.Fatalf("Hierarchy: %v", err)
	}
	for i := 0; i < 50; i++ {
		next, err := policy.Hierarchy("p1", ratings, registry)
		if err != nil {
			t.Fatalf("Hierarchy: %v", err)
		}
		if next.Overall != first.Overall {
			t.Fatalf("run %d: overall %v != %v", i, next.Overall, first.Overall)
		}
		for n, agg := range first.Clusters {
			if next.Clusters[n] != agg {
				t.Fatalf("run %d: cluster %d %v != %v", i, n, next.Clusters[n], agg)
			}
		}
	}
}
