package logic

import (
	"fmt"

	"github.com/tourneynet/ratings-api/internal/models"
)

// Registry is the immutable cluster/event layout of the tournament,
// built once at startup. It gives the calculator the event→cluster
// mapping and the weighted overall policy its weights.
type Registry struct {
	clusters map[int]models.Cluster
	events   map[string]models.Event
}

func NewRegistry(clusters []models.Cluster, events []models.Event) (*Registry, error) {
	r := &Registry{
		clusters: make(map[int]models.Cluster, len(clusters)),
		events:   make(map[string]models.Event, len(events)),
	}
	for _, c := range clusters {
		if _, dup := r.clusters[c.Number]; dup {
			return nil, fmt.Errorf("duplicate cluster number %d", c.Number)
		}
		r.clusters[c.Number] = c
	}
	for _, e := range events {
		if _, ok := r.clusters[e.ClusterNumber]; !ok {
			return nil, fmt.Errorf("event %q references unknown cluster %d", e.ID, e.ClusterNumber)
		}
		if _, dup := r.events[e.ID]; dup {
			return nil, fmt.Errorf("duplicate event %q", e.ID)
		}
		r.events[e.ID] = e
	}
	return r, nil
}

func (r *Registry) Event(id string) (models.Event, bool) {
	e, ok := r.events[id]
	return e, ok
}

func (r *Registry) Cluster(number int) (models.Cluster, bool) {
	c, ok := r.clusters[number]
	return c, ok
}

// Weights returns cluster number → weight for the weighted overall
// policy.
func (r *Registry) Weights() map[int]float64 {
	out := make(map[int]float64, len(r.clusters))
	for n, c := range r.clusters {
		out[n] = c.Weight
	}
	return out
}

// ClusterName resolves a display name, falling back to the number.
func (r *Registry) ClusterName(number int) string {
	if c, ok := r.clusters[number]; ok {
		return c.Name
	}
	return fmt.Sprintf("cluster-%d", number)
}
