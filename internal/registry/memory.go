// internal/registry/memory.go
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/group"
	"github.com/kmerland/hubdispo-sub001/internal/models"
)

// MemoryRegistry is the in-memory GroupRegistry backing used by tests and by
// deployments without a database. An RWMutex keeps the lane scans concurrent
// while Save takes the write path.
type MemoryRegistry struct {
	mu     sync.RWMutex
	groups map[string]*group.Group
	byLane map[string][]string // laneKey -> group IDs, insertion order
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		groups: make(map[string]*group.Group),
		byLane: make(map[string][]string),
	}
}

func (r *MemoryRegistry) Save(ctx context.Context, g *group.Group) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.groups[g.ID()]; !known {
		r.byLane[g.LaneKey()] = append(r.byLane[g.LaneKey()], g.ID())
	}
	r.groups[g.ID()] = g
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, id string) (*group.Group, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

func (r *MemoryRegistry) ListByLane(ctx context.Context, laneKey string, now time.Time, statuses ...models.GroupStatus) ([]*group.Group, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*group.Group
	for _, id := range r.byLane[laneKey] {
		g := r.groups[id]
		if statusMatches(g.Status(now), statuses) {
			result = append(result, g)
		}
	}
	return result, nil
}

func (r *MemoryRegistry) ListDeparting(ctx context.Context, before time.Time) ([]*group.Group, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*group.Group
	for _, g := range r.groups {
		switch g.Phase() {
		case models.StatusDeparted, models.StatusArchived, models.StatusCancelled:
			continue
		}
		if !g.DepartureAt().After(before) {
			result = append(result, g)
		}
	}
	return result, nil
}
