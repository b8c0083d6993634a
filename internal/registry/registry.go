// internal/registry/registry.go
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/group"
	"github.com/kmerland/hubdispo-sub001/internal/models"
)

// ErrGroupNotFound matches standard 404 behavior.
var ErrGroupNotFound = errors.New("consolidation group not found")

// ErrStaleGroup rejects a save whose in-memory copy lost a cross-process
// write race. The caller re-reads the group and retries its operation.
var ErrStaleGroup = errors.New("consolidation group was modified by another writer")

// GroupRegistry is the index of groups by lane and status. The matcher's
// read-heavy scans go through ListByLane; per-group mutation stays behind
// each group's own lock, so lookups never serialize against joins.
type GroupRegistry interface {
	// Save inserts a new group or updates the persisted state of a known one.
	Save(ctx context.Context, g *group.Group) error

	// Get retrieves one group by ID.
	Get(ctx context.Context, id string) (*group.Group, error)

	// ListByLane returns the lane's groups whose derived status at `now` is
	// one of the given statuses (all groups when none are given).
	ListByLane(ctx context.Context, laneKey string, now time.Time, statuses ...models.GroupStatus) ([]*group.Group, error)

	// ListDeparting returns non-terminal groups whose departure time is at
	// or before the given instant, across all lanes. Feeds the cancellation
	// sweeper.
	ListDeparting(ctx context.Context, before time.Time) ([]*group.Group, error)
}

func statusMatches(status models.GroupStatus, wanted []models.GroupStatus) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if status == w {
			return true
		}
	}
	return false
}
