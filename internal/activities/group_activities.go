// internal/activities/group_activities.go

package activities

import (
	"context"
	"errors"

	"github.com/kmerland/hubdispo-sub001/internal/group"
	"github.com/kmerland/hubdispo-sub001/internal/models"
	"github.com/kmerland/hubdispo-sub001/internal/service"
)

// GroupActivities hosts the departure steps Temporal drives. Each activity is
// a thin wrapper around the service so retries replay business rules, not
// ad-hoc SQL.
type GroupActivities struct {
	Service *service.ConsolidationService
}

// ACTIVITY_LockGroup freezes the group roster. A group that dropped below
// its minimum between scheduling and execution fails the activity; the
// workflow decides whether to cancel instead.
func (a *GroupActivities) ACTIVITY_LockGroup(ctx context.Context, groupID string) error {
	err := a.Service.LockGroup(ctx, groupID)
	if errors.Is(err, group.ErrGroupLocked) {
		// Already locked by an operator or an earlier retry. Idempotent.
		return nil
	}
	return err
}

// ACTIVITY_DepartGroup records the physical departure and returns the frozen
// manifest for the workflow's history.
func (a *GroupActivities) ACTIVITY_DepartGroup(ctx context.Context, groupID string) (models.Manifest, error) {
	manifest, err := a.Service.DepartGroup(ctx, groupID)
	if errors.Is(err, group.ErrGroupNotLocked) {
		// A retry after a crash can find the group already DEPARTED.
		return models.Manifest{}, err
	}
	return manifest, err
}

// ACTIVITY_ArchiveGroup retires the group once post-departure handoff is done.
func (a *GroupActivities) ACTIVITY_ArchiveGroup(ctx context.Context, groupID string) error {
	return a.Service.ArchiveGroup(ctx, groupID)
}

// ACTIVITY_SweepExpiredGroups runs one cancellation pass. Used by the
// scheduled cleanup workflow as a durable alternative to the in-process
// sweeper.
func (a *GroupActivities) ACTIVITY_SweepExpiredGroups(ctx context.Context) (int, error) {
	return a.Service.CancelExpiredGroups(ctx)
}
