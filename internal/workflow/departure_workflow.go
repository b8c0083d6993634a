// internal/workflow/departure_workflow.go

package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/kmerland/hubdispo-sub001/internal/models"
)

// DepartureInput starts one departure run for a group.
type DepartureInput struct {
	GroupID     string
	DepartureAt time.Time
	// ArchiveAfter is how long the departed group stays visible before it is
	// archived. Zero means archive immediately.
	ArchiveAfter time.Duration
}

// DepartureWorkflow drives a group through its final lifecycle: wait for the
// scheduled slot, lock the roster, record the departure, archive after the
// grace period. Temporal retries each step, so a broker or DB outage at
// departure time delays the run instead of losing it.
func DepartureWorkflow(ctx workflow.Context, in DepartureInput) (models.Manifest, error) {

	retrypolicy := &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    100,
	}

	options := workflow.ActivityOptions{
		StartToCloseTimeout: time.Second * 10,
		RetryPolicy:         retrypolicy,
	}

	ctx = workflow.WithActivityOptions(ctx, options)

	// Step 0: sleep until the scheduled departure slot.
	now := workflow.Now(ctx)
	if in.DepartureAt.After(now) {
		if err := workflow.Sleep(ctx, in.DepartureAt.Sub(now)); err != nil {
			return models.Manifest{}, err
		}
	}

	// Step 1: freeze the roster. A below-minimum group fails here and the
	// failure surfaces in the workflow history for the operator.
	err := workflow.ExecuteActivity(ctx, "ACTIVITY_LockGroup", in.GroupID).Get(ctx, nil)
	if err != nil {
		return models.Manifest{}, err
	}

	// Step 2: record the physical departure and capture the manifest.
	var manifest models.Manifest
	err = workflow.ExecuteActivity(ctx, "ACTIVITY_DepartGroup", in.GroupID).Get(ctx, &manifest)
	if err != nil {
		return models.Manifest{}, err
	}

	// Step 3: keep the departed group visible for the grace period, then
	// archive it.
	if in.ArchiveAfter > 0 {
		if err := workflow.Sleep(ctx, in.ArchiveAfter); err != nil {
			return manifest, err
		}
	}
	err = workflow.ExecuteActivity(ctx, "ACTIVITY_ArchiveGroup", in.GroupID).Get(ctx, nil)
	if err != nil {
		return manifest, err
	}

	return manifest, nil
}

// SweepWorkflow runs one durable cancellation pass over overdue groups.
// Scheduled via a Temporal cron when the in-process sweeper is not enough.
func SweepWorkflow(ctx workflow.Context) (int, error) {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)

	var cancelled int
	err := workflow.ExecuteActivity(ctx, "ACTIVITY_SweepExpiredGroups").Get(ctx, &cancelled)
	return cancelled, err
}
