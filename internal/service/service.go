// internal/service/service.go

package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/matcher"
	"github.com/kmerland/hubdispo-sub001/internal/models"
	"github.com/kmerland/hubdispo-sub001/internal/pricing"
	"github.com/kmerland/hubdispo-sub001/internal/registry"
	pkgkafka "github.com/kmerland/hubdispo-sub001/pkg/kafka"
)

// ConsolidationService is the engine's boundary: shipment intake calls
// SubmitShipment, operators lock and depart groups, the UI lists open groups.
// It owns no transport of its own; integration happens through these methods
// and the events published on the group topic.
type ConsolidationService struct {
	registry registry.GroupRegistry
	matcher  *matcher.Matcher
	rates    pricing.RateProvider
	producer pkgkafka.Publisher
	now      func() time.Time
}

func NewConsolidationService(reg registry.GroupRegistry, m *matcher.Matcher, rates pricing.RateProvider, producer pkgkafka.Publisher) *ConsolidationService {
	return &ConsolidationService{
		registry: reg,
		matcher:  m,
		rates:    rates,
		producer: producer,
		now:      time.Now,
	}
}

// ShipmentInput is what shipment intake hands over for matching.
type ShipmentInput struct {
	ID          string
	OwnerID     string
	OriginHub   string
	Destination string
	WeightKg    float64
	VolumeM3    float64
	Category    models.GoodsCategory
	ValueCents  int64
	Deadline    time.Time
	// AllowIncompatible is the explicit operator/owner override for a LOW
	// compatibility verdict. The engine only honors the decision, it is
	// made elsewhere.
	AllowIncompatible bool
}

// MatchOutcome is returned to the intake caller on a successful join.
type MatchOutcome struct {
	GroupID     string
	GroupStatus models.GroupStatus
	DepartureAt time.Time
	Quote       models.SavingsQuote
}

// SubmitShipment matches a new shipment into a consolidation group. The only
// error a caller ever sees is matcher.ErrInvalidShipment; capacity races and
// compatibility misses are absorbed inside the matcher.
func (s *ConsolidationService) SubmitShipment(ctx context.Context, in ShipmentInput) (MatchOutcome, error) {
	category := in.Category
	if category == "" {
		category = models.CategoryGeneral
	}
	shipment := models.Shipment{
		ID:          in.ID,
		OwnerID:     in.OwnerID,
		OriginHub:   in.OriginHub,
		Destination: in.Destination,
		WeightKg:    in.WeightKg,
		VolumeM3:    in.VolumeM3,
		Category:    category,
		ValueCents:  in.ValueCents,
		Deadline:    in.Deadline,
	}

	res, err := s.matcher.Match(ctx, shipment, in.AllowIncompatible, s.now())
	if err != nil {
		return MatchOutcome{}, err
	}

	if res.Created {
		s.publish(ctx, res.Group.ID(), EventGroupCreated, GroupCreatedPayload{
			GroupID:     res.Group.ID(),
			LaneKey:     res.Group.LaneKey(),
			Destination: res.Group.Destination(),
			DepartureAt: res.Group.DepartureAt(),
		})
	}
	s.publish(ctx, res.Group.ID(), EventParticipantJoined, ParticipantJoinedPayload{
		GroupID:    res.Group.ID(),
		ShipmentID: shipment.ID,
		OwnerID:    shipment.OwnerID,
		Quote:      res.Quote,
	})
	s.publishStatusChange(ctx, res.Group.ID(), res.OldStatus, res.NewStatus)

	return MatchOutcome{
		GroupID:     res.Group.ID(),
		GroupStatus: res.NewStatus,
		DepartureAt: res.Group.DepartureAt(),
		Quote:       res.Quote,
	}, nil
}

// LeaveGroup removes a shipment from its group. Safe to call twice: the
// second call surfaces group.ErrNotAParticipant, which callers treat as a
// no-op signal.
func (s *ConsolidationService) LeaveGroup(ctx context.Context, groupID, shipmentID string) error {
	g, err := s.registry.Get(ctx, groupID)
	if err != nil {
		return err
	}
	res, err := g.Leave(shipmentID, s.now())
	if err != nil {
		return err
	}
	if err := s.registry.Save(ctx, g); err != nil {
		return fmt.Errorf("persist group %s: %w", groupID, err)
	}
	s.publish(ctx, groupID, EventParticipantLeft, ParticipantLeftPayload{
		GroupID:    groupID,
		ShipmentID: shipmentID,
	})
	s.publishStatusChange(ctx, groupID, res.OldStatus, res.NewStatus)
	return nil
}

// LockGroup freezes a group for departure. Fails with
// group.ErrBelowMinimumParticipants when the departure would be underfilled.
func (s *ConsolidationService) LockGroup(ctx context.Context, groupID string) error {
	g, err := s.registry.Get(ctx, groupID)
	if err != nil {
		return err
	}
	old, err := g.Lock(s.now())
	if err != nil {
		return err
	}
	if err := s.registry.Save(ctx, g); err != nil {
		return fmt.Errorf("persist group %s: %w", groupID, err)
	}
	s.publishStatusChange(ctx, groupID, old, models.StatusLocked)
	return nil
}

// DepartGroup marks the physical departure and hands the frozen manifest to
// the tracking collaborator via the group.departed event.
func (s *ConsolidationService) DepartGroup(ctx context.Context, groupID string) (models.Manifest, error) {
	g, err := s.registry.Get(ctx, groupID)
	if err != nil {
		return models.Manifest{}, err
	}
	manifest, err := g.Depart(s.now())
	if err != nil {
		return models.Manifest{}, err
	}
	if err := s.registry.Save(ctx, g); err != nil {
		return models.Manifest{}, fmt.Errorf("persist group %s: %w", groupID, err)
	}
	s.publish(ctx, groupID, EventGroupDeparted, GroupDepartedPayload{Manifest: manifest})
	s.publishStatusChange(ctx, groupID, models.StatusLocked, models.StatusDeparted)
	return manifest, nil
}

// ArchiveGroup retires a departed group once the post-departure tracking
// handoff is complete. Terminal; kept only for historical reporting.
func (s *ConsolidationService) ArchiveGroup(ctx context.Context, groupID string) error {
	g, err := s.registry.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if err := g.Archive(); err != nil {
		return err
	}
	if err := s.registry.Save(ctx, g); err != nil {
		return fmt.Errorf("persist group %s: %w", groupID, err)
	}
	s.publishStatusChange(ctx, groupID, models.StatusDeparted, models.StatusArchived)
	return nil
}

// CancelExpiredGroups dissolves groups that reached their departure deadline
// below minimum participants and re-submits every orphaned shipment through
// the matcher. Returns how many groups were cancelled.
func (s *ConsolidationService) CancelExpiredGroups(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.registry.ListDeparting(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("scan departing groups: %w", err)
	}

	var cancelled int
	for _, g := range due {
		if g.ParticipantCount() >= g.MinParticipants() {
			// Filled enough to depart; locking is the operator's call.
			continue
		}
		orphans, err := g.Cancel(now)
		if err != nil {
			// Raced with a lock or another sweep. Nothing to do here.
			log.Printf("[Sweeper] skipping group %s: %v", g.ID(), err)
			continue
		}
		if err := s.registry.Save(ctx, g); err != nil {
			return cancelled, fmt.Errorf("persist cancelled group %s: %w", g.ID(), err)
		}
		cancelled++

		ids := make([]string, len(orphans))
		for i, p := range orphans {
			ids[i] = p.ShipmentID
		}
		s.publish(ctx, g.ID(), EventGroupCancelled, GroupCancelledPayload{
			GroupID:     g.ID(),
			LaneKey:     g.LaneKey(),
			ShipmentIDs: ids,
		})

		originHub, destination := models.SplitLaneKey(g.LaneKey())
		for _, p := range orphans {
			_, err := s.SubmitShipment(ctx, ShipmentInput{
				ID:          p.ShipmentID,
				OwnerID:     p.OwnerID,
				OriginHub:   originHub,
				Destination: destination,
				WeightKg:    p.WeightKg,
				VolumeM3:    p.VolumeM3,
				Category:    p.Category,
			})
			if err != nil {
				// Re-submission is best effort; the orphan stays with the
				// intake subsystem for manual handling.
				log.Printf("[Sweeper] failed to re-match shipment %s from cancelled group %s: %v", p.ShipmentID, g.ID(), err)
			}
		}
	}
	return cancelled, nil
}

// ListOpenGroups serves the UI listing for a lane: destination, fill rate,
// savings estimate and departure time of every joinable group. Read-only.
func (s *ConsolidationService) ListOpenGroups(ctx context.Context, laneKey string) ([]models.GroupSummary, error) {
	rates, err := s.rates.RatesForLane(ctx, laneKey)
	if err != nil {
		return nil, fmt.Errorf("rates lookup for lane %s: %w", laneKey, err)
	}
	now := s.now()
	groups, err := s.registry.ListByLane(ctx, laneKey, now, models.StatusOpen, models.StatusClosing)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.GroupSummary, len(groups))
	for i, g := range groups {
		summaries[i] = g.Summary(now, rates)
	}
	return summaries, nil
}

// publish emits one event envelope on the group topic. Delivery is best
// effort: a broker hiccup is logged, never surfaced to the business call.
func (s *ConsolidationService) publish(ctx context.Context, key, event string, payload interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, key, pkgkafka.Envelope{Event: event, Payload: payload}); err != nil {
		log.Printf("failed to publish %s for %s: %v", event, key, err)
	}
}

func (s *ConsolidationService) publishStatusChange(ctx context.Context, groupID string, oldStatus, newStatus models.GroupStatus) {
	if oldStatus == newStatus {
		return
	}
	s.publish(ctx, groupID, EventGroupStatusChanged, GroupStatusChangedPayload{
		GroupID:   groupID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
}
