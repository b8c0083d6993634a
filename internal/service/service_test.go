// internal/service/service_test.go
package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/compatibility"
	"github.com/kmerland/hubdispo-sub001/internal/group"
	"github.com/kmerland/hubdispo-sub001/internal/matcher"
	"github.com/kmerland/hubdispo-sub001/internal/models"
	"github.com/kmerland/hubdispo-sub001/internal/pricing"
	"github.com/kmerland/hubdispo-sub001/internal/registry"
	pkgkafka "github.com/kmerland/hubdispo-sub001/pkg/kafka"
)

// --- MOCKS ---

// mockPublisher records every event envelope published.
type mockPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	key     string
	event   string
	payload interface{}
}

func (m *mockPublisher) Publish(ctx context.Context, key string, evt pkgkafka.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, publishedEvent{
		key:     key,
		event:   evt.Event,
		payload: evt.Payload,
	})
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.event
	}
	return out
}

func (m *mockPublisher) count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, e := range m.events {
		if e.event == event {
			n++
		}
	}
	return n
}

var testNow = time.Date(2026, 9, 3, 8, 0, 0, 0, time.UTC)

func newTestService() (*ConsolidationService, *registry.MemoryRegistry, *mockPublisher) {
	reg := registry.NewMemoryRegistry()
	scorer := compatibility.NewScorer()
	rates := pricing.NewStaticRates(nil, models.LaneRates{
		IndividualRateCents:   120,
		ConsolidatedRateCents: 80,
		DimFactor:             200,
	})
	m := matcher.New(reg, scorer, rates, matcher.DefaultLaneDefaults(), group.DefaultThresholds())
	pub := &mockPublisher{}
	svc := NewConsolidationService(reg, m, rates, pub)
	svc.now = func() time.Time { return testNow }
	return svc, reg, pub
}

func input(id string, weightKg, volumeM3 float64) ShipmentInput {
	return ShipmentInput{
		ID:          id,
		OwnerID:     "owner-" + id,
		OriginHub:   "BRU",
		Destination: "DE",
		WeightKg:    weightKg,
		VolumeM3:    volumeM3,
		Category:    models.CategoryGeneral,
		Deadline:    testNow.Add(7 * 24 * time.Hour),
	}
}

func TestSubmitShipment_NewGroup(t *testing.T) {
	svc, _, pub := newTestService()

	out, err := svc.SubmitShipment(context.Background(), input("s1", 100, 0.3))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if out.GroupID == "" {
		t.Fatal("expected a group id")
	}
	if out.Quote.SavingsCents <= 0 {
		t.Errorf("expected positive savings, got %d", out.Quote.SavingsCents)
	}
	if out.GroupStatus != models.StatusOpen {
		t.Errorf("expected OPEN group, got %s", out.GroupStatus)
	}

	names := pub.names()
	if len(names) != 2 || names[0] != EventGroupCreated || names[1] != EventParticipantJoined {
		t.Errorf("expected [group.created participant.joined], got %v", names)
	}
}

func TestSubmitShipment_SecondJoinsSameGroup(t *testing.T) {
	svc, _, pub := newTestService()

	first, err := svc.SubmitShipment(context.Background(), input("s1", 100, 0.3))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	second, err := svc.SubmitShipment(context.Background(), input("s2", 50, 0.2))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if first.GroupID != second.GroupID {
		t.Errorf("expected same group, got %s and %s", first.GroupID, second.GroupID)
	}
	if got := pub.count(EventGroupCreated); got != 1 {
		t.Errorf("expected 1 group.created, got %d", got)
	}
	if got := pub.count(EventParticipantJoined); got != 2 {
		t.Errorf("expected 2 participant.joined, got %d", got)
	}
}

func TestSubmitShipment_InvalidInput(t *testing.T) {
	svc, _, pub := newTestService()
	_, err := svc.SubmitShipment(context.Background(), ShipmentInput{ID: "bad"})
	if !errors.Is(err, matcher.ErrInvalidShipment) {
		t.Fatalf("expected ErrInvalidShipment, got %v", err)
	}
	if len(pub.names()) != 0 {
		t.Errorf("invalid input must publish nothing, got %v", pub.names())
	}
}

func TestSubmitShipment_StatusChangeEvent(t *testing.T) {
	svc, _, pub := newTestService()

	// 490/600 = 81.7%: second join pushes the default-lane group past the
	// 80% closing threshold.
	if _, err := svc.SubmitShipment(context.Background(), input("s1", 400, 1.0)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.SubmitShipment(context.Background(), input("s2", 90, 0.2)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if got := pub.count(EventGroupStatusChanged); got != 1 {
		t.Fatalf("expected 1 status change event, got %d", got)
	}
	var payload GroupStatusChangedPayload
	for _, e := range pub.events {
		if e.event == EventGroupStatusChanged {
			payload = e.payload.(GroupStatusChangedPayload)
		}
	}
	if payload.OldStatus != models.StatusOpen || payload.NewStatus != models.StatusClosing {
		t.Errorf("expected OPEN -> CLOSING, got %s -> %s", payload.OldStatus, payload.NewStatus)
	}
}

func TestLeaveGroup(t *testing.T) {
	svc, _, pub := newTestService()
	out, err := svc.SubmitShipment(context.Background(), input("s1", 100, 0.3))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := svc.LeaveGroup(context.Background(), out.GroupID, "s1"); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if got := pub.count(EventParticipantLeft); got != 1 {
		t.Errorf("expected 1 participant.left, got %d", got)
	}
	// Second leave is the idempotent no-op signal.
	if err := svc.LeaveGroup(context.Background(), out.GroupID, "s1"); !errors.Is(err, group.ErrNotAParticipant) {
		t.Errorf("expected ErrNotAParticipant, got %v", err)
	}
	if err := svc.LeaveGroup(context.Background(), "nope", "s1"); !errors.Is(err, registry.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestLockDepartArchiveFlow(t *testing.T) {
	svc, _, pub := newTestService()

	var groupID string
	for _, id := range []string{"s1", "s2", "s3"} {
		out, err := svc.SubmitShipment(context.Background(), input(id, 50, 0.2))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		groupID = out.GroupID
	}

	if _, err := svc.DepartGroup(context.Background(), groupID); !errors.Is(err, group.ErrGroupNotLocked) {
		t.Fatalf("expected ErrGroupNotLocked before lock, got %v", err)
	}
	if err := svc.LockGroup(context.Background(), groupID); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if err := svc.LeaveGroup(context.Background(), groupID, "s1"); !errors.Is(err, group.ErrGroupLocked) {
		t.Errorf("expected ErrGroupLocked after lock, got %v", err)
	}

	manifest, err := svc.DepartGroup(context.Background(), groupID)
	if err != nil {
		t.Fatalf("depart failed: %v", err)
	}
	if len(manifest.ShipmentIDs) != 3 {
		t.Errorf("expected 3 shipments in manifest, got %d", len(manifest.ShipmentIDs))
	}
	if got := pub.count(EventGroupDeparted); got != 1 {
		t.Errorf("expected 1 group.departed, got %d", got)
	}

	if err := svc.ArchiveGroup(context.Background(), groupID); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
}

func TestLockGroup_BelowMinimum(t *testing.T) {
	svc, _, _ := newTestService()
	// Default lane minimum is 3; submit only two.
	var groupID string
	for _, id := range []string{"s1", "s2"} {
		out, err := svc.SubmitShipment(context.Background(), input(id, 50, 0.2))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		groupID = out.GroupID
	}
	if err := svc.LockGroup(context.Background(), groupID); !errors.Is(err, group.ErrBelowMinimumParticipants) {
		t.Fatalf("expected ErrBelowMinimumParticipants, got %v", err)
	}
}

// An underfilled group past its departure deadline is cancelled and its
// participants are re-matched into a fresh group.
func TestCancelExpiredGroups(t *testing.T) {
	svc, reg, pub := newTestService()

	var groupID string
	for _, id := range []string{"s1", "s2"} {
		out, err := svc.SubmitShipment(context.Background(), input(id, 50, 0.2))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		groupID = out.GroupID
	}

	// Move the clock past the group's departure.
	deadline := testNow.Add(72 * time.Hour)
	svc.now = func() time.Time { return deadline.Add(time.Hour) }

	cancelled, err := svc.CancelExpiredGroups(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled group, got %d", cancelled)
	}
	if got := pub.count(EventGroupCancelled); got != 1 {
		t.Errorf("expected 1 group.cancelled, got %d", got)
	}

	old, err := reg.Get(context.Background(), groupID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got := old.Phase(); got != models.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got)
	}

	// Both orphans landed in a new group on the same lane.
	groups, err := reg.ListByLane(context.Background(), "BRU:DE", svc.now(), models.StatusOpen, models.StatusClosing)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 replacement group, got %d", len(groups))
	}
	if !groups[0].HasParticipant("s1") || !groups[0].HasParticipant("s2") {
		t.Error("orphaned shipments were not re-matched")
	}
}

// A filled group past its deadline is NOT swept; departing it is the
// operator's decision.
func TestCancelExpiredGroups_SkipsFilledGroups(t *testing.T) {
	svc, _, pub := newTestService()
	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := svc.SubmitShipment(context.Background(), input(id, 50, 0.2)); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	svc.now = func() time.Time { return testNow.Add(80 * time.Hour) }

	cancelled, err := svc.CancelExpiredGroups(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cancelled != 0 {
		t.Errorf("expected no cancellations, got %d", cancelled)
	}
	if got := pub.count(EventGroupCancelled); got != 0 {
		t.Errorf("expected no group.cancelled events, got %d", got)
	}
}

func TestListOpenGroups(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.SubmitShipment(context.Background(), input("s1", 300, 1.0)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	summaries, err := svc.ListOpenGroups(context.Background(), "BRU:DE")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	sum := summaries[0]
	if sum.ParticipantCount != 1 {
		t.Errorf("expected 1 participant, got %d", sum.ParticipantCount)
	}
	// 300/600 = 50% weight vs 1.0/2.0 = 50% volume.
	if sum.FillPercent != 50 {
		t.Errorf("expected 50%% fill, got %v%%", sum.FillPercent)
	}
	// (120-80)/120 = 33.3% lane savings estimate.
	if sum.EstimatedSavings < 33.3 || sum.EstimatedSavings > 33.4 {
		t.Errorf("expected ~33.3%% savings estimate, got %v%%", sum.EstimatedSavings)
	}

	// Other lanes list nothing.
	empty, err := svc.ListOpenGroups(context.Background(), "BRU:ES")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty listing, got %d", len(empty))
	}
}
