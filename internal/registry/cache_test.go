// internal/registry/cache_test.go
package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/compatibility"
	"github.com/kmerland/hubdispo-sub001/internal/group"
	"github.com/kmerland/hubdispo-sub001/internal/models"
)

var cacheNow = time.Date(2026, 9, 3, 8, 0, 0, 0, time.UTC)

func restoredCopy(t *testing.T, participants ...group.Participant) *group.Group {
	t.Helper()
	g, err := group.Restore(group.Config{
		ID:              "g1",
		LaneKey:         "BRU:DE",
		Destination:     "DE",
		DepartureAt:     cacheNow.Add(time.Hour),
		MinParticipants: 3,
		MaxParticipants: 40,
		MaxWeightKg:     600,
		MaxVolumeM3:     2.0,
		Thresholds:      group.DefaultThresholds(),
	}, models.StatusOpen, participants, compatibility.NewScorer())
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	return g
}

func participant(id string) group.Participant {
	return group.Participant{
		ShipmentID: id,
		OwnerID:    "owner-" + id,
		Category:   models.CategoryGeneral,
		WeightKg:   50,
		VolumeM3:   0.2,
		JoinedAt:   cacheNow,
	}
}

func cacheRates() models.LaneRates {
	return models.LaneRates{IndividualRateCents: 120, ConsolidatedRateCents: 80, DimFactor: 200}
}

// Two readers rehydrating the same row must end up mutating one shared
// instance: a join through the first handle is visible through the second.
func TestGroupCacheResolvesOneInstance(t *testing.T) {
	c := newGroupCache()

	first := c.intern(restoredCopy(t, participant("p1"), participant("p2")), 1)
	second := c.intern(restoredCopy(t, participant("p1"), participant("p2")), 1)
	if first != second {
		t.Fatal("expected both loads to resolve to the same instance")
	}

	s := models.Shipment{
		ID: "p3", OwnerID: "owner-p3", OriginHub: "BRU", Destination: "DE",
		WeightKg: 50, VolumeM3: 0.2, Category: models.CategoryGeneral,
	}
	if _, err := first.Join(s, false, cacheRates(), cacheNow); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if second.ParticipantCount() != 3 {
		t.Errorf("join through one handle invisible through the other: got %d participants", second.ParticipantCount())
	}
}

// The sweeper cancelling through one handle while intake joined through
// another must not lose the late joiner: with one canonical instance the
// cancel returns every admitted participant as an orphan.
func TestGroupCacheCancelSeesConcurrentJoin(t *testing.T) {
	c := newGroupCache()

	intakeHandle := c.intern(restoredCopy(t, participant("p1"), participant("p2")), 1)
	sweeperHandle := c.intern(restoredCopy(t, participant("p1"), participant("p2")), 1)

	s := models.Shipment{
		ID: "p3", OwnerID: "owner-p3", OriginHub: "BRU", Destination: "DE",
		WeightKg: 50, VolumeM3: 0.2, Category: models.CategoryGeneral,
	}
	if _, err := intakeHandle.Join(s, false, cacheRates(), cacheNow); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	orphans, err := sweeperHandle.Cancel(cacheNow.Add(2 * time.Hour))
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if len(orphans) != 3 {
		t.Fatalf("expected 3 orphans including the late joiner, got %d", len(orphans))
	}
	var sawLateJoiner bool
	for _, p := range orphans {
		if p.ShipmentID == "p3" {
			sawLateJoiner = true
		}
	}
	if !sawLateJoiner {
		t.Error("the late joiner was dropped by the cancel")
	}
	// The join is rejected on the now-cancelled shared instance too.
	if _, err := intakeHandle.Join(models.Shipment{
		ID: "p4", OwnerID: "o", OriginHub: "BRU", Destination: "DE",
		WeightKg: 10, VolumeM3: 0.1, Category: models.CategoryGeneral,
	}, false, cacheRates(), cacheNow); err == nil {
		t.Error("expected join on cancelled group to fail")
	}
}

// A copy at a newer row version means another process wrote the row; the
// newer copy becomes canonical and the old version is forgotten.
func TestGroupCacheNewerVersionReplaces(t *testing.T) {
	c := newGroupCache()

	old := c.intern(restoredCopy(t, participant("p1")), 1)
	fresh := restoredCopy(t, participant("p1"), participant("p2"))
	got := c.intern(fresh, 2)
	if got != fresh {
		t.Fatal("expected the newer-version copy to become canonical")
	}
	if got == old {
		t.Fatal("stale instance must not stay canonical")
	}
	if v := c.version("g1"); v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}
	// An older or equal version never displaces the canonical instance.
	if again := c.intern(restoredCopy(t, participant("p1")), 1); again != fresh {
		t.Error("older-version copy displaced the canonical instance")
	}
}

func TestGroupCacheDrop(t *testing.T) {
	c := newGroupCache()
	c.put(restoredCopy(t, participant("p1")), 3)
	c.drop("g1")
	if _, ok := c.get("g1"); ok {
		t.Error("expected eviction")
	}
	if v := c.version("g1"); v != 0 {
		t.Errorf("expected version reset to 0, got %d", v)
	}
}

// Concurrent cache misses racing to intern their own copies still converge
// on one instance, and every successful join lands on it.
func TestGroupCacheConcurrentIntern(t *testing.T) {
	c := newGroupCache()

	const readers = 16
	var wg sync.WaitGroup
	instances := make([]*group.Group, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			g := c.intern(restoredCopy(t, participant("p1")), 1)
			instances[n] = g
			s := models.Shipment{
				ID: fmt.Sprintf("c-%d", n), OwnerID: "o", OriginHub: "BRU", Destination: "DE",
				WeightKg: 20, VolumeM3: 0.05, Category: models.CategoryGeneral,
			}
			if _, err := g.Join(s, false, cacheRates(), cacheNow); err != nil {
				t.Errorf("join failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	canonical, ok := c.get("g1")
	if !ok {
		t.Fatal("group missing from cache")
	}
	for i, g := range instances {
		if g != canonical {
			t.Fatalf("reader %d got a non-canonical instance", i)
		}
	}
	if got := canonical.ParticipantCount(); got != readers+1 {
		t.Errorf("expected %d participants, got %d", readers+1, got)
	}
}
