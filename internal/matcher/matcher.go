// internal/matcher/matcher.go

package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kmerland/hubdispo-sub001/internal/compatibility"
	"github.com/kmerland/hubdispo-sub001/internal/group"
	"github.com/kmerland/hubdispo-sub001/internal/models"
	"github.com/kmerland/hubdispo-sub001/internal/pricing"
	"github.com/kmerland/hubdispo-sub001/internal/registry"
)

// ErrInvalidShipment is the matcher's only terminal failure: bad input is
// the caller's fault and is never retried. Everything else (capacity races,
// compatibility misses) is absorbed by trying the next candidate or seeding
// a new group.
var ErrInvalidShipment = errors.New("invalid shipment")

// LaneDefaults seeds a new group when no open group can take a shipment.
type LaneDefaults struct {
	MaxWeightKg     float64
	MaxVolumeM3     float64
	MinParticipants int
	MaxParticipants int
	// DepartureWindow approximates the next scheduled lane slot.
	DepartureWindow time.Duration
}

func DefaultLaneDefaults() LaneDefaults {
	return LaneDefaults{
		MaxWeightKg:     600,
		MaxVolumeM3:     2.0,
		MinParticipants: 3,
		MaxParticipants: 12,
		DepartureWindow: 72 * time.Hour,
	}
}

// Matcher finds the best open group for a shipment, or creates one. Cross-
// group it takes no lock: each candidate join is tried independently and a
// failure just moves on, so there is no lock nesting and no deadlock risk.
type Matcher struct {
	registry   registry.GroupRegistry
	scorer     *compatibility.Scorer
	rates      pricing.RateProvider
	defaults   LaneDefaults
	thresholds group.Thresholds
}

func New(reg registry.GroupRegistry, scorer *compatibility.Scorer, rates pricing.RateProvider, defaults LaneDefaults, thresholds group.Thresholds) *Matcher {
	return &Matcher{
		registry:   reg,
		scorer:     scorer,
		rates:      rates,
		defaults:   defaults,
		thresholds: thresholds,
	}
}

// MatchResult is what a successful match hands back to the service layer.
type MatchResult struct {
	Group     *group.Group
	Quote     models.SavingsQuote
	Created   bool // true when the matcher seeded a new group
	OldStatus models.GroupStatus
	NewStatus models.GroupStatus
}

// Match places the shipment into a group. It never fails for a valid
// shipment: when no candidate survives filtering or every join loses a
// capacity race, a fresh group is created with the shipment as its sole
// participant. Retries are bounded by the number of candidates scanned.
func (m *Matcher) Match(ctx context.Context, s models.Shipment, override bool, now time.Time) (MatchResult, error) {
	if err := validate(s, now); err != nil {
		return MatchResult{}, err
	}

	rates, err := m.rates.RatesForLane(ctx, s.LaneKey())
	if err != nil {
		return MatchResult{}, fmt.Errorf("rates lookup for lane %s: %w", s.LaneKey(), err)
	}

	candidates, err := m.registry.ListByLane(ctx, s.LaneKey(), now, models.StatusOpen, models.StatusClosing)
	if err != nil {
		return MatchResult{}, fmt.Errorf("lane scan for %s: %w", s.LaneKey(), err)
	}

	ranked := m.rank(s, candidates, override, now)
	for _, g := range ranked {
		res, err := g.Join(s, override, rates, now)
		if err != nil {
			// Lost a race (capacity, lock, duplicate) between scan and
			// join. Non-fatal: the next candidate gets its chance.
			log.Printf("[Matcher] candidate %s rejected shipment %s: %v", g.ID(), s.ID, err)
			continue
		}
		if err := m.registry.Save(ctx, g); err != nil {
			return MatchResult{}, fmt.Errorf("persist group %s: %w", g.ID(), err)
		}
		return MatchResult{
			Group:     g,
			Quote:     res.Quote,
			OldStatus: res.OldStatus,
			NewStatus: res.NewStatus,
		}, nil
	}

	return m.seedGroup(ctx, s, override, rates, now)
}

// rank filters the lane's candidates and orders the survivors: fullest
// resulting utilization first (denser groups save more and depart more
// reliably), soonest departure as the tie-break.
func (m *Matcher) rank(s models.Shipment, candidates []*group.Group, override bool, now time.Time) []*group.Group {
	type scored struct {
		g    *group.Group
		util float64
	}
	var survivors []scored
	for _, g := range candidates {
		if !s.Deadline.IsZero() && g.DepartureAt().After(s.Deadline) {
			continue
		}
		if !override && g.ScoreCandidate(s.Category) == compatibility.TierLow {
			continue
		}
		if !g.Fits(s.WeightKg, s.VolumeM3) {
			continue
		}
		survivors = append(survivors, scored{g: g, util: g.ProjectedUtilization(s.WeightKg, s.VolumeM3)})
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].util != survivors[j].util {
			return survivors[i].util > survivors[j].util
		}
		return survivors[i].g.DepartureAt().Before(survivors[j].g.DepartureAt())
	})
	ranked := make([]*group.Group, len(survivors))
	for i, sc := range survivors {
		ranked[i] = sc.g
	}
	return ranked
}

// seedGroup creates a new group on the shipment's lane with the default
// capacity limits and the next departure slot, clamped to the shipment's
// deadline when that comes sooner.
func (m *Matcher) seedGroup(ctx context.Context, s models.Shipment, override bool, rates models.LaneRates, now time.Time) (MatchResult, error) {
	departure := now.Add(m.defaults.DepartureWindow)
	if !s.Deadline.IsZero() && departure.After(s.Deadline) {
		// Deadlines are validated to be in the future, so the clamped slot
		// stays ahead of now.
		departure = s.Deadline
	}

	g := group.New(group.Config{
		ID:              uuid.New().String(),
		LaneKey:         s.LaneKey(),
		Destination:     s.Destination,
		CoordinatorID:   s.OwnerID, // the founding shipper coordinates by default
		DepartureAt:     departure,
		MinParticipants: m.defaults.MinParticipants,
		MaxParticipants: m.defaults.MaxParticipants,
		MaxWeightKg:     m.defaults.MaxWeightKg,
		MaxVolumeM3:     m.defaults.MaxVolumeM3,
		Thresholds:      m.thresholds,
	}, m.scorer)

	res, err := g.Join(s, override, rates, now)
	if err != nil {
		// The only way a join into an empty default-sized group fails is a
		// shipment bigger than the lane itself. That is caller error.
		return MatchResult{}, fmt.Errorf("%w: exceeds lane capacity limits (%s)", ErrInvalidShipment, s.ID)
	}
	if err := m.registry.Save(ctx, g); err != nil {
		return MatchResult{}, fmt.Errorf("persist new group %s: %w", g.ID(), err)
	}
	log.Printf("[Matcher] created group %s on lane %s for shipment %s", g.ID(), s.LaneKey(), s.ID)
	return MatchResult{
		Group:     g,
		Quote:     res.Quote,
		Created:   true,
		OldStatus: res.OldStatus,
		NewStatus: res.NewStatus,
	}, nil
}

func validate(s models.Shipment, now time.Time) error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: missing shipment id", ErrInvalidShipment)
	case s.OriginHub == "" || s.Destination == "":
		return fmt.Errorf("%w: missing origin hub or destination", ErrInvalidShipment)
	case s.WeightKg <= 0:
		return fmt.Errorf("%w: weight must be positive, got %v", ErrInvalidShipment, s.WeightKg)
	case s.VolumeM3 <= 0:
		return fmt.Errorf("%w: volume must be positive, got %v", ErrInvalidShipment, s.VolumeM3)
	case !s.Deadline.IsZero() && !s.Deadline.After(now):
		// No departure can honor a deadline that already passed, so a seeded
		// group would be born in violation of it.
		return fmt.Errorf("%w: deadline %s already passed", ErrInvalidShipment, s.Deadline.Format(time.RFC3339))
	}
	return nil
}
