// internal/group/group.go

package group

import (
	"fmt"
	"sync"
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/capacity"
	"github.com/kmerland/hubdispo-sub001/internal/compatibility"
	"github.com/kmerland/hubdispo-sub001/internal/models"
	"github.com/kmerland/hubdispo-sub001/internal/pricing"
)

// Thresholds drives status derivation. OPEN/CLOSING/FULL are never stored:
// they are recomputed from capacity and clock on every read, so a stored
// status field and the fill rate can never disagree.
type Thresholds struct {
	ClosingPct    float64       // soft threshold, urgency signal only
	FullPct       float64       // high-water mark, joins stop here
	DepartureLead time.Duration // groups this close to departure show CLOSING
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ClosingPct:    80,
		FullPct:       95,
		DepartureLead: 24 * time.Hour,
	}
}

// Participant is one shipper's parcel inside a group. Shipments stay owned
// by the intake subsystem; the group only references them by ID.
type Participant struct {
	ShipmentID string
	OwnerID    string
	Category   models.GoodsCategory
	WeightKg   float64
	VolumeM3   float64
	JoinedAt   time.Time
}

// Config is everything needed to seed a new group on a lane.
type Config struct {
	ID              string
	LaneKey         string
	Destination     string
	CoordinatorID   string
	DepartureAt     time.Time
	MinParticipants int
	MaxParticipants int
	MaxWeightKg     float64
	MaxVolumeM3     float64
	Thresholds      Thresholds
}

// Group is the consolidation aggregate: participant list, capacity ledger
// and lifecycle phase, all guarded by one mutex. Every transition (join:
// score -> reserve -> append -> recompute) runs as a single critical section,
// so concurrent shippers racing for the last headroom are serialized and no
// partial state is ever visible.
type Group struct {
	mu            sync.Mutex
	id            string
	laneKey       string
	destination   string
	coordinatorID string
	departureAt   time.Time
	departedAt    time.Time
	minCount      int
	maxCount      int
	// phase holds only explicit lifecycle transitions (LOCKED and beyond).
	// While pre-lock it stays OPEN and the real status is derived.
	phase        models.GroupStatus
	participants []Participant
	tokens       map[string]capacity.ReservationToken
	ledger       *capacity.Ledger
	scorer       *compatibility.Scorer
	thresholds   Thresholds
}

func New(cfg Config, scorer *compatibility.Scorer) *Group {
	if cfg.Thresholds.FullPct == 0 {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Group{
		id:            cfg.ID,
		laneKey:       cfg.LaneKey,
		destination:   cfg.Destination,
		coordinatorID: cfg.CoordinatorID,
		departureAt:   cfg.DepartureAt,
		minCount:      cfg.MinParticipants,
		maxCount:      cfg.MaxParticipants,
		phase:         models.StatusOpen,
		tokens:        make(map[string]capacity.ReservationToken),
		ledger:        capacity.NewLedger(cfg.MaxWeightKg, cfg.MaxVolumeM3),
		scorer:        scorer,
		thresholds:    cfg.Thresholds,
	}
}

// Restore rebuilds a group from persisted state, replaying each participant
// through the ledger so the counters match the stored membership.
func Restore(cfg Config, phase models.GroupStatus, participants []Participant, scorer *compatibility.Scorer) (*Group, error) {
	g := New(cfg, scorer)
	for _, p := range participants {
		token, err := g.ledger.Reserve(p.WeightKg, p.VolumeM3)
		if err != nil {
			return nil, fmt.Errorf("restore group %s: participant %s does not fit persisted capacity: %w", cfg.ID, p.ShipmentID, err)
		}
		g.participants = append(g.participants, p)
		g.tokens[p.ShipmentID] = token
	}
	switch phase {
	case models.StatusLocked, models.StatusDeparted, models.StatusArchived, models.StatusCancelled:
		g.phase = phase
	default:
		g.phase = models.StatusOpen
	}
	return g, nil
}

// JoinResult carries the quote plus the status movement a join caused, so
// the service layer can publish a GroupStatusChanged event without racing a
// second status read.
type JoinResult struct {
	Quote     models.SavingsQuote
	OldStatus models.GroupStatus
	NewStatus models.GroupStatus
}

// Join admits a shipment. Valid only while the derived status is OPEN or
// CLOSING. The whole sequence commits or nothing does: the ledger reserve is
// the only fallible step and the participant append happens after it.
func (g *Group) Join(s models.Shipment, override bool, rates models.LaneRates, now time.Time) (JoinResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked(); err != nil {
		return JoinResult{}, err
	}
	old := g.statusLocked(now)
	if old == models.StatusFull {
		// A group that filled since the matcher scanned it counts as
		// exhausted capacity so the matcher falls through to the next
		// candidate.
		return JoinResult{}, capacity.ErrInsufficientCapacity
	}
	if _, dup := g.tokens[s.ID]; dup {
		return JoinResult{}, ErrAlreadyParticipant
	}
	if tier := g.scorer.Score(s.Category, g.categoriesLocked()); tier == compatibility.TierLow && !override {
		return JoinResult{}, fmt.Errorf("%w: %s against %v", ErrIncompatibleCargo, s.Category, g.categoriesLocked())
	}

	token, err := g.ledger.Reserve(s.WeightKg, s.VolumeM3)
	if err != nil {
		return JoinResult{}, err
	}
	g.participants = append(g.participants, Participant{
		ShipmentID: s.ID,
		OwnerID:    s.OwnerID,
		Category:   s.Category,
		WeightKg:   s.WeightKg,
		VolumeM3:   s.VolumeM3,
		JoinedAt:   now,
	})
	g.tokens[s.ID] = token

	return JoinResult{
		Quote:     pricing.Quote(s.WeightKg, s.VolumeM3, rates),
		OldStatus: old,
		NewStatus: g.statusLocked(now),
	}, nil
}

// LeaveResult reports the status movement a leave caused (a FULL group may
// revert to CLOSING or OPEN).
type LeaveResult struct {
	OldStatus models.GroupStatus
	NewStatus models.GroupStatus
}

// Leave removes a participant and credits its capacity back. Calling it for
// a shipment that is not (or no longer) a member yields ErrNotAParticipant
// and changes no state, which makes cancellation after commit idempotent.
func (g *Group) Leave(shipmentID string, now time.Time) (LeaveResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked(); err != nil {
		return LeaveResult{}, err
	}
	token, ok := g.tokens[shipmentID]
	if !ok {
		return LeaveResult{}, ErrNotAParticipant
	}
	old := g.statusLocked(now)
	if err := g.ledger.Release(token); err != nil {
		return LeaveResult{}, fmt.Errorf("release for %s: %w", shipmentID, err)
	}
	delete(g.tokens, shipmentID)
	for i, p := range g.participants {
		if p.ShipmentID == shipmentID {
			g.participants = append(g.participants[:i], g.participants[i+1:]...)
			break
		}
	}
	return LeaveResult{OldStatus: old, NewStatus: g.statusLocked(now)}, nil
}

// Lock freezes the group for departure. This is the last point at which
// membership was mutable; an underfilled group cannot be locked.
func (g *Group) Lock(now time.Time) (models.GroupStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked(); err != nil {
		return "", err
	}
	if len(g.participants) < g.minCount {
		return "", fmt.Errorf("%w: have %d, need %d", ErrBelowMinimumParticipants, len(g.participants), g.minCount)
	}
	old := g.statusLocked(now)
	g.phase = models.StatusLocked
	return old, nil
}

// Depart hands over the frozen manifest to the tracking collaborator.
func (g *Group) Depart(now time.Time) (models.Manifest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != models.StatusLocked {
		return models.Manifest{}, ErrGroupNotLocked
	}
	g.phase = models.StatusDeparted
	g.departedAt = now

	ids := make([]string, len(g.participants))
	for i, p := range g.participants {
		ids[i] = p.ShipmentID
	}
	return models.Manifest{
		GroupID:     g.id,
		LaneKey:     g.laneKey,
		Destination: g.destination,
		DepartedAt:  now,
		ShipmentIDs: ids,
	}, nil
}

// Archive is the terminal transition after the post-departure handoff.
func (g *Group) Archive() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != models.StatusDeparted {
		return ErrGroupNotDeparted
	}
	g.phase = models.StatusArchived
	return nil
}

// Cancel dissolves an underfilled group at its deadline. All reserved
// capacity is released and the former participants are returned so the
// matcher can re-submit them into other groups.
func (g *Group) Cancel(now time.Time) ([]Participant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked(); err != nil {
		return nil, err
	}
	orphans := make([]Participant, len(g.participants))
	copy(orphans, g.participants)
	for id, token := range g.tokens {
		if err := g.ledger.Release(token); err != nil {
			return nil, fmt.Errorf("cancel release for %s: %w", id, err)
		}
	}
	g.participants = nil
	g.tokens = make(map[string]capacity.ReservationToken)
	g.phase = models.StatusCancelled
	return orphans, nil
}

// SetDeparture reschedules the departure window. Mutable until locked.
func (g *Group) SetDeparture(t time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.mutableLocked(); err != nil {
		return err
	}
	g.departureAt = t
	return nil
}

// mutableLocked rejects membership changes once the lifecycle left the
// mutable phases. Callers hold g.mu.
func (g *Group) mutableLocked() error {
	switch g.phase {
	case models.StatusLocked:
		return ErrGroupLocked
	case models.StatusDeparted, models.StatusArchived, models.StatusCancelled:
		return ErrGroupNotOpen
	}
	return nil
}

// statusLocked derives OPEN/CLOSING/FULL from capacity and clock; explicit
// lifecycle phases pass through. Either saturation past the high-water mark
// or a maxed participant count means FULL (the two conditions are OR'd).
func (g *Group) statusLocked(now time.Time) models.GroupStatus {
	switch g.phase {
	case models.StatusLocked, models.StatusDeparted, models.StatusArchived, models.StatusCancelled:
		return g.phase
	}
	wPct, vPct := g.ledger.Utilization()
	util := wPct
	if vPct > util {
		util = vPct
	}
	if util >= g.thresholds.FullPct || (g.maxCount > 0 && len(g.participants) >= g.maxCount) {
		return models.StatusFull
	}
	if util >= g.thresholds.ClosingPct || g.departureAt.Sub(now) <= g.thresholds.DepartureLead {
		return models.StatusClosing
	}
	return models.StatusOpen
}

func (g *Group) categoriesLocked() []models.GoodsCategory {
	cats := make([]models.GoodsCategory, len(g.participants))
	for i, p := range g.participants {
		cats[i] = p.Category
	}
	return cats
}

// --- read accessors ---

func (g *Group) ID() string          { return g.id }
func (g *Group) LaneKey() string     { return g.laneKey }
func (g *Group) Destination() string { return g.destination }

func (g *Group) Status(now time.Time) models.GroupStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked(now)
}

func (g *Group) DepartureAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.departureAt
}

func (g *Group) ParticipantCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.participants)
}

// Participants returns a copy of the ordered membership.
func (g *Group) Participants() []Participant {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Participant, len(g.participants))
	copy(out, g.participants)
	return out
}

// HasParticipant reports membership by shipment ID.
func (g *Group) HasParticipant(shipmentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.tokens[shipmentID]
	return ok
}

// Fits pre-filters a candidate against current headroom. Advisory only;
// Join re-checks under the group lock.
func (g *Group) Fits(weightKg, volumeM3 float64) bool {
	return g.ledger.Fits(weightKg, volumeM3)
}

// ProjectedUtilization ranks how full the group would be after admitting the
// candidate (fuller dimension, percent).
func (g *Group) ProjectedUtilization(weightKg, volumeM3 float64) float64 {
	return g.ledger.ProjectedUtilization(weightKg, volumeM3)
}

// ScoreCandidate reports the compatibility tier for a candidate category
// against the current membership.
func (g *Group) ScoreCandidate(category models.GoodsCategory) compatibility.Tier {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scorer.Score(category, g.categoriesLocked())
}

func (g *Group) MinParticipants() int { return g.minCount }
func (g *Group) MaxParticipants() int { return g.maxCount }

// Limits exposes the ledger maximums (needed by the persistence layer).
func (g *Group) Limits() (maxWeightKg, maxVolumeM3 float64) {
	return g.ledger.Limits()
}

// Phase is the stored lifecycle phase, distinct from the derived status.
// The persistence layer stores only this.
func (g *Group) Phase() models.GroupStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Summary builds the read-only projection for UI listings.
func (g *Group) Summary(now time.Time, rates models.LaneRates) models.GroupSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	wPct, vPct := g.ledger.Utilization()
	fill := wPct
	if vPct > fill {
		fill = vPct
	}
	return models.GroupSummary{
		GroupID:          g.id,
		LaneKey:          g.laneKey,
		Destination:      g.destination,
		Status:           g.statusLocked(now),
		ParticipantCount: len(g.participants),
		FillPercent:      fill,
		EstimatedSavings: pricing.EstimatedSavingsPercent(rates),
		DepartureAt:      g.departureAt,
	}
}
