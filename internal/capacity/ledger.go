// internal/capacity/ledger.go

package capacity

import (
	"sync"

	"github.com/google/uuid"
)

// ReservationToken records exactly what a reservation took so a later
// release credits back the same amounts. Tokens are single-use.
type ReservationToken struct {
	ID       uuid.UUID
	WeightKg float64
	VolumeM3 float64
}

// Ledger tracks one group's consumed vs maximum weight and volume.
// It is owned exclusively by its ConsolidationGroup; nothing else mutates it.
// No I/O, just counters.
type Ledger struct {
	mu               sync.Mutex
	maxWeightKg      float64
	maxVolumeM3      float64
	consumedWeightKg float64
	consumedVolumeM3 float64
	outstanding      map[uuid.UUID]ReservationToken
}

func NewLedger(maxWeightKg, maxVolumeM3 float64) *Ledger {
	return &Ledger{
		maxWeightKg: maxWeightKg,
		maxVolumeM3: maxVolumeM3,
		outstanding: make(map[uuid.UUID]ReservationToken),
	}
}

// Reserve atomically claims weight and volume. It fails with
// ErrInsufficientCapacity when either dimension would overflow, leaving the
// counters untouched. On success both counters move together and the token
// for a later release is returned.
func (l *Ledger) Reserve(weightKg, volumeM3 float64) (ReservationToken, error) {
	if weightKg <= 0 || volumeM3 <= 0 {
		return ReservationToken{}, ErrInvalidReservation
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.consumedWeightKg+weightKg > l.maxWeightKg || l.consumedVolumeM3+volumeM3 > l.maxVolumeM3 {
		return ReservationToken{}, ErrInsufficientCapacity
	}
	token := ReservationToken{
		ID:       uuid.New(),
		WeightKg: weightKg,
		VolumeM3: volumeM3,
	}
	l.consumedWeightKg += weightKg
	l.consumedVolumeM3 += volumeM3
	l.outstanding[token.ID] = token
	return token, nil
}

// Release credits back the amounts recorded in the token. A second release
// of the same token returns ErrUnknownToken and changes nothing, so callers
// can treat a double release as a warning instead of corrupting the counters.
func (l *Ledger) Release(token ReservationToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.outstanding[token.ID]
	if !ok {
		return ErrUnknownToken
	}
	l.consumedWeightKg -= held.WeightKg
	l.consumedVolumeM3 -= held.VolumeM3
	delete(l.outstanding, token.ID)
	return nil
}

// Utilization reports consumed capacity as percentages (0-100) of the two
// dimensions. Used to derive the CLOSING/FULL status thresholds.
func (l *Ledger) Utilization() (weightPct, volumePct float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.utilizationLocked()
}

func (l *Ledger) utilizationLocked() (weightPct, volumePct float64) {
	if l.maxWeightKg > 0 {
		weightPct = l.consumedWeightKg / l.maxWeightKg * 100
	}
	if l.maxVolumeM3 > 0 {
		volumePct = l.consumedVolumeM3 / l.maxVolumeM3 * 100
	}
	return weightPct, volumePct
}

// Headroom reports the unreserved weight and volume remaining.
func (l *Ledger) Headroom() (weightKg, volumeM3 float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxWeightKg - l.consumedWeightKg, l.maxVolumeM3 - l.consumedVolumeM3
}

// Fits reports whether a reservation of the given size would succeed right
// now. Purely advisory: the matcher uses it to pre-filter candidates, the
// authoritative answer is still Reserve.
func (l *Ledger) Fits(weightKg, volumeM3 float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumedWeightKg+weightKg <= l.maxWeightKg && l.consumedVolumeM3+volumeM3 <= l.maxVolumeM3
}

// ProjectedUtilization is the fuller dimension's percentage after a
// hypothetical reservation. The matcher ranks candidates by it.
func (l *Ledger) ProjectedUtilization(weightKg, volumeM3 float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var wPct, vPct float64
	if l.maxWeightKg > 0 {
		wPct = (l.consumedWeightKg + weightKg) / l.maxWeightKg * 100
	}
	if l.maxVolumeM3 > 0 {
		vPct = (l.consumedVolumeM3 + volumeM3) / l.maxVolumeM3 * 100
	}
	if wPct > vPct {
		return wPct
	}
	return vPct
}

// Limits returns the configured maximums.
func (l *Ledger) Limits() (maxWeightKg, maxVolumeM3 float64) {
	return l.maxWeightKg, l.maxVolumeM3
}

// Consumed returns the currently reserved totals.
func (l *Ledger) Consumed() (weightKg, volumeM3 float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consumedWeightKg, l.consumedVolumeM3
}
