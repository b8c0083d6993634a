// internal/compatibility/scorer.go

package compatibility

import "github.com/kmerland/hubdispo-sub001/internal/models"

// Tier is the compatibility verdict for a candidate parcel against a group.
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// Scorer applies the cargo compatibility policy. LOW is a soft block: the
// matcher will not auto-match on it, but an explicit owner override may still
// join — the scorer only reports, it never decides.
type Scorer struct {
	hardConflicts map[pair]struct{}
	softConflicts map[pair]struct{}
}

type pair struct {
	a, b models.GoodsCategory
}

// orderedPair normalizes so (FOOD, STRONG_ODOR) and (STRONG_ODOR, FOOD) hit
// the same table entry.
func orderedPair(a, b models.GoodsCategory) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a: a, b: b}
}

// NewScorer builds the default policy table:
//   - hazardous cargo never auto-matches with anything else
//   - temperature-controlled goods cannot share an ambient container
//   - strong-odor goods next to food or temperature-controlled goods is
//     tolerated but flagged
func NewScorer() *Scorer {
	s := &Scorer{
		hardConflicts: make(map[pair]struct{}),
		softConflicts: make(map[pair]struct{}),
	}
	for _, other := range []models.GoodsCategory{
		models.CategoryGeneral,
		models.CategoryFood,
		models.CategoryFragile,
		models.CategoryStrongOdor,
		models.CategoryTemperature,
	} {
		s.hard(models.CategoryHazardous, other)
	}
	s.hard(models.CategoryTemperature, models.CategoryGeneral)
	s.hard(models.CategoryTemperature, models.CategoryFragile)
	s.hard(models.CategoryTemperature, models.CategoryStrongOdor)

	s.soft(models.CategoryStrongOdor, models.CategoryFood)
	s.soft(models.CategoryStrongOdor, models.CategoryFragile)
	s.soft(models.CategoryFood, models.CategoryFragile)
	return s
}

func (s *Scorer) hard(a, b models.GoodsCategory) { s.hardConflicts[orderedPair(a, b)] = struct{}{} }
func (s *Scorer) soft(a, b models.GoodsCategory) { s.softConflicts[orderedPair(a, b)] = struct{}{} }

// Score rates a candidate category against the categories already in a group.
// The verdict is the worst pairwise tier: one hard conflict makes the whole
// group LOW. An empty group is always HIGH. Nothing is persisted — the result
// must always reflect the current participants, so it is recomputed on demand.
func (s *Scorer) Score(candidate models.GoodsCategory, existing []models.GoodsCategory) Tier {
	tier := TierHigh
	for _, have := range existing {
		if candidate == have {
			continue // identical categories always coexist
		}
		p := orderedPair(candidate, have)
		if _, bad := s.hardConflicts[p]; bad {
			return TierLow
		}
		if _, odd := s.softConflicts[p]; odd {
			tier = TierMedium
		}
	}
	return tier
}
