// internal/pricing/savings.go

package pricing

import (
	"math"

	"github.com/kmerland/hubdispo-sub001/internal/models"
)

// DefaultDimFactor converts volume to dimensional weight when the lane does
// not specify one (road groupage convention, kg per m3).
const DefaultDimFactor = 200.0

// ChargeableWeight applies the dimensional weight rule: the lane charges the
// greater of actual weight and volume converted at the lane's dim factor.
func ChargeableWeight(weightKg, volumeM3, dimFactor float64) float64 {
	if dimFactor <= 0 {
		dimFactor = DefaultDimFactor
	}
	volumetric := volumeM3 * dimFactor
	if volumetric > weightKg {
		return volumetric
	}
	return weightKg
}

// Quote compares shipping a parcel alone against shipping it inside a
// consolidation. Pure function: rates in, quote out, no state.
func Quote(weightKg, volumeM3 float64, rates models.LaneRates) models.SavingsQuote {
	chargeable := ChargeableWeight(weightKg, volumeM3, rates.DimFactor)
	individual := int64(math.Round(chargeable * float64(rates.IndividualRateCents)))
	consolidated := int64(math.Round(chargeable * float64(rates.ConsolidatedRateCents)))

	quote := models.SavingsQuote{
		IndividualCents:   individual,
		ConsolidatedCents: consolidated,
		SavingsCents:      individual - consolidated,
	}
	if individual > 0 {
		quote.SavingsPercent = float64(quote.SavingsCents) / float64(individual) * 100
	}
	return quote
}

// EstimatedSavingsPercent is the lane-level savings headline shown in group
// listings before a parcel's exact dimensions are known.
func EstimatedSavingsPercent(rates models.LaneRates) float64 {
	if rates.IndividualRateCents <= 0 {
		return 0
	}
	return float64(rates.IndividualRateCents-rates.ConsolidatedRateCents) /
		float64(rates.IndividualRateCents) * 100
}
