// internal/pricing/savings_test.go
package pricing

import (
	"testing"

	"github.com/kmerland/hubdispo-sub001/internal/models"
)

func TestChargeableWeight(t *testing.T) {
	tests := []struct {
		name      string
		weightKg  float64
		volumeM3  float64
		dimFactor float64
		expect    float64
	}{
		{"dense parcel charges actual weight", 100, 0.2, 200, 100},
		{"bulky parcel charges volumetric weight", 20, 0.5, 200, 100},
		{"exact tie charges actual weight", 40, 0.2, 200, 40},
		{"zero dim factor falls back to default", 10, 0.5, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChargeableWeight(tt.weightKg, tt.volumeM3, tt.dimFactor)
			if got != tt.expect {
				t.Errorf("ChargeableWeight = %v, expected %v", got, tt.expect)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	rates := models.LaneRates{
		IndividualRateCents:   120, // 1.20 EUR per chargeable kg
		ConsolidatedRateCents: 80,
		DimFactor:             200,
	}

	quote := Quote(50, 0.1, rates) // chargeable = 50kg
	if quote.IndividualCents != 6000 {
		t.Errorf("expected individual 6000, got %d", quote.IndividualCents)
	}
	if quote.ConsolidatedCents != 4000 {
		t.Errorf("expected consolidated 4000, got %d", quote.ConsolidatedCents)
	}
	if quote.SavingsCents != 2000 {
		t.Errorf("expected savings 2000, got %d", quote.SavingsCents)
	}
	if quote.SavingsPercent < 33.3 || quote.SavingsPercent > 33.4 {
		t.Errorf("expected savings percent ~33.33, got %v", quote.SavingsPercent)
	}
}

// Whenever the consolidated rate is at or below the individual rate, the
// quoted savings can never be negative.
func TestQuote_SavingsNonNegative(t *testing.T) {
	cases := []models.LaneRates{
		{IndividualRateCents: 120, ConsolidatedRateCents: 80, DimFactor: 200},
		{IndividualRateCents: 100, ConsolidatedRateCents: 100, DimFactor: 200},
		{IndividualRateCents: 1, ConsolidatedRateCents: 0, DimFactor: 333},
	}
	for _, rates := range cases {
		for _, dims := range [][2]float64{{1, 0.001}, {50, 0.1}, {10, 2.5}, {750, 3.0}} {
			quote := Quote(dims[0], dims[1], rates)
			if quote.SavingsCents < 0 {
				t.Errorf("negative savings %d for rates %+v dims %v", quote.SavingsCents, rates, dims)
			}
			if quote.SavingsPercent < 0 {
				t.Errorf("negative savings percent %v for rates %+v dims %v", quote.SavingsPercent, rates, dims)
			}
		}
	}
}

func TestEstimatedSavingsPercent(t *testing.T) {
	rates := models.LaneRates{IndividualRateCents: 100, ConsolidatedRateCents: 60}
	if got := EstimatedSavingsPercent(rates); got != 40 {
		t.Errorf("expected 40%%, got %v%%", got)
	}
	if got := EstimatedSavingsPercent(models.LaneRates{}); got != 0 {
		t.Errorf("expected 0%% for empty rates, got %v%%", got)
	}
}
