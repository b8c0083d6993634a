// internal/pricing/rates.go

package pricing

import (
	"context"

	"github.com/kmerland/hubdispo-sub001/internal/models"
)

// RateProvider is the boundary to the external tariff collaborator. The
// engine only consumes the two rates per lane, it never computes them.
type RateProvider interface {
	RatesForLane(ctx context.Context, laneKey string) (models.LaneRates, error)
}

// StaticRates is an in-memory RateProvider backed by a fixed table, with a
// fallback rate pair for lanes the table does not know. Used by tests and as
// a stand-in until the tariff service is wired.
type StaticRates struct {
	table    map[string]models.LaneRates
	fallback models.LaneRates
}

func NewStaticRates(table map[string]models.LaneRates, fallback models.LaneRates) *StaticRates {
	if table == nil {
		table = make(map[string]models.LaneRates)
	}
	return &StaticRates{table: table, fallback: fallback}
}

func (r *StaticRates) RatesForLane(ctx context.Context, laneKey string) (models.LaneRates, error) {
	select {
	case <-ctx.Done():
		return models.LaneRates{}, ctx.Err()
	default:
	}
	if rates, ok := r.table[laneKey]; ok {
		return rates, nil
	}
	return r.fallback, nil
}
