// internal/models/models.go

package models

import (
	"fmt"
	"strings"
	"time"
)

// GoodsCategory classifies what a parcel carries. The compatibility policy
// in internal/compatibility decides which categories may share a container.
type GoodsCategory string

const (
	CategoryGeneral     GoodsCategory = "GENERAL"
	CategoryFood        GoodsCategory = "FOOD"
	CategoryFragile     GoodsCategory = "FRAGILE"
	CategoryStrongOdor  GoodsCategory = "STRONG_ODOR"
	CategoryTemperature GoodsCategory = "TEMPERATURE_CONTROLLED"
	CategoryHazardous   GoodsCategory = "HAZARDOUS"
)

// GroupStatus is the lifecycle of a consolidation group.
// OPEN/CLOSING/FULL are derived from capacity and clock, never stored;
// LOCKED and later phases are explicit transitions.
type GroupStatus string

const (
	StatusOpen      GroupStatus = "OPEN"
	StatusClosing   GroupStatus = "CLOSING"
	StatusFull      GroupStatus = "FULL"
	StatusLocked    GroupStatus = "LOCKED"
	StatusDeparted  GroupStatus = "DEPARTED"
	StatusArchived  GroupStatus = "ARCHIVED"
	StatusCancelled GroupStatus = "CANCELLED"
)

// Shipment is the single source of truth for a parcel submitted to the
// engine. It is created by shipment intake and never mutated here; only its
// membership in a group changes.
type Shipment struct {
	ID          string
	OwnerID     string
	OriginHub   string // e.g., "BRU" (Brussels hub)
	Destination string // destination country/region, e.g., "DE"
	WeightKg    float64
	VolumeM3    float64
	Category    GoodsCategory
	ValueCents  int64
	Deadline    time.Time // latest acceptable departure
}

// LaneKey is the matching key: origin hub plus destination region.
func (s Shipment) LaneKey() string {
	return fmt.Sprintf("%s:%s", s.OriginHub, s.Destination)
}

// SplitLaneKey reverses LaneKey back into hub and destination.
func SplitLaneKey(laneKey string) (originHub, destination string) {
	parts := strings.SplitN(laneKey, ":", 2)
	if len(parts) != 2 {
		return laneKey, ""
	}
	return parts[0], parts[1]
}

// LaneRates is what the external tariff collaborator supplies for a lane.
// Rates are cents per chargeable kilogram.
type LaneRates struct {
	IndividualRateCents   int64
	ConsolidatedRateCents int64
	DimFactor             float64 // kg per m3 for dimensional weight
}

// SavingsQuote is the ephemeral value object returned on a successful join.
// The engine does not persist it; billing/notification may.
type SavingsQuote struct {
	IndividualCents   int64
	ConsolidatedCents int64
	SavingsCents      int64
	SavingsPercent    float64
}

// Manifest is the frozen participant list handed to the tracking
// collaborator at departure.
type Manifest struct {
	GroupID     string
	LaneKey     string
	Destination string
	DepartedAt  time.Time
	ShipmentIDs []string
}

// GroupSummary is the read-only projection served to UI listings.
type GroupSummary struct {
	GroupID          string
	LaneKey          string
	Destination      string
	Status           GroupStatus
	ParticipantCount int
	FillPercent      float64 // the fuller of the two capacity dimensions
	EstimatedSavings float64 // percent, from the lane rate pair
	DepartureAt      time.Time
}
