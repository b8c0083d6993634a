// internal/service/events.go

package service

import (
	"time"

	"github.com/kmerland/hubdispo-sub001/internal/models"
)

// Event names on the group events topic. The notification and tracking
// collaborators consume these; the engine never renders or sends anything
// itself.
const (
	EventGroupCreated       = "group.created"
	EventGroupStatusChanged = "group.status_changed"
	EventParticipantJoined  = "participant.joined"
	EventParticipantLeft    = "participant.left"
	EventGroupDeparted      = "group.departed"
	EventGroupCancelled     = "group.cancelled"
)

type GroupCreatedPayload struct {
	GroupID     string    `json:"group_id"`
	LaneKey     string    `json:"lane_key"`
	Destination string    `json:"destination"`
	DepartureAt time.Time `json:"departure_at"`
}

type GroupStatusChangedPayload struct {
	GroupID   string             `json:"group_id"`
	OldStatus models.GroupStatus `json:"old_status"`
	NewStatus models.GroupStatus `json:"new_status"`
}

type ParticipantJoinedPayload struct {
	GroupID    string              `json:"group_id"`
	ShipmentID string              `json:"shipment_id"`
	OwnerID    string              `json:"owner_id"`
	Quote      models.SavingsQuote `json:"quote"`
}

type ParticipantLeftPayload struct {
	GroupID    string `json:"group_id"`
	ShipmentID string `json:"shipment_id"`
}

type GroupDepartedPayload struct {
	Manifest models.Manifest `json:"manifest"`
}

type GroupCancelledPayload struct {
	GroupID     string   `json:"group_id"`
	LaneKey     string   `json:"lane_key"`
	ShipmentIDs []string `json:"shipment_ids"`
}
