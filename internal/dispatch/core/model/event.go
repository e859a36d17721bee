package model

import (
	"time"

	"github.com/skycourier-io/skycourier/pkg/geo"
)

// EventKind tags a broadcast event.
type EventKind string

const (
	EventOrderCreated   EventKind = "order_created"
	EventOrderUpdated   EventKind = "order_updated"
	EventVehicleUpdate  EventKind = "vehicle_update"
	EventNotification   EventKind = "notification"
	EventStatusSnapshot EventKind = "status_update"
)

// Event is one message on the viewer broadcast channel. Entity is the id of
// the order or vehicle the event concerns; events for a single entity are
// delivered to each subscriber in commit order. Payload is the wire message
// pushed to viewers as-is.
type Event struct {
	Kind    EventKind
	Entity  string
	Payload any
}

// orderEventPayload matches the original viewer protocol:
// {"event": "order_created"|"order_updated", "order": {...}}.
type orderEventPayload struct {
	Event string `json:"event"`
	Order *Order `json:"order"`
}

// NewOrderCreatedEvent builds the order_created broadcast event.
func NewOrderCreatedEvent(o Order) Event {
	return Event{
		Kind:    EventOrderCreated,
		Entity:  o.ID,
		Payload: orderEventPayload{Event: string(EventOrderCreated), Order: &o},
	}
}

// NewOrderUpdatedEvent builds the order_updated broadcast event.
func NewOrderUpdatedEvent(o Order) Event {
	return Event{
		Kind:    EventOrderUpdated,
		Entity:  o.ID,
		Payload: orderEventPayload{Event: string(EventOrderUpdated), Order: &o},
	}
}

// VehicleStatus is the viewer-facing snapshot of one vehicle.
type VehicleStatus struct {
	ID           string        `json:"id"`
	Model        string        `json:"model"`
	LinkState    LinkState     `json:"linkState"`
	MissionState MissionState  `json:"missionState"`
	Armed        bool          `json:"armed"`
	Battery      float64       `json:"battery"`
	Position     geo.Position  `json:"position"`
	Home         geo.Position  `json:"home"`
	Destination  *geo.Position `json:"destination,omitempty"`
	OrderID      string        `json:"orderId,omitempty"`
	Endpoint     string        `json:"connectionString"`
	LastSeen     time.Time     `json:"lastSeen"`
}

// StatusOf projects a vehicle record onto its viewer snapshot.
func StatusOf(v Vehicle) VehicleStatus {
	return VehicleStatus{
		ID:           v.ID,
		Model:        v.Model,
		LinkState:    v.LinkState,
		MissionState: v.MissionState,
		Armed:        v.Armed,
		Battery:      v.Battery,
		Position:     v.Position,
		Home:         v.Home,
		Destination:  v.Destination(),
		OrderID:      v.ActiveOrderID(),
		Endpoint:     v.Endpoint,
		LastSeen:     v.LastSeen,
	}
}

type vehicleEventPayload struct {
	Type  string        `json:"type"`
	Drone VehicleStatus `json:"drone"`
}

// NewVehicleUpdateEvent builds the per-vehicle delta broadcast event.
func NewVehicleUpdateEvent(v Vehicle) Event {
	return Event{
		Kind:    EventVehicleUpdate,
		Entity:  v.ID,
		Payload: vehicleEventPayload{Type: string(EventVehicleUpdate), Drone: StatusOf(v)},
	}
}

type notificationPayload struct {
	Type    string `json:"type"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Subject string `json:"subject,omitempty"`
}

// NewNotificationEvent builds a fire-and-forget viewer notification.
// level is "info", "warning" or "error"; subject is the related entity id.
func NewNotificationEvent(level, message, subject string) Event {
	return Event{
		Kind:    EventNotification,
		Entity:  subject,
		Payload: notificationPayload{Type: string(EventNotification), Level: level, Message: message, Subject: subject},
	}
}

type statusSnapshotPayload struct {
	Type      string                   `json:"type"`
	Drones    map[string]VehicleStatus `json:"drones"`
	Timestamp time.Time                `json:"timestamp"`
}

// NewStatusSnapshotEvent builds the periodic whole-fleet status_update
// message: {"type": "status_update", "drones": {vehicleID: status}}.
func NewStatusSnapshotEvent(vehicles []Vehicle, at time.Time) Event {
	drones := make(map[string]VehicleStatus, len(vehicles))
	for _, v := range vehicles {
		drones[v.ID] = StatusOf(v)
	}
	return Event{
		Kind:    EventStatusSnapshot,
		Payload: statusSnapshotPayload{Type: string(EventStatusSnapshot), Drones: drones, Timestamp: at},
	}
}
