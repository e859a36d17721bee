package model

import (
	"time"

	"github.com/skycourier-io/skycourier/pkg/geo"
)

// LinkState describes whether the hub currently has a working control link
// to the vehicle. It is deliberately independent from MissionState: losing
// telemetry does not abandon an in-flight mission.
type LinkState string

const (
	LinkDisconnected LinkState = "Disconnected"
	LinkConnected    LinkState = "Connected"
)

// MissionState is the vehicle lifecycle phase.
type MissionState string

const (
	MissionIdle        MissionState = "Idle"
	MissionOutbound    MissionState = "Outbound"
	MissionReturning   MissionState = "Returning"
	MissionCharging    MissionState = "Charging"
	MissionMaintenance MissionState = "Maintenance"
)

// MissionKind tags the active flight leg.
type MissionKind string

const (
	// MissionDelivery is the outbound leg toward a delivery site.
	MissionDelivery MissionKind = "Delivery"
	// MissionReturn is the leg back to the vehicle's home position.
	MissionReturn MissionKind = "Return"
)

// Mission is the ephemeral pairing of a vehicle with a flight leg. It exists
// only while the vehicle is Outbound or Returning; OrderID is set only on the
// delivery leg, so the illegal combinations (a destination without a mission,
// an order binding on an idle vehicle) cannot be represented.
type Mission struct {
	Kind        MissionKind
	Destination geo.Position
	OrderID     string
}

// Vehicle is the registry's record of a single drone. Identity and Home are
// fixed at provisioning time; everything else mutates continuously.
type Vehicle struct {
	ID    string
	Model string

	// Endpoint is the opaque connection string for the vehicle control
	// capability (e.g. a MAVLink address). Mutable only while disconnected.
	Endpoint string

	LinkState    LinkState
	MissionState MissionState
	Mission      *Mission

	Position geo.Position
	Home     geo.Position
	Battery  float64
	Armed    bool

	LastSeen time.Time
}

// ActiveOrderID returns the order bound to this vehicle, or "" when the
// vehicle is not flying a delivery leg.
func (v *Vehicle) ActiveOrderID() string {
	if v.Mission != nil && v.Mission.Kind == MissionDelivery {
		return v.Mission.OrderID
	}
	return ""
}

// Destination returns the current flight target, or nil when idle.
func (v *Vehicle) Destination() *geo.Position {
	if v.Mission == nil {
		return nil
	}
	d := v.Mission.Destination
	return &d
}

// Clone returns a deep copy so registry callers never alias internal state.
func (v *Vehicle) Clone() Vehicle {
	out := *v
	if v.Mission != nil {
		m := *v.Mission
		out.Mission = &m
	}
	return out
}

// Telemetry is one observation of a vehicle, as reported by the vehicle
// control capability.
type Telemetry struct {
	Armed    bool         `json:"armed"`
	Position geo.Position `json:"position"`
	Battery  float64      `json:"battery"`
}

// TelemetryUpdate is a partial telemetry merge: only non-nil fields are
// applied to the registry record.
type TelemetryUpdate struct {
	Armed    *bool
	Position *geo.Position
	Battery  *float64
}
