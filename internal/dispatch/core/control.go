package core

import (
	"context"

	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/pkg/geo"
)

// VehicleControl is the consumed vehicle-control capability. Every call is
// fallible and network-latent; implementations map transport failures to
// ErrLinkError and explicit refusals to ErrCommandRejected.
type VehicleControl interface {
	// Connect establishes the control link to a vehicle at the given
	// endpoint (an opaque connection string).
	Connect(ctx context.Context, vehicleID, endpoint string) error

	// Disconnect tears down the control link.
	Disconnect(ctx context.Context, vehicleID string) error

	// CommandGoto instructs the vehicle to fly to the destination.
	CommandGoto(ctx context.Context, vehicleID string, dst geo.Position) error

	// CommandReturnToLaunch instructs the vehicle to fly back to its home
	// position.
	CommandReturnToLaunch(ctx context.Context, vehicleID string) error

	// ReadTelemetry polls the vehicle's current state.
	ReadTelemetry(ctx context.Context, vehicleID string) (model.Telemetry, error)
}

// TelemetryPusher is optionally implemented by VehicleControl backends that
// can push telemetry instead of being polled. The synchronizer prefers push
// when available and falls back to polling otherwise.
type TelemetryPusher interface {
	// SubscribeTelemetry returns a stream of telemetry for one vehicle.
	// The stream is closed when ctx is cancelled.
	SubscribeTelemetry(ctx context.Context, vehicleID string) (<-chan model.Telemetry, error)
}

// EventPublisher fans committed state changes out to connected viewers.
// Publish must never block on a slow subscriber.
type EventPublisher interface {
	Publish(evt model.Event)
}
