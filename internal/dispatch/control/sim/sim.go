// Package sim is an in-process vehicle control backend.
//
// It implements the same contract as the MQTT backend against simulated
// vehicles that fly straight lines at a fixed speed. It backs local
// development and the dispatch engine's tests, where its failure injection
// knobs stand in for lost links and refused commands.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/pkg/geo"
	"github.com/skycourier-io/skycourier/pkg/log"
)

var _ core.VehicleControl = (*Fleet)(nil)

// drainPerStep is the battery percentage consumed by one step in flight.
const drainPerStep = 0.05

type vehicle struct {
	home    geo.Position
	pos     geo.Position
	battery float64
	armed   bool

	connected bool
	target    *geo.Position

	// Failure injection.
	linkDown       bool
	rejectCommands bool
}

// Fleet simulates every seeded vehicle and advances them together.
type Fleet struct {
	mu       sync.Mutex
	vehicles map[string]*vehicle

	// speed is degrees travelled per step.
	speed float64
	tick  time.Duration
}

// New creates an empty simulated fleet. speed is degrees per tick.
func New(speed float64, tick time.Duration) *Fleet {
	return &Fleet{
		vehicles: make(map[string]*vehicle),
		speed:    speed,
		tick:     tick,
	}
}

// Seed registers a simulated vehicle parked at home with a full battery.
// Seeding an existing id is a no-op so manifest reloads are safe.
func (f *Fleet) Seed(vehicleID string, home geo.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vehicles[vehicleID]; ok {
		return
	}
	f.vehicles[vehicleID] = &vehicle{
		home:    home,
		pos:     home,
		battery: 100,
	}
}

func (f *Fleet) get(vehicleID string) (*vehicle, error) {
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return nil, fmt.Errorf("simulated vehicle %s: %w", vehicleID, core.ErrNotFound)
	}
	return v, nil
}

// reachable returns the vehicle only when its link is usable.
func (f *Fleet) reachable(vehicleID string) (*vehicle, error) {
	v, err := f.get(vehicleID)
	if err != nil {
		return nil, err
	}
	if !v.connected || v.linkDown {
		return nil, fmt.Errorf("simulated vehicle %s unreachable: %w", vehicleID, core.ErrLinkError)
	}
	return v, nil
}

// Connect establishes the simulated control link. The endpoint is accepted
// but unused; the simulator has no transport.
func (f *Fleet) Connect(ctx context.Context, vehicleID, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.get(vehicleID)
	if err != nil {
		return err
	}
	if v.linkDown {
		return fmt.Errorf("simulated vehicle %s unreachable: %w", vehicleID, core.ErrLinkError)
	}
	v.connected = true
	log.Debug("Simulated link established", "vehicle", vehicleID, "endpoint", endpoint)
	return nil
}

// Disconnect tears down the simulated link. The vehicle keeps flying its
// current leg, as a real drone would.
func (f *Fleet) Disconnect(ctx context.Context, vehicleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.get(vehicleID)
	if err != nil {
		return err
	}
	v.connected = false
	return nil
}

// CommandGoto points the vehicle at dst and arms it.
func (f *Fleet) CommandGoto(ctx context.Context, vehicleID string, dst geo.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.reachable(vehicleID)
	if err != nil {
		return err
	}
	if v.rejectCommands {
		return fmt.Errorf("simulated vehicle %s refused goto: %w", vehicleID, core.ErrCommandRejected)
	}
	d := dst
	v.target = &d
	v.armed = true
	return nil
}

// CommandReturnToLaunch points the vehicle back at its home position.
func (f *Fleet) CommandReturnToLaunch(ctx context.Context, vehicleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.reachable(vehicleID)
	if err != nil {
		return err
	}
	if v.rejectCommands {
		return fmt.Errorf("simulated vehicle %s refused rtl: %w", vehicleID, core.ErrCommandRejected)
	}
	home := v.home
	v.target = &home
	v.armed = true
	return nil
}

// ReadTelemetry reports the vehicle's current state, or ErrLinkError when the
// link is down.
func (f *Fleet) ReadTelemetry(ctx context.Context, vehicleID string) (model.Telemetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.reachable(vehicleID)
	if err != nil {
		return model.Telemetry{}, err
	}
	return model.Telemetry{
		Armed:    v.armed,
		Position: v.pos,
		Battery:  v.battery,
	}, nil
}

// SetLinkDown toggles failure injection: while down, every call for the
// vehicle fails with ErrLinkError.
func (f *Fleet) SetLinkDown(vehicleID string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vehicles[vehicleID]; ok {
		v.linkDown = down
	}
}

// SetRejectCommands toggles failure injection: while set, goto and rtl fail
// with ErrCommandRejected even though the link is up.
func (f *Fleet) SetRejectCommands(vehicleID string, reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vehicles[vehicleID]; ok {
		v.rejectCommands = reject
	}
}

// Position returns the vehicle's simulated position, for tests.
func (f *Fleet) Position(vehicleID string) (geo.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.get(vehicleID)
	if err != nil {
		return geo.Position{}, err
	}
	return v.pos, nil
}

// Step advances every vehicle by one tick of flight. Vehicles keep flying
// while disconnected; only commanding them needs the link.
func (f *Fleet) Step() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, v := range f.vehicles {
		if v.target == nil {
			continue
		}
		next, arrived := geo.Step(v.pos, *v.target, f.speed)
		v.pos = next
		v.battery -= drainPerStep
		if v.battery < 0 {
			v.battery = 0
		}
		if arrived {
			v.target = nil
			v.armed = false
			log.Debug("Simulated vehicle reached target", "vehicle", id, "position", v.pos)
		}
	}
}

// Start runs the flight loop until ctx is cancelled.
func (f *Fleet) Start(ctx context.Context) error {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	log.Info("Starting simulated fleet", "speed", f.speed, "tick", f.tick.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Step()
		}
	}
}
