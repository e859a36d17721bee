// Package mission implements the per-vehicle mission lifecycle.
//
// Idle -> Outbound -> Returning -> Idle. There is deliberately no
// Outbound -> Idle edge: an aborted vehicle still has to fly home before it
// can be reassigned. Charging and Maintenance are orthogonal ground states
// entered only through explicit fleet-management actions.
package mission

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
)

// Event names accepted by the machine.
const (
	// EventLaunch starts a delivery leg (Idle -> Outbound).
	EventLaunch = "launch"
	// EventDeliver completes the delivery leg on arrival (Outbound -> Returning).
	EventDeliver = "deliver"
	// EventAbort is the manual return-to-launch (Outbound -> Returning).
	EventAbort = "abort"
	// EventLand completes the return leg at home (Returning -> Idle).
	EventLand = "land"
	// EventDock takes an idle vehicle off rotation to charge.
	EventDock = "dock"
	// EventUndock returns a charged vehicle to rotation.
	EventUndock = "undock"
	// EventService takes an idle vehicle into maintenance.
	EventService = "service"
	// EventRestore returns a serviced vehicle to rotation.
	EventRestore = "restore"
)

// Machine wraps a looplab FSM over the mission states of one vehicle.
type Machine struct {
	fsm *fsm.FSM
}

func events() fsm.Events {
	return fsm.Events{
		{Name: EventLaunch, Src: []string{string(model.MissionIdle)}, Dst: string(model.MissionOutbound)},
		{Name: EventDeliver, Src: []string{string(model.MissionOutbound)}, Dst: string(model.MissionReturning)},
		{Name: EventAbort, Src: []string{string(model.MissionOutbound)}, Dst: string(model.MissionReturning)},
		{Name: EventLand, Src: []string{string(model.MissionReturning)}, Dst: string(model.MissionIdle)},
		{Name: EventDock, Src: []string{string(model.MissionIdle)}, Dst: string(model.MissionCharging)},
		{Name: EventUndock, Src: []string{string(model.MissionCharging)}, Dst: string(model.MissionIdle)},
		{Name: EventService, Src: []string{string(model.MissionIdle)}, Dst: string(model.MissionMaintenance)},
		{Name: EventRestore, Src: []string{string(model.MissionMaintenance)}, Dst: string(model.MissionIdle)},
	}
}

// New returns a machine starting in Idle.
func New() *Machine {
	return NewAt(model.MissionIdle)
}

// NewAt returns a machine starting in the given state.
func NewAt(state model.MissionState) *Machine {
	return &Machine{
		fsm: fsm.NewFSM(string(state), events(), fsm.Callbacks{}),
	}
}

// State returns the current mission state.
func (m *Machine) State() model.MissionState {
	return model.MissionState(m.fsm.Current())
}

// Fire drives one transition. Illegal edges are reported as ErrInvalidState
// without changing the current state.
func (m *Machine) Fire(ctx context.Context, event string) error {
	if err := m.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("mission event %q in state %q: %w", event, m.fsm.Current(), core.ErrInvalidState)
	}
	return nil
}
