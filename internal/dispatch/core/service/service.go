// Package service implements the dispatch engine: the only component that
// mutates orders and vehicles together.
//
// Concurrency is per-entity. Every operation takes the order lock before the
// vehicle lock; operations that start from a vehicle read the registry first
// to discover the bound order, then lock in the canonical direction and
// re-verify the binding.
package service

import (
	"sync"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
	"github.com/skycourier-io/skycourier/internal/dispatch/mission"
	"github.com/skycourier-io/skycourier/internal/pkg/util/keymutex"
	"github.com/skycourier-io/skycourier/pkg/log"
)

// Service coordinates orders, vehicles and the control capability.
type Service struct {
	registry  *fleet.Registry
	store     core.OrderStore
	control   core.VehicleControl
	publisher core.EventPublisher

	orderLocks   *keymutex.KeyMutex
	vehicleLocks *keymutex.KeyMutex

	mu       sync.Mutex
	machines map[string]*mission.Machine
}

// New wires the dispatch engine.
func New(registry *fleet.Registry, store core.OrderStore, control core.VehicleControl,
	publisher core.EventPublisher) *Service {
	return &Service{
		registry:     registry,
		store:        store,
		control:      control,
		publisher:    publisher,
		orderLocks:   keymutex.New(),
		vehicleLocks: keymutex.New(),
		machines:     make(map[string]*mission.Machine),
	}
}

// ProvisionVehicle registers a vehicle from the fleet manifest and reports
// whether it was newly created.
func (s *Service) ProvisionVehicle(spec fleet.VehicleSpec) bool {
	created := s.registry.Provision(spec)
	if created {
		log.Info("Provisioned vehicle", "vehicle", spec.ID, "model", spec.Model, "endpoint", spec.Endpoint)
		if v, ok := s.registry.Get(spec.ID); ok {
			s.publisher.Publish(model.NewVehicleUpdateEvent(v))
		}
	}
	return created
}

// Vehicle returns a copy of one vehicle record.
func (s *Service) Vehicle(vehicleID string) (model.Vehicle, bool) {
	return s.registry.Get(vehicleID)
}

// Vehicles returns copies of all vehicle records in id order.
func (s *Service) Vehicles() []model.Vehicle {
	return s.registry.List()
}

// Sites returns the delivery site table.
func (s *Service) Sites() []fleet.Site {
	return s.registry.Sites()
}

// Snapshot builds the whole-fleet status_update event for viewers.
func (s *Service) Snapshot(at time.Time) model.Event {
	return model.NewStatusSnapshotEvent(s.registry.List(), at)
}

// machineFor returns the vehicle's mission machine, creating it in the
// vehicle's current phase on first use. Callers hold the vehicle lock.
func (s *Service) machineFor(vehicleID string) *mission.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[vehicleID]
	if !ok {
		state := model.MissionIdle
		if v, found := s.registry.Get(vehicleID); found {
			state = v.MissionState
		}
		m = mission.NewAt(state)
		s.machines[vehicleID] = m
	}
	return m
}

// resetMachine discards the vehicle's machine so the next access rebuilds it
// from the registry. Used on launch rollback, where no legal event leads back
// to Idle.
func (s *Service) resetMachine(vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.machines, vehicleID)
}
