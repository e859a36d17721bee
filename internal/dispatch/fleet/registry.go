// Package fleet holds the authoritative in-memory record of every vehicle.
//
// All access goes through Registry methods under an internal lock; callers
// always receive copies, never aliases to the stored records.
package fleet

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/pkg/metrics"
	"github.com/skycourier-io/skycourier/pkg/geo"
)

// VehicleSpec describes a vehicle at provisioning time.
type VehicleSpec struct {
	ID       string       `yaml:"id"`
	Model    string       `yaml:"model"`
	Endpoint string       `yaml:"endpoint"`
	Home     geo.Position `yaml:"home"`
}

// Site is a named delivery target.
type Site struct {
	ID       string       `json:"id" yaml:"id"`
	Name     string       `json:"name" yaml:"name"`
	Position geo.Position `json:"position" yaml:"position"`
}

// Registry owns all vehicle records and the delivery site table. Constructed
// once at process start; vehicles are never destroyed, only reset to idle.
type Registry struct {
	mu       sync.RWMutex
	vehicles map[string]*model.Vehicle
	sites    map[string]Site
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		vehicles: make(map[string]*model.Vehicle),
		sites:    make(map[string]Site),
	}
}

// Provision adds a vehicle if its id is new and reports whether it was
// created. For an existing vehicle only the endpoint is refreshed, and only
// while the link is down; everything else about a live vehicle belongs to
// telemetry and the mission lifecycle.
func (r *Registry) Provision(spec VehicleSpec) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.vehicles[spec.ID]; ok {
		if v.LinkState == model.LinkDisconnected && spec.Endpoint != "" {
			v.Endpoint = spec.Endpoint
		}
		return false
	}

	r.vehicles[spec.ID] = &model.Vehicle{
		ID:           spec.ID,
		Model:        spec.Model,
		Endpoint:     spec.Endpoint,
		LinkState:    model.LinkDisconnected,
		MissionState: model.MissionIdle,
		Position:     spec.Home,
		Home:         spec.Home,
		Battery:      100,
	}
	return true
}

// SetSites replaces the delivery site table.
func (r *Registry) SetSites(sites []Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites = make(map[string]Site, len(sites))
	for _, s := range sites {
		r.sites[s.ID] = s
	}
}

// Sites returns the delivery site table in ascending id order.
func (r *Registry) Sites() []Site {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Site resolves a delivery location id to its coordinates.
func (r *Registry) Site(id string) (Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[id]
	return s, ok
}

// Get returns a copy of the vehicle record.
func (r *Registry) Get(vehicleID string) (model.Vehicle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vehicles[vehicleID]
	if !ok {
		return model.Vehicle{}, false
	}
	return v.Clone(), true
}

// List returns copies of all vehicle records in ascending id order. The
// stable order makes the dispatch engine's first-match selection policy
// deterministic.
func (r *Registry) List() []model.Vehicle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpsertTelemetry merges the fields present in upd into the vehicle record
// and stamps LastSeen. Returns the updated copy.
func (r *Registry) UpsertTelemetry(vehicleID string, upd model.TelemetryUpdate) (model.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[vehicleID]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}

	if upd.Armed != nil {
		v.Armed = *upd.Armed
	}
	if upd.Position != nil {
		v.Position = *upd.Position
	}
	if upd.Battery != nil {
		v.Battery = *upd.Battery
	}
	v.LastSeen = time.Now()

	return v.Clone(), nil
}

// SetLinkState records a link transition and returns the updated copy.
func (r *Registry) SetLinkState(vehicleID string, ls model.LinkState) (model.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[vehicleID]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}

	if v.LinkState != ls {
		v.LinkState = ls
		if ls == model.LinkConnected {
			metrics.ConnectedVehicles.Inc()
		} else {
			metrics.ConnectedVehicles.Dec()
		}
	}

	return v.Clone(), nil
}

// SetConnectionString updates the vehicle endpoint. It fails with
// ErrInvalidState while the vehicle is connected: the live link would keep
// using the old address and the record would lie.
func (r *Registry) SetConnectionString(vehicleID, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}
	if v.LinkState == model.LinkConnected {
		return fmt.Errorf("vehicle %s is connected: %w", vehicleID, core.ErrInvalidState)
	}

	v.Endpoint = endpoint
	return nil
}

// SetMission atomically commits a mission phase and its leg in one critical
// section, so no observer can see Outbound without a destination and order
// binding (or vice versa).
func (r *Registry) SetMission(vehicleID string, state model.MissionState, m *model.Mission) (model.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[vehicleID]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}

	v.MissionState = state
	if m != nil {
		leg := *m
		v.Mission = &leg
	} else {
		v.Mission = nil
	}

	return v.Clone(), nil
}

// ClearMission resets the vehicle to idle with no active leg.
func (r *Registry) ClearMission(vehicleID string) (model.Vehicle, error) {
	return r.SetMission(vehicleID, model.MissionIdle, nil)
}
