package service

import (
	"context"
	"fmt"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/pkg/log"
)

// Connect establishes the control link to a provisioned vehicle using its
// stored connection string. Connecting an already connected vehicle is a
// no-op.
func (s *Service) Connect(ctx context.Context, vehicleID string) error {
	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	v, ok := s.registry.Get(vehicleID)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}
	if v.LinkState == model.LinkConnected {
		log.Debug("Vehicle already connected", "vehicle", vehicleID)
		return nil
	}

	if err := s.control.Connect(ctx, vehicleID, v.Endpoint); err != nil {
		return fmt.Errorf("connect vehicle %s: %w", vehicleID, err)
	}

	updated, err := s.registry.SetLinkState(vehicleID, model.LinkConnected)
	if err != nil {
		return err
	}
	log.Info("Vehicle connected", "vehicle", vehicleID, "endpoint", v.Endpoint)
	s.publisher.Publish(model.NewVehicleUpdateEvent(updated))
	return nil
}

// Disconnect tears down the control link. The vehicle's mission state is
// preserved: a flying vehicle keeps flying and the hub reconciles when the
// link is re-established.
func (s *Service) Disconnect(ctx context.Context, vehicleID string) error {
	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	v, ok := s.registry.Get(vehicleID)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}
	if v.LinkState == model.LinkDisconnected {
		return nil
	}

	// Best effort: the record is the source of truth even if the backend
	// teardown fails.
	if err := s.control.Disconnect(ctx, vehicleID); err != nil {
		log.Warn("Control link teardown failed", "vehicle", vehicleID, "error", err.Error())
	}

	updated, err := s.registry.SetLinkState(vehicleID, model.LinkDisconnected)
	if err != nil {
		return err
	}
	log.Info("Vehicle disconnected", "vehicle", vehicleID)
	s.publisher.Publish(model.NewVehicleUpdateEvent(updated))
	return nil
}

// SetConnectionString updates a vehicle's endpoint. Rejected while the
// vehicle is connected.
func (s *Service) SetConnectionString(ctx context.Context, vehicleID, endpoint string) error {
	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	if err := s.registry.SetConnectionString(vehicleID, endpoint); err != nil {
		return err
	}
	log.Info("Vehicle connection string updated", "vehicle", vehicleID, "endpoint", endpoint)
	if v, ok := s.registry.Get(vehicleID); ok {
		s.publisher.Publish(model.NewVehicleUpdateEvent(v))
	}
	return nil
}
