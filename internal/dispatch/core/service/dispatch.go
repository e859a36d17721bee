package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
	"github.com/skycourier-io/skycourier/internal/dispatch/mission"
	"github.com/skycourier-io/skycourier/internal/pkg/metrics"
	"github.com/skycourier-io/skycourier/pkg/log"
)

// Launch dispatches a Ready for Launch order to the first connected idle
// vehicle, in ascending vehicle id order. Exactly one of three outcomes
// commits: the order goes En Route bound to a vehicle, the order goes
// Failed (no vehicle, or the flight command failed), or nothing changes.
func (s *Service) Launch(ctx context.Context, orderID string) (model.Order, error) {
	s.orderLocks.Lock(orderID)
	defer s.orderLocks.Unlock(orderID)

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if o.Status != model.OrderReadyForLaunch {
		return model.Order{}, fmt.Errorf("order %s is %q, not ready for launch: %w",
			orderID, o.Status, core.ErrInvalidState)
	}

	site, ok := s.registry.Site(o.DeliveryLocationID)
	if !ok {
		// A bad site id is a caller problem, not vehicle scarcity; the
		// order stays Ready for Launch.
		return model.Order{}, fmt.Errorf("delivery location %s: %w", o.DeliveryLocationID, core.ErrNotFound)
	}

	for _, candidate := range s.registry.List() {
		if !assignable(candidate) {
			continue
		}

		s.vehicleLocks.Lock(candidate.ID)
		v, found := s.registry.Get(candidate.ID)
		if !found || !assignable(v) {
			// Lost the race for this vehicle; try the next one.
			s.vehicleLocks.Unlock(candidate.ID)
			continue
		}

		order, err := s.launchOn(ctx, o, v, site)
		s.vehicleLocks.Unlock(candidate.ID)
		return order, err
	}

	metrics.LaunchTotal.WithLabelValues("no_vehicle").Inc()
	log.Warn("No available vehicle for order", "order", orderID)
	s.publisher.Publish(model.NewNotificationEvent("warning",
		fmt.Sprintf("No drone available for order %s", orderID), orderID))

	if _, err := s.failOrder(ctx, orderID, "no available vehicle"); err != nil {
		return model.Order{}, err
	}
	return model.Order{}, fmt.Errorf("order %s: %w", orderID, core.ErrNoAvailableVehicle)
}

func assignable(v model.Vehicle) bool {
	return v.LinkState == model.LinkConnected && v.MissionState == model.MissionIdle
}

// launchOn commits the order onto one locked, verified-idle vehicle.
func (s *Service) launchOn(ctx context.Context, o model.Order, v model.Vehicle, site fleet.Site) (model.Order, error) {
	if err := s.control.CommandGoto(ctx, v.ID, site.Position); err != nil {
		metrics.LaunchTotal.WithLabelValues("rejected").Inc()
		log.Error(err, "Flight command failed", "order", o.ID, "vehicle", v.ID)
		s.publisher.Publish(model.NewNotificationEvent("error",
			fmt.Sprintf("Dispatch of order %s on drone %s failed", o.ID, v.ID), o.ID))

		if _, ferr := s.failOrder(ctx, o.ID, "flight command failed"); ferr != nil {
			return model.Order{}, ferr
		}
		return model.Order{}, fmt.Errorf("launch order %s on vehicle %s: %w", o.ID, v.ID, err)
	}

	m := s.machineFor(v.ID)
	if err := m.Fire(ctx, mission.EventLaunch); err != nil {
		// The registry said Idle but the machine disagrees; treat as a
		// lost race and roll the flight back.
		s.rollbackLaunch(ctx, v.ID, o.ID)
		return model.Order{}, err
	}

	if _, err := s.registry.SetMission(v.ID, model.MissionOutbound, &model.Mission{
		Kind:        model.MissionDelivery,
		Destination: site.Position,
		OrderID:     o.ID,
	}); err != nil {
		s.rollbackLaunch(ctx, v.ID, o.ID)
		return model.Order{}, err
	}

	status := model.OrderEnRoute
	vehicleID := v.ID
	updated, err := s.store.Update(ctx, o.ID, model.OrderUpdate{Status: &status, VehicleID: &vehicleID})
	if err != nil {
		s.rollbackLaunch(ctx, v.ID, o.ID)
		return model.Order{}, err
	}

	metrics.LaunchTotal.WithLabelValues("launched").Inc()
	metrics.ActiveMissions.Inc()
	log.Info("Order launched", "order", o.ID, "vehicle", v.ID, "deliveryLocation", o.DeliveryLocationID)

	s.publisher.Publish(model.NewOrderUpdatedEvent(updated))
	if cur, ok := s.registry.Get(v.ID); ok {
		s.publisher.Publish(model.NewVehicleUpdateEvent(cur))
	}
	return updated, nil
}

// rollbackLaunch undoes a partially committed launch: the vehicle is recalled
// best-effort and reset to idle. The caller holds both locks.
func (s *Service) rollbackLaunch(ctx context.Context, vehicleID, orderID string) {
	metrics.LaunchTotal.WithLabelValues("rolled_back").Inc()
	log.Warn("Rolling back launch", "order", orderID, "vehicle", vehicleID)

	if err := s.control.CommandReturnToLaunch(ctx, vehicleID); err != nil {
		log.Error(err, "Recall during rollback failed", "vehicle", vehicleID)
	}
	if _, err := s.registry.ClearMission(vehicleID); err != nil {
		log.Error(err, "Failed to clear mission during rollback", "vehicle", vehicleID)
	}
	s.resetMachine(vehicleID)
}

// ReturnToLaunch manually recalls a vehicle. Recalling a vehicle that is not
// flying an outbound leg is a logged no-op; a delivery in progress is failed.
func (s *Service) ReturnToLaunch(ctx context.Context, vehicleID string) error {
	// Discover the bound order before locking so locks are always taken in
	// order-then-vehicle order. The binding is re-verified under the locks
	// and the read retried if a concurrent commit moved it.
	for attempt := 0; attempt < 3; attempt++ {
		v, ok := s.registry.Get(vehicleID)
		if !ok {
			return fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
		}
		orderID := v.ActiveOrderID()

		done, err := s.tryReturnToLaunch(ctx, vehicleID, orderID)
		if done {
			return err
		}
	}
	return fmt.Errorf("vehicle %s: concurrent mission changes: %w", vehicleID, core.ErrInvalidState)
}

// tryReturnToLaunch performs one locked recall attempt. done is false when
// the order binding changed between the unlocked read and the locked
// re-verification.
func (s *Service) tryReturnToLaunch(ctx context.Context, vehicleID, orderID string) (done bool, err error) {
	if orderID != "" {
		s.orderLocks.Lock(orderID)
		defer s.orderLocks.Unlock(orderID)
	}
	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	v, ok := s.registry.Get(vehicleID)
	if !ok {
		return true, fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}
	if v.ActiveOrderID() != orderID {
		return false, nil
	}
	if v.LinkState != model.LinkConnected {
		return true, fmt.Errorf("vehicle %s is disconnected: %w", vehicleID, core.ErrLinkError)
	}
	if v.MissionState != model.MissionOutbound {
		log.Info("Recall ignored, vehicle not outbound", "vehicle", vehicleID, "missionState", v.MissionState)
		return true, nil
	}

	if cerr := s.control.CommandReturnToLaunch(ctx, vehicleID); cerr != nil {
		// Nothing committed; the vehicle continues its mission.
		return true, fmt.Errorf("recall vehicle %s: %w", vehicleID, cerr)
	}

	if ferr := s.machineFor(vehicleID).Fire(ctx, mission.EventAbort); ferr != nil {
		return true, ferr
	}
	if _, serr := s.registry.SetMission(vehicleID, model.MissionReturning, &model.Mission{
		Kind:        model.MissionReturn,
		Destination: v.Home,
	}); serr != nil {
		return true, serr
	}

	log.Info("Vehicle recalled", "vehicle", vehicleID, "order", orderID)
	if orderID != "" {
		if _, ferr := s.failOrder(ctx, orderID, "vehicle recalled mid-delivery"); ferr != nil {
			log.Error(ferr, "Failed to fail recalled order", "order", orderID)
		}
		s.publisher.Publish(model.NewNotificationEvent("warning",
			fmt.Sprintf("Drone %s recalled, order %s failed", vehicleID, orderID), orderID))
	}
	if cur, ok := s.registry.Get(vehicleID); ok {
		s.publisher.Publish(model.NewVehicleUpdateEvent(cur))
	}
	return true, nil
}

// CompleteDelivery finishes the outbound leg: the order is Delivered and the
// vehicle turns around. The Returning phase commits even when the recall
// command fails; the flight is then recovered by a manual recall or the
// vehicle's own failsafe.
func (s *Service) CompleteDelivery(ctx context.Context, vehicleID string) error {
	for attempt := 0; attempt < 3; attempt++ {
		v, ok := s.registry.Get(vehicleID)
		if !ok {
			return fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
		}
		orderID := v.ActiveOrderID()

		done, err := s.tryCompleteDelivery(ctx, vehicleID, orderID)
		if done {
			return err
		}
	}
	return fmt.Errorf("vehicle %s: concurrent mission changes: %w", vehicleID, core.ErrInvalidState)
}

func (s *Service) tryCompleteDelivery(ctx context.Context, vehicleID, orderID string) (done bool, err error) {
	if orderID != "" {
		s.orderLocks.Lock(orderID)
		defer s.orderLocks.Unlock(orderID)
	}
	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	v, ok := s.registry.Get(vehicleID)
	if !ok {
		return true, fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}
	if v.ActiveOrderID() != orderID {
		return false, nil
	}
	if v.MissionState != model.MissionOutbound {
		// Stale arrival trigger; already completed or recalled.
		return true, nil
	}

	if ferr := s.machineFor(vehicleID).Fire(ctx, mission.EventDeliver); ferr != nil {
		return true, ferr
	}
	if _, serr := s.registry.SetMission(vehicleID, model.MissionReturning, &model.Mission{
		Kind:        model.MissionReturn,
		Destination: v.Home,
	}); serr != nil {
		return true, serr
	}

	if orderID != "" {
		status := model.OrderDelivered
		updated, uerr := s.store.Update(ctx, orderID, model.OrderUpdate{Status: &status})
		if uerr != nil {
			log.Error(uerr, "Failed to mark order delivered", "order", orderID)
		} else {
			log.Info("Order delivered", "order", orderID, "vehicle", vehicleID)
			s.publisher.Publish(model.NewOrderUpdatedEvent(updated))
			s.publisher.Publish(model.NewNotificationEvent("info",
				fmt.Sprintf("Order %s delivered", orderID), orderID))
		}
	}

	if cerr := s.control.CommandReturnToLaunch(ctx, vehicleID); cerr != nil {
		log.Error(cerr, "Return command after delivery failed", "vehicle", vehicleID)
	}
	if cur, ok := s.registry.Get(vehicleID); ok {
		s.publisher.Publish(model.NewVehicleUpdateEvent(cur))
	}
	return true, nil
}

// CompleteReturn parks a returning vehicle at home, idle and reassignable.
func (s *Service) CompleteReturn(ctx context.Context, vehicleID string) error {
	s.vehicleLocks.Lock(vehicleID)
	defer s.vehicleLocks.Unlock(vehicleID)

	v, ok := s.registry.Get(vehicleID)
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicleID, core.ErrNotFound)
	}
	if v.MissionState != model.MissionReturning {
		return nil
	}

	if err := s.machineFor(vehicleID).Fire(ctx, mission.EventLand); err != nil {
		return err
	}
	if _, err := s.registry.ClearMission(vehicleID); err != nil {
		return err
	}

	metrics.ActiveMissions.Dec()
	log.Info("Vehicle returned home", "vehicle", vehicleID)
	if cur, ok := s.registry.Get(vehicleID); ok {
		s.publisher.Publish(model.NewVehicleUpdateEvent(cur))
	}
	return nil
}

// IsRecoverable reports whether a launch error leaves the order re-queueable.
func IsRecoverable(err error) bool {
	return errors.Is(err, core.ErrNoAvailableVehicle) ||
		errors.Is(err, core.ErrLinkError) ||
		errors.Is(err, core.ErrCommandRejected)
}
