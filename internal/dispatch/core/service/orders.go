package service

import (
	"context"
	"fmt"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/pkg/log"
)

// CreateOrder places a new order and announces it to viewers.
func (s *Service) CreateOrder(ctx context.Context, draft model.OrderDraft) (model.Order, error) {
	o, err := s.store.Create(ctx, draft)
	if err != nil {
		return model.Order{}, err
	}
	log.Info("Order placed", "order", o.ID, "user", o.User, "deliveryLocation", o.DeliveryLocationID)
	s.publisher.Publish(model.NewOrderCreatedEvent(o))
	return o, nil
}

// Order returns one order.
func (s *Service) Order(ctx context.Context, orderID string) (model.Order, error) {
	return s.store.Get(ctx, orderID)
}

// Orders returns all orders, newest first.
func (s *Service) Orders(ctx context.Context) ([]model.Order, error) {
	return s.store.List(ctx)
}

// UpdateOrderStatus applies a caller-requested status transition. En Route is
// reserved for the dispatch engine in both directions: it is only entered
// through Launch, which binds a vehicle in the same commit, and only left
// through arrival detection or a recall, which release the vehicle in the
// same commit.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, next model.OrderStatus) (model.Order, error) {
	s.orderLocks.Lock(orderID)
	defer s.orderLocks.Unlock(orderID)

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}

	if next == model.OrderEnRoute {
		return model.Order{}, fmt.Errorf("order %s: status %q is set by dispatch, use launch: %w",
			orderID, next, core.ErrInvalidState)
	}
	if o.Status == model.OrderEnRoute {
		return model.Order{}, fmt.Errorf("order %s: in-flight orders are settled by dispatch, use rtl: %w",
			orderID, core.ErrInvalidState)
	}
	if err := o.Status.ValidateTransition(next); err != nil {
		return model.Order{}, fmt.Errorf("order %s: %v: %w", orderID, err, core.ErrInvalidState)
	}

	upd := model.OrderUpdate{Status: &next}
	if o.Status == model.OrderFailed && next == model.OrderReadyForLaunch {
		// Operator retry: scrub the failed attempt before re-queueing.
		empty := ""
		upd.VehicleID = &empty
		upd.FailReason = &empty
	}

	updated, err := s.store.Update(ctx, orderID, upd)
	if err != nil {
		return model.Order{}, err
	}
	log.Info("Order status changed", "order", orderID, "from", o.Status, "to", next)
	s.publisher.Publish(model.NewOrderUpdatedEvent(updated))
	return updated, nil
}

// failOrder marks an order Failed with a reason and announces it. The caller
// holds the order lock.
func (s *Service) failOrder(ctx context.Context, orderID, reason string) (model.Order, error) {
	status := model.OrderFailed
	updated, err := s.store.Update(ctx, orderID, model.OrderUpdate{Status: &status, FailReason: &reason})
	if err != nil {
		return model.Order{}, err
	}
	log.Warn("Order failed", "order", orderID, "reason", reason)
	s.publisher.Publish(model.NewOrderUpdatedEvent(updated))
	return updated, nil
}
