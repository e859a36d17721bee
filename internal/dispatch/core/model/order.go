package model

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of an order. The string values are the
// wire representation expected by viewers.
type OrderStatus string

const (
	OrderPlaced         OrderStatus = "Placed"
	OrderAccepted       OrderStatus = "Accepted"
	OrderDeclined       OrderStatus = "Declined"
	OrderCooking        OrderStatus = "Cooking"
	OrderReadyForLaunch OrderStatus = "Ready for Launch"
	OrderEnRoute        OrderStatus = "En Route"
	OrderDelivered      OrderStatus = "Delivered"
	OrderFailed         OrderStatus = "Failed"
)

// orderTransitions is the allowed status graph. Failed -> Ready for Launch is
// the operator retry path: a failed dispatch may be re-queued once a vehicle
// becomes available again.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPlaced:         {OrderAccepted, OrderDeclined},
	OrderAccepted:       {OrderCooking},
	OrderCooking:        {OrderReadyForLaunch},
	OrderReadyForLaunch: {OrderEnRoute, OrderFailed},
	OrderEnRoute:        {OrderDelivered, OrderFailed},
	OrderFailed:         {OrderReadyForLaunch},
}

// Valid reports whether s is a known status value.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPlaced, OrderAccepted, OrderDeclined, OrderCooking,
		OrderReadyForLaunch, OrderEnRoute, OrderDelivered, OrderFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions drive vehicle state.
// Failed orders may still be re-queued by an operator.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderDeclined || s == OrderFailed
}

// CanTransitionTo reports whether the status graph allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error when s -> next is not allowed.
func (s OrderStatus) ValidateTransition(next OrderStatus) error {
	if !next.Valid() {
		return fmt.Errorf("unknown order status %q", next)
	}
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("order status cannot change from %q to %q", s, next)
	}
	return nil
}

// OrderItem is a single line item of an order.
type OrderItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
	RestaurantID string  `json:"restaurantId"`
}

// Order is a delivery order. VehicleID is the assigned drone: set while the
// order is En Route, retained after Delivered/Failed for audit.
type Order struct {
	ID                 string      `json:"id"`
	User               string      `json:"user"`
	RestaurantID       string      `json:"restaurantId"`
	Items              []OrderItem `json:"items"`
	Total              float64     `json:"total"`
	DeliveryLocationID string      `json:"deliveryLocationId"`
	Status             OrderStatus `json:"status"`
	CreatedAt          time.Time   `json:"createdAt"`
	VehicleID          string      `json:"droneId,omitempty"`
	FailReason         string      `json:"failReason,omitempty"`
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() Order {
	out := *o
	out.Items = make([]OrderItem, len(o.Items))
	copy(out.Items, o.Items)
	return out
}

// OrderDraft is the payload accepted when placing a new order.
type OrderDraft struct {
	ID                 string      `json:"id,omitempty"`
	User               string      `json:"user"`
	RestaurantID       string      `json:"restaurantId"`
	Items              []OrderItem `json:"items"`
	Total              float64     `json:"total"`
	DeliveryLocationID string      `json:"deliveryLocationId"`
}

// OrderUpdate is a partial mutation: only non-nil fields are applied.
type OrderUpdate struct {
	Status     *OrderStatus
	VehicleID  *string
	FailReason *string
}
