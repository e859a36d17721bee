package core

import (
	"context"

	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
)

// OrderStore is the consumed order persistence capability. The store applies
// mutations verbatim; the status-transition invariants are enforced by the
// dispatch service before calling Update, so they hold even when the store
// is backed by an external system.
type OrderStore interface {
	// Create persists a new order from the draft and returns it.
	Create(ctx context.Context, draft model.OrderDraft) (model.Order, error)

	// Get returns the order, or ErrNotFound.
	Get(ctx context.Context, orderID string) (model.Order, error)

	// Update applies the non-nil fields of upd and returns the new order.
	Update(ctx context.Context, orderID string, upd model.OrderUpdate) (model.Order, error)

	// List returns all orders, newest first.
	List(ctx context.Context) ([]model.Order, error)
}
