// Package orders provides the order store capability.
//
// The hub owns no durable order history; this in-memory store holds the
// working set for the process lifetime. An external persistence service can
// replace it behind the core.OrderStore interface without touching the
// dispatch engine, whose status invariants are enforced above the store.
package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
)

var _ core.OrderStore = (*MemoryStore)(nil)

// MemoryStore is a mutex-guarded in-memory order store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*model.Order

	// now is the clock seam for tests.
	now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*model.Order),
		now:    time.Now,
	}
}

// Create persists a new order in Placed status. A caller-provided id is
// honoured (viewers generate their own); otherwise an ORD-<millis> id is
// assigned.
func (s *MemoryStore) Create(ctx context.Context, draft model.OrderDraft) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := draft.ID
	if id == "" {
		id = fmt.Sprintf("ORD-%d", now.UnixMilli())
		// Two orders inside the same millisecond are rare but possible.
		for i := 1; ; i++ {
			if _, taken := s.orders[id]; !taken {
				break
			}
			id = fmt.Sprintf("ORD-%d-%d", now.UnixMilli(), i)
		}
	} else if _, taken := s.orders[id]; taken {
		return model.Order{}, fmt.Errorf("order %s already exists: %w", id, core.ErrInvalidState)
	}

	o := &model.Order{
		ID:                 id,
		User:               draft.User,
		RestaurantID:       draft.RestaurantID,
		Items:              append([]model.OrderItem(nil), draft.Items...),
		Total:              draft.Total,
		DeliveryLocationID: draft.DeliveryLocationID,
		Status:             model.OrderPlaced,
		CreatedAt:          now,
	}
	s.orders[id] = o

	return o.Clone(), nil
}

// Get returns a copy of the order, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, orderID string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", orderID, core.ErrNotFound)
	}
	return o.Clone(), nil
}

// Update applies the non-nil fields of upd and returns the updated copy.
// Transition validity is the dispatch service's responsibility; the store
// applies what it is told, mirroring an external persistence service.
func (s *MemoryStore) Update(ctx context.Context, orderID string, upd model.OrderUpdate) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", orderID, core.ErrNotFound)
	}

	if upd.Status != nil {
		o.Status = *upd.Status
	}
	if upd.VehicleID != nil {
		o.VehicleID = *upd.VehicleID
	}
	if upd.FailReason != nil {
		o.FailReason = *upd.FailReason
	}

	return o.Clone(), nil
}

// List returns all orders, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
