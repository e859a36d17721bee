package broadcast

import (
	"fmt"
	"testing"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
)

func orderEvent(id string, seq int) model.Event {
	return model.Event{
		Kind:    model.EventOrderUpdated,
		Entity:  id,
		Payload: fmt.Sprintf("%s#%d", id, seq),
	}
}

func TestPerEntityOrdering(t *testing.T) {
	h := NewHub(16)
	sub := h.Subscribe()
	defer h.Unsubscribe(sub.ID())

	for i := 0; i < 10; i++ {
		h.Publish(orderEvent("ORD-1", i))
	}

	for i := 0; i < 10; i++ {
		evt, ok := sub.Next()
		if !ok {
			t.Fatal("stream closed early")
		}
		if want := fmt.Sprintf("ORD-1#%d", i); evt.Payload != want {
			t.Fatalf("event %d = %v, want %s", i, evt.Payload, want)
		}
	}
}

func TestDropOldestWhenFull(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe()
	defer h.Unsubscribe(sub.ID())

	// Nobody is draining; only the newest four events survive.
	for i := 0; i < 10; i++ {
		h.Publish(orderEvent("ORD-1", i))
	}

	for i := 6; i < 10; i++ {
		evt, ok := sub.Next()
		if !ok {
			t.Fatal("stream closed early")
		}
		if want := fmt.Sprintf("ORD-1#%d", i); evt.Payload != want {
			t.Fatalf("got %v, want %s", evt.Payload, want)
		}
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe()
	defer h.Unsubscribe(sub.ID())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(orderEvent("ORD-1", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}

func TestUnsubscribeClosesStream(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe()

	h.Publish(orderEvent("ORD-1", 0))
	h.Unsubscribe(sub.ID())

	// The queued event is still delivered, then the stream ends.
	if _, ok := sub.Next(); !ok {
		t.Fatal("queued event lost on unsubscribe")
	}
	if _, ok := sub.Next(); ok {
		t.Fatal("stream still open after unsubscribe")
	}

	if h.Len() != 0 {
		t.Errorf("hub still tracks %d subscribers", h.Len())
	}
}

func TestIndependentSubscribers(t *testing.T) {
	h := NewHub(8)
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a.ID())
	defer h.Unsubscribe(b.ID())

	h.Publish(orderEvent("ORD-1", 1))

	for _, sub := range []*Subscriber{a, b} {
		evt, ok := sub.Next()
		if !ok || evt.Entity != "ORD-1" {
			t.Fatalf("subscriber %s missed the event", sub.ID())
		}
	}
}
