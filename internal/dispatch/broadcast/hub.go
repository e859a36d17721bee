// Package broadcast fans committed state changes out to connected viewers.
//
// Each subscriber owns a bounded FIFO queue. Publish never blocks: when a
// queue is full the oldest event is dropped to make room, which is not an
// error for the publisher. Per-entity ordering is preserved because
// publishers commit events for one entity sequentially and each queue is
// drained in order; there is no cross-entity guarantee.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/pkg/metrics"
	"github.com/skycourier-io/skycourier/pkg/log"
)

// Subscriber is one viewer's event stream.
type Subscriber struct {
	id string

	mu     sync.Mutex
	queue  []model.Event
	wake   chan struct{}
	closed bool

	queueSize int
}

// ID returns the subscriber's unique id.
func (s *Subscriber) ID() string { return s.id }

// push enqueues an event, dropping the oldest entry when the queue is full.
func (s *Subscriber) push(evt model.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.queueSize {
		s.queue = s.queue[1:]
		metrics.BroadcastDropped.Inc()
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available or the subscriber is closed.
// The second return is false once the stream is closed and drained.
func (s *Subscriber) Next() (model.Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return evt, true
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return model.Event{}, false
		}
		<-s.wake
	}
}

// close marks the stream finished and wakes any blocked reader.
func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Hub is the broadcast channel shared by all publishers and viewers.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscriber
	queueSize int
}

// NewHub creates a hub whose subscribers buffer up to queueSize events.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Hub{
		subs:      make(map[string]*Subscriber),
		queueSize: queueSize,
	}
}

// Subscribe registers a new viewer. The viewer sees only events published
// after this call; late joiners fetch a snapshot through the pull API first.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		id:        uuid.NewString(),
		wake:      make(chan struct{}, 1),
		queueSize: h.queueSize,
	}

	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()

	log.Debug("Viewer subscribed", "subscriber", s.id)
	return s
}

// Unsubscribe removes the viewer and closes its stream.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()

	if ok {
		s.close()
		log.Debug("Viewer unsubscribed", "subscriber", id)
	}
}

// Publish delivers the event to every subscriber without ever blocking.
func (h *Hub) Publish(evt model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		s.push(evt)
	}
}

// Len returns the current number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
