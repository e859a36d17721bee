// Package telemetry keeps the vehicle registry in sync with the fleet.
//
// The synchronizer polls every connected vehicle on a fixed interval and
// merges the observations into the registry. Backends that can push
// telemetry are consumed through per-vehicle streams instead, with polling
// as the fallback. Arrival detection lives here: when a vehicle closes to
// within the arrival epsilon of its destination, the synchronizer hands the
// vehicle to the mission completer.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
	"github.com/skycourier-io/skycourier/internal/pkg/metrics"
	"github.com/skycourier-io/skycourier/pkg/geo"
	"github.com/skycourier-io/skycourier/pkg/log"
)

// MissionCompleter finishes a flight leg once the vehicle has arrived. It is
// implemented by the dispatch service; both calls are safe to repeat.
type MissionCompleter interface {
	// CompleteDelivery marks the bound order delivered and turns the
	// vehicle around.
	CompleteDelivery(ctx context.Context, vehicleID string) error

	// CompleteReturn parks the vehicle at home, idle and reassignable.
	CompleteReturn(ctx context.Context, vehicleID string) error
}

// Synchronizer drives the telemetry loop for the whole fleet.
type Synchronizer struct {
	registry  *fleet.Registry
	control   core.VehicleControl
	completer MissionCompleter
	publisher core.EventPublisher

	interval time.Duration
	epsilon  float64

	mu      sync.Mutex
	streams map[string]context.CancelFunc
}

// New creates a synchronizer. epsilon is the arrival distance in degrees.
func New(registry *fleet.Registry, control core.VehicleControl, completer MissionCompleter,
	publisher core.EventPublisher, interval time.Duration, epsilon float64) *Synchronizer {
	return &Synchronizer{
		registry:  registry,
		control:   control,
		completer: completer,
		publisher: publisher,
		interval:  interval,
		epsilon:   epsilon,
		streams:   make(map[string]context.CancelFunc),
	}
}

// Run executes sync passes until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info("Starting telemetry synchronizer", "interval", s.interval.String(), "arrivalEpsilon", s.epsilon)
	for {
		select {
		case <-ctx.Done():
			s.stopStreams()
			return nil
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}

// Sync performs one pass over the fleet: connected vehicles are polled in
// parallel, disconnected ones are skipped. Push-capable backends are
// consumed through streams instead, with a per-pass freshness read standing
// in for the poll so link loss is still detected. The pass returns once
// every read has finished; each read is bounded by the sync interval so one
// stuck vehicle cannot stall the loop across passes.
func (s *Synchronizer) Sync(ctx context.Context) {
	pusher, pushable := s.control.(core.TelemetryPusher)

	var wg sync.WaitGroup
	for _, v := range s.registry.List() {
		if v.LinkState != model.LinkConnected {
			continue
		}
		if pushable {
			s.ensureStream(ctx, pusher, v.ID)
		}

		wg.Add(1)
		go func(vehicleID string) {
			defer wg.Done()
			pollCtx, cancel := context.WithTimeout(ctx, s.interval)
			defer cancel()
			if pushable {
				s.checkLink(pollCtx, vehicleID)
			} else {
				s.poll(pollCtx, vehicleID)
			}
		}(v.ID)
	}
	wg.Wait()
}

// poll reads one vehicle and merges the result. A failed read marks the
// vehicle Disconnected; its mission state is left untouched so the flight
// can resume when the link comes back.
func (s *Synchronizer) poll(ctx context.Context, vehicleID string) {
	tel, err := s.control.ReadTelemetry(ctx, vehicleID)
	if err != nil {
		s.markLinkLost(vehicleID, err)
		return
	}
	s.apply(ctx, vehicleID, tel)
}

// checkLink verifies a push-mode vehicle is still reporting. The streams
// carry the data; this read only consults the backend's freshness view, so
// a vehicle that has gone silent is marked Disconnected within one pass
// instead of staying Connected on a dead stream.
func (s *Synchronizer) checkLink(ctx context.Context, vehicleID string) {
	if _, err := s.control.ReadTelemetry(ctx, vehicleID); err != nil {
		s.dropStream(vehicleID)
		s.markLinkLost(vehicleID, err)
	}
}

func (s *Synchronizer) markLinkLost(vehicleID string, err error) {
	metrics.TelemetryPollErrors.WithLabelValues(vehicleID).Inc()
	log.Warn("Telemetry read failed, marking vehicle disconnected", "vehicle", vehicleID, "error", err.Error())

	v, serr := s.registry.SetLinkState(vehicleID, model.LinkDisconnected)
	if serr != nil {
		log.Error(serr, "Failed to record link loss", "vehicle", vehicleID)
		return
	}
	s.publisher.Publish(model.NewVehicleUpdateEvent(v))
}

// apply merges one observation and runs arrival detection.
func (s *Synchronizer) apply(ctx context.Context, vehicleID string, tel model.Telemetry) {
	v, err := s.registry.UpsertTelemetry(vehicleID, model.TelemetryUpdate{
		Armed:    &tel.Armed,
		Position: &tel.Position,
		Battery:  &tel.Battery,
	})
	if err != nil {
		log.Error(err, "Failed to merge telemetry", "vehicle", vehicleID)
		return
	}

	if v.Mission == nil {
		return
	}
	if geo.Distance(v.Position, v.Mission.Destination) >= s.epsilon {
		return
	}

	switch {
	case v.MissionState == model.MissionOutbound && v.Mission.Kind == model.MissionDelivery:
		log.Info("Vehicle arrived at delivery site", "vehicle", vehicleID, "order", v.Mission.OrderID)
		if err := s.completer.CompleteDelivery(ctx, vehicleID); err != nil {
			log.Error(err, "Failed to complete delivery", "vehicle", vehicleID, "order", v.Mission.OrderID)
		}
	case v.MissionState == model.MissionReturning:
		log.Info("Vehicle arrived home", "vehicle", vehicleID)
		if err := s.completer.CompleteReturn(ctx, vehicleID); err != nil {
			log.Error(err, "Failed to complete return", "vehicle", vehicleID)
		}
	}
}

// ensureStream keeps exactly one push subscription per connected vehicle.
// When a stream ends (disconnect, backend restart) the entry is dropped so
// the next pass resubscribes.
func (s *Synchronizer) ensureStream(ctx context.Context, pusher core.TelemetryPusher, vehicleID string) {
	s.mu.Lock()
	if _, ok := s.streams[vehicleID]; ok {
		s.mu.Unlock()
		return
	}
	streamCtx, cancel := context.WithCancel(ctx)
	s.streams[vehicleID] = cancel
	s.mu.Unlock()

	stream, err := pusher.SubscribeTelemetry(streamCtx, vehicleID)
	if err != nil {
		log.Warn("Telemetry subscription failed", "vehicle", vehicleID, "error", err.Error())
		s.dropStream(vehicleID)
		return
	}

	go func() {
		defer s.dropStream(vehicleID)
		for tel := range stream {
			s.apply(streamCtx, vehicleID, tel)
		}
		log.Debug("Telemetry stream ended", "vehicle", vehicleID)
	}()
}

func (s *Synchronizer) dropStream(vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.streams[vehicleID]; ok {
		cancel()
		delete(s.streams, vehicleID)
	}
}

func (s *Synchronizer) stopStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.streams {
		cancel()
		delete(s.streams, id)
	}
}
