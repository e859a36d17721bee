package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/control/sim"
	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
	"github.com/skycourier-io/skycourier/pkg/geo"
)

var home = geo.Position{Lat: 16.4663, Lon: 80.5036}

type fakeCompleter struct {
	mu         sync.Mutex
	deliveries []string
	returns    []string
}

func (f *fakeCompleter) CompleteDelivery(ctx context.Context, vehicleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, vehicleID)
	return nil
}

func (f *fakeCompleter) CompleteReturn(ctx context.Context, vehicleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returns = append(f.returns, vehicleID)
	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *capturingPublisher) Publish(evt model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *capturingPublisher) byKind(kind model.EventKind) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestRig(t *testing.T) (*fleet.Registry, *sim.Fleet, *fakeCompleter, *capturingPublisher, *Synchronizer) {
	t.Helper()
	registry := fleet.NewRegistry()
	registry.Provision(fleet.VehicleSpec{ID: "drone-1", Model: "X500", Endpoint: "sim://drone-1", Home: home})

	fl := sim.New(0.001, time.Second)
	fl.Seed("drone-1", home)

	completer := &fakeCompleter{}
	publisher := &capturingPublisher{}
	// The sim fleet has no push capability, so these rigs exercise the
	// polling path.
	s := New(registry, fl, completer, publisher, 2*time.Second, 0.00005)
	return registry, fl, completer, publisher, s
}

func connect(t *testing.T, registry *fleet.Registry, fl *sim.Fleet, vehicleID string) {
	t.Helper()
	if err := fl.Connect(context.Background(), vehicleID, "sim://"+vehicleID); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.SetLinkState(vehicleID, model.LinkConnected); err != nil {
		t.Fatal(err)
	}
}

func TestSyncMergesTelemetry(t *testing.T) {
	ctx := context.Background()
	registry, fl, _, _, s := newTestRig(t)
	connect(t, registry, fl, "drone-1")

	dst := geo.Position{Lat: home.Lat + 0.01, Lon: home.Lon}
	if err := fl.CommandGoto(ctx, "drone-1", dst); err != nil {
		t.Fatal(err)
	}
	fl.Step()
	s.Sync(ctx)

	v, _ := registry.Get("drone-1")
	if v.Position == home {
		t.Error("position not merged from telemetry")
	}
	if !v.Armed {
		t.Error("armed flag not merged")
	}
	if v.LastSeen.IsZero() {
		t.Error("lastSeen not stamped")
	}
}

func TestSyncSkipsDisconnectedVehicles(t *testing.T) {
	ctx := context.Background()
	registry, _, _, publisher, s := newTestRig(t)

	// Vehicle is provisioned but never connected; a pass must not touch it.
	s.Sync(ctx)

	v, _ := registry.Get("drone-1")
	if !v.LastSeen.IsZero() {
		t.Error("disconnected vehicle was polled")
	}
	if got := publisher.byKind(model.EventVehicleUpdate); len(got) != 0 {
		t.Errorf("unexpected events: %d", len(got))
	}
}

func TestPollFailureMarksDisconnectedKeepsMission(t *testing.T) {
	ctx := context.Background()
	registry, fl, _, publisher, s := newTestRig(t)
	connect(t, registry, fl, "drone-1")

	dst := geo.Position{Lat: home.Lat + 0.01, Lon: home.Lon}
	if _, err := registry.SetMission("drone-1", model.MissionOutbound,
		&model.Mission{Kind: model.MissionDelivery, Destination: dst, OrderID: "ORD-1"}); err != nil {
		t.Fatal(err)
	}

	fl.SetLinkDown("drone-1", true)
	s.Sync(ctx)

	v, _ := registry.Get("drone-1")
	if v.LinkState != model.LinkDisconnected {
		t.Errorf("linkState = %s, want Disconnected", v.LinkState)
	}
	if v.MissionState != model.MissionOutbound || v.Mission == nil {
		t.Error("mission state was abandoned on link loss")
	}
	if got := publisher.byKind(model.EventVehicleUpdate); len(got) != 1 {
		t.Fatalf("vehicle_update events = %d, want 1", len(got))
	}
}

func TestRecoveredLinkResumesMission(t *testing.T) {
	ctx := context.Background()
	registry, fl, completer, _, s := newTestRig(t)
	connect(t, registry, fl, "drone-1")

	dst := geo.Position{Lat: home.Lat + 0.002, Lon: home.Lon}
	if err := fl.CommandGoto(ctx, "drone-1", dst); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.SetMission("drone-1", model.MissionOutbound,
		&model.Mission{Kind: model.MissionDelivery, Destination: dst, OrderID: "ORD-1"}); err != nil {
		t.Fatal(err)
	}

	fl.SetLinkDown("drone-1", true)
	s.Sync(ctx)

	// The vehicle keeps flying and arrives while the hub cannot see it.
	fl.Step()
	fl.Step()
	s.Sync(ctx)
	if len(completer.deliveries) != 0 {
		t.Fatal("arrival detected without telemetry")
	}

	fl.SetLinkDown("drone-1", false)
	connect(t, registry, fl, "drone-1")
	s.Sync(ctx)

	if len(completer.deliveries) != 1 || completer.deliveries[0] != "drone-1" {
		t.Errorf("deliveries = %v, want [drone-1]", completer.deliveries)
	}
}

func TestArrivalOnReturnLeg(t *testing.T) {
	ctx := context.Background()
	registry, fl, completer, _, s := newTestRig(t)
	connect(t, registry, fl, "drone-1")

	if _, err := registry.SetMission("drone-1", model.MissionReturning,
		&model.Mission{Kind: model.MissionReturn, Destination: home}); err != nil {
		t.Fatal(err)
	}

	// Parked at home already: the first pass detects arrival.
	s.Sync(ctx)

	if len(completer.returns) != 1 {
		t.Fatalf("returns = %v, want [drone-1]", completer.returns)
	}
	if len(completer.deliveries) != 0 {
		t.Errorf("unexpected deliveries: %v", completer.deliveries)
	}
}

func TestNoArrivalBeforeEpsilon(t *testing.T) {
	ctx := context.Background()
	registry, fl, completer, _, s := newTestRig(t)
	connect(t, registry, fl, "drone-1")

	dst := geo.Position{Lat: home.Lat + 0.01, Lon: home.Lon}
	if err := fl.CommandGoto(ctx, "drone-1", dst); err != nil {
		t.Fatal(err)
	}
	if _, err := registry.SetMission("drone-1", model.MissionOutbound,
		&model.Mission{Kind: model.MissionDelivery, Destination: dst, OrderID: "ORD-1"}); err != nil {
		t.Fatal(err)
	}

	fl.Step()
	s.Sync(ctx)

	if len(completer.deliveries) != 0 {
		t.Errorf("arrival fired mid-flight: %v", completer.deliveries)
	}
}

func TestPushStreamsPreferredOverPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, fl, completer, publisher, _ := newTestRig(t)
	connect(t, registry, fl, "drone-1")

	// The sim fleet does not push; fake a pusher that streams one sample.
	pusher := &fakePusher{samples: map[string][]model.Telemetry{
		"drone-1": {{Armed: true, Position: geo.Position{Lat: home.Lat + 0.001, Lon: home.Lon}, Battery: 90}},
	}}
	s := New(registry, pusher, completer, publisher, 2*time.Second, 0.00005)

	s.Sync(ctx)

	// Give the stream goroutine a moment to drain.
	deadline := time.After(2 * time.Second)
	for {
		v, _ := registry.Get("drone-1")
		if v.Battery == 90 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("pushed telemetry never merged")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The backend read each pass is only a freshness check: its empty
	// sample must not clobber the streamed one.
	s.Sync(ctx)
	if pusher.reads.Load() == 0 {
		t.Error("link freshness never verified")
	}
	v, _ := registry.Get("drone-1")
	if v.Battery != 90 {
		t.Errorf("battery = %v, streamed sample was overwritten", v.Battery)
	}
	if v.LinkState != model.LinkConnected {
		t.Errorf("linkState = %s, want Connected", v.LinkState)
	}
}

func TestPushModeDetectsSilentVehicle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, fl, completer, publisher, _ := newTestRig(t)
	connect(t, registry, fl, "drone-1")

	// The stream never yields and the backend reports its cache as stale.
	pusher := &fakePusher{readErr: core.ErrLinkError}
	s := New(registry, pusher, completer, publisher, 2*time.Second, 0.00005)

	s.Sync(ctx)

	v, _ := registry.Get("drone-1")
	if v.LinkState != model.LinkDisconnected {
		t.Errorf("linkState = %s, want Disconnected", v.LinkState)
	}
	if got := publisher.byKind(model.EventVehicleUpdate); len(got) != 1 {
		t.Errorf("vehicle_update events = %d, want 1", len(got))
	}
}

type fakePusher struct {
	samples map[string][]model.Telemetry
	readErr error
	reads   atomic.Int64
}

func (f *fakePusher) Connect(ctx context.Context, vehicleID, endpoint string) error { return nil }
func (f *fakePusher) Disconnect(ctx context.Context, vehicleID string) error        { return nil }
func (f *fakePusher) CommandGoto(ctx context.Context, vehicleID string, dst geo.Position) error {
	return nil
}
func (f *fakePusher) CommandReturnToLaunch(ctx context.Context, vehicleID string) error { return nil }

func (f *fakePusher) ReadTelemetry(ctx context.Context, vehicleID string) (model.Telemetry, error) {
	f.reads.Add(1)
	if f.readErr != nil {
		return model.Telemetry{}, f.readErr
	}
	return model.Telemetry{}, nil
}

func (f *fakePusher) SubscribeTelemetry(ctx context.Context, vehicleID string) (<-chan model.Telemetry, error) {
	ch := make(chan model.Telemetry, len(f.samples[vehicleID])+1)
	for _, tel := range f.samples[vehicleID] {
		ch <- tel
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}
