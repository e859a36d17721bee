package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/pkg/geo"
	"github.com/skycourier-io/skycourier/pkg/mqtt"
)

// fakeClient records publishes and lets tests inject inbound messages.
type fakeClient struct {
	mu       sync.Mutex
	started  bool
	pubs     []fakePublish
	handlers map[string]mqtt.MessageHandler
	pubErr   error
}

type fakePublish struct {
	topic   string
	payload []byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeClient) Start(ctx context.Context) error { f.started = true; return nil }
func (f *fakeClient) Disconnect(ctx context.Context)  {}

func (f *fakeClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pubErr != nil {
		return f.pubErr
	}
	f.pubs = append(f.pubs, fakePublish{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(ctx context.Context, topic string, qos int, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) Unsubscribe(ctx context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeClient) AwaitConnection(ctx context.Context) error { return nil }

// inject delivers a broker message to the registered handler.
func (f *fakeClient) inject(t *testing.T, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler for topic %s", topic)
	}
	h(context.Background(), topic, payload)
}

func (f *fakeClient) lastPublish(t *testing.T) fakePublish {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pubs) == 0 {
		t.Fatal("no publishes recorded")
	}
	return f.pubs[len(f.pubs)-1]
}

func TestConnectSubscribesAndForwardsEndpoint(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	c := New(fc, "fleet", 5*time.Second)

	if err := c.Connect(ctx, "drone-1", "udp:drone-1:14550"); err != nil {
		t.Fatal(err)
	}

	if _, ok := fc.handlers["fleet/drone-1/telemetry"]; !ok {
		t.Error("telemetry topic not subscribed")
	}

	pub := fc.lastPublish(t)
	if pub.topic != "fleet/drone-1/cmd" {
		t.Errorf("command topic = %s", pub.topic)
	}
	var cmd command
	if err := json.Unmarshal(pub.payload, &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Action != actionConnect || cmd.Endpoint != "udp:drone-1:14550" {
		t.Errorf("command = %+v", cmd)
	}
	if cmd.ID == "" {
		t.Error("command has no correlation id")
	}
}

func TestCommandGotoCarriesTarget(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	c := New(fc, "fleet", 5*time.Second)

	dst := geo.Position{Lat: 16.47, Lon: 80.51}
	if err := c.CommandGoto(ctx, "drone-1", dst); err != nil {
		t.Fatal(err)
	}

	var cmd command
	if err := json.Unmarshal(fc.lastPublish(t).payload, &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Action != actionGoto || cmd.Target == nil || *cmd.Target != dst {
		t.Errorf("command = %+v", cmd)
	}
}

func TestPublishFailureIsLinkError(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	fc.pubErr = errors.New("broker gone")
	c := New(fc, "fleet", 5*time.Second)

	if err := c.CommandReturnToLaunch(ctx, "drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Errorf("err = %v, want ErrLinkError", err)
	}
}

func TestReadTelemetryStaleness(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	c := New(fc, "fleet", 5*time.Second)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, err := c.ReadTelemetry(ctx, "drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Fatalf("no link: err = %v, want ErrLinkError", err)
	}

	if err := c.Connect(ctx, "drone-1", "udp:drone-1:14550"); err != nil {
		t.Fatal(err)
	}

	// Nothing pushed yet.
	if _, err := c.ReadTelemetry(ctx, "drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Fatalf("no data: err = %v, want ErrLinkError", err)
	}

	fc.inject(t, "fleet/drone-1/telemetry",
		[]byte(`{"armed":true,"position":{"lat":16.47,"lon":80.51},"battery":87.5}`))

	tel, err := c.ReadTelemetry(ctx, "drone-1")
	if err != nil {
		t.Fatal(err)
	}
	if !tel.Armed || tel.Battery != 87.5 || tel.Position.Lat != 16.47 {
		t.Errorf("telemetry = %+v", tel)
	}

	// Past the staleness window the cache no longer counts.
	now = now.Add(6 * time.Second)
	if _, err := c.ReadTelemetry(ctx, "drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Errorf("stale: err = %v, want ErrLinkError", err)
	}
}

func TestMalformedTelemetryIgnored(t *testing.T) {
	ctx := context.Background()
	fc := newFakeClient()
	c := New(fc, "fleet", 5*time.Second)

	if err := c.Connect(ctx, "drone-1", "udp:drone-1:14550"); err != nil {
		t.Fatal(err)
	}
	fc.inject(t, "fleet/drone-1/telemetry", []byte(`not json`))

	if _, err := c.ReadTelemetry(ctx, "drone-1"); !errors.Is(err, core.ErrLinkError) {
		t.Errorf("err = %v, want ErrLinkError", err)
	}
}

func TestSubscribeTelemetryStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := newFakeClient()
	c := New(fc, "fleet", 5*time.Second)

	if err := c.Connect(ctx, "drone-1", "udp:drone-1:14550"); err != nil {
		t.Fatal(err)
	}
	stream, err := c.SubscribeTelemetry(ctx, "drone-1")
	if err != nil {
		t.Fatal(err)
	}

	fc.inject(t, "fleet/drone-1/telemetry", []byte(`{"armed":true,"position":{"lat":1,"lon":2},"battery":50}`))

	select {
	case tel := <-stream:
		if tel.Battery != 50 {
			t.Errorf("telemetry = %+v", tel)
		}
	case <-time.After(time.Second):
		t.Fatal("no telemetry pushed")
	}

	// Disconnect closes the stream.
	if err := c.Disconnect(ctx, "drone-1"); err != nil {
		t.Fatal(err)
	}
	select {
	case _, ok := <-stream:
		if ok {
			t.Error("stream still open after disconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}
