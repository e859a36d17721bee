// Package mqtt is the vehicle control backend for fleets reachable over an
// MQTT broker.
//
// Commands go to {root}/{vehicle}/cmd; each vehicle's agent publishes its
// state to {root}/{vehicle}/telemetry. ReadTelemetry answers from a
// staleness-checked cache fed by the subscription, so the polling
// synchronizer sees a silent vehicle as a link failure.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/pkg/geo"
	"github.com/skycourier-io/skycourier/pkg/log"
	"github.com/skycourier-io/skycourier/pkg/mqtt"
)

var (
	_ core.VehicleControl  = (*Control)(nil)
	_ core.TelemetryPusher = (*Control)(nil)
)

const (
	actionConnect = "connect"
	actionGoto    = "goto"
	actionRTL     = "rtl"

	commandQoS   = 1
	telemetryQoS = 0
)

// command is the wire format published to a vehicle's cmd topic.
type command struct {
	ID       string        `json:"id"`
	Action   string        `json:"action"`
	Endpoint string        `json:"endpoint,omitempty"`
	Target   *geo.Position `json:"target,omitempty"`
}

type vehicleLink struct {
	lastTelemetry model.Telemetry
	lastAt        time.Time
	streams       map[string]chan model.Telemetry
}

// Control drives vehicles through an MQTT broker.
type Control struct {
	client    mqtt.Client
	topicRoot string

	// staleness bounds how old cached telemetry may be before ReadTelemetry
	// treats the link as down.
	staleness time.Duration

	mu    sync.Mutex
	links map[string]*vehicleLink

	now func() time.Time
}

// New creates a control backend on an already configured MQTT client.
// The client is started by the server manager, not here.
func New(client mqtt.Client, topicRoot string, staleness time.Duration) *Control {
	return &Control{
		client:    client,
		topicRoot: topicRoot,
		staleness: staleness,
		links:     make(map[string]*vehicleLink),
		now:       time.Now,
	}
}

func (c *Control) cmdTopic(vehicleID string) string {
	return fmt.Sprintf("%s/%s/cmd", c.topicRoot, vehicleID)
}

func (c *Control) telemetryTopic(vehicleID string) string {
	return fmt.Sprintf("%s/%s/telemetry", c.topicRoot, vehicleID)
}

func (c *Control) publish(ctx context.Context, vehicleID string, cmd command) error {
	cmd.ID = uuid.NewString()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.cmdTopic(vehicleID), commandQoS, false, payload); err != nil {
		return fmt.Errorf("publish %s to vehicle %s: %w: %v", cmd.Action, vehicleID, core.ErrLinkError, err)
	}
	log.Debug("Published vehicle command", "vehicle", vehicleID, "action", cmd.Action, "commandID", cmd.ID)
	return nil
}

// Connect subscribes to the vehicle's telemetry stream and forwards the
// endpoint to its agent so it can open the flight-controller link.
func (c *Control) Connect(ctx context.Context, vehicleID, endpoint string) error {
	c.mu.Lock()
	if _, ok := c.links[vehicleID]; !ok {
		c.links[vehicleID] = &vehicleLink{streams: make(map[string]chan model.Telemetry)}
	}
	c.mu.Unlock()

	if err := c.client.Subscribe(ctx, c.telemetryTopic(vehicleID), telemetryQoS, c.onTelemetry(vehicleID)); err != nil {
		return fmt.Errorf("subscribe telemetry for vehicle %s: %w: %v", vehicleID, core.ErrLinkError, err)
	}
	return c.publish(ctx, vehicleID, command{Action: actionConnect, Endpoint: endpoint})
}

// Disconnect drops the telemetry subscription and forgets cached state.
func (c *Control) Disconnect(ctx context.Context, vehicleID string) error {
	err := c.client.Unsubscribe(ctx, c.telemetryTopic(vehicleID))

	c.mu.Lock()
	if link, ok := c.links[vehicleID]; ok {
		for _, ch := range link.streams {
			close(ch)
		}
		delete(c.links, vehicleID)
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("unsubscribe telemetry for vehicle %s: %w: %v", vehicleID, core.ErrLinkError, err)
	}
	return nil
}

// CommandGoto sends the vehicle toward dst.
func (c *Control) CommandGoto(ctx context.Context, vehicleID string, dst geo.Position) error {
	return c.publish(ctx, vehicleID, command{Action: actionGoto, Target: &dst})
}

// CommandReturnToLaunch sends the vehicle back to its home position.
func (c *Control) CommandReturnToLaunch(ctx context.Context, vehicleID string) error {
	return c.publish(ctx, vehicleID, command{Action: actionRTL})
}

// ReadTelemetry returns the last pushed observation. A vehicle that has not
// published within the staleness window counts as unreachable.
func (c *Control) ReadTelemetry(ctx context.Context, vehicleID string) (model.Telemetry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	link, ok := c.links[vehicleID]
	if !ok {
		return model.Telemetry{}, fmt.Errorf("vehicle %s has no control link: %w", vehicleID, core.ErrLinkError)
	}
	if link.lastAt.IsZero() || c.now().Sub(link.lastAt) > c.staleness {
		return model.Telemetry{}, fmt.Errorf("telemetry for vehicle %s is stale: %w", vehicleID, core.ErrLinkError)
	}
	return link.lastTelemetry, nil
}

// SubscribeTelemetry streams pushed telemetry for one vehicle. The stream
// closes when ctx is cancelled or the vehicle disconnects.
func (c *Control) SubscribeTelemetry(ctx context.Context, vehicleID string) (<-chan model.Telemetry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	link, ok := c.links[vehicleID]
	if !ok {
		return nil, fmt.Errorf("vehicle %s has no control link: %w", vehicleID, core.ErrLinkError)
	}

	id := uuid.NewString()
	ch := make(chan model.Telemetry, 8)
	link.streams[id] = ch

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		if l, ok := c.links[vehicleID]; ok {
			if s, ok := l.streams[id]; ok {
				delete(l.streams, id)
				close(s)
			}
		}
	}()

	return ch, nil
}

// onTelemetry caches each observation and fans it out to push subscribers.
func (c *Control) onTelemetry(vehicleID string) mqtt.MessageHandler {
	return func(ctx context.Context, topic string, payload []byte) {
		var tel model.Telemetry
		if err := json.Unmarshal(payload, &tel); err != nil {
			log.Warn("Dropping malformed telemetry", "vehicle", vehicleID, "topic", topic, "error", err.Error())
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		link, ok := c.links[vehicleID]
		if !ok {
			// Raced with Disconnect.
			return
		}
		link.lastTelemetry = tel
		link.lastAt = c.now()
		for _, ch := range link.streams {
			select {
			case ch <- tel:
			default:
			}
		}
	}
}
