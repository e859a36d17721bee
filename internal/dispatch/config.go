// Package dispatch assembles the drone delivery dispatch hub from its parts:
// the fleet registry, the order store, the vehicle control backend, the
// telemetry loop, the viewer broadcast channel and the HTTP API.
package dispatch

import (
	"fmt"
	"os"

	"github.com/skycourier-io/skycourier/internal/dispatch/broadcast"
	controlmqtt "github.com/skycourier-io/skycourier/internal/dispatch/control/mqtt"
	"github.com/skycourier-io/skycourier/internal/dispatch/control/sim"
	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/service"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
	"github.com/skycourier-io/skycourier/internal/dispatch/orders"
	httpserver "github.com/skycourier-io/skycourier/internal/dispatch/server/http"
	"github.com/skycourier-io/skycourier/internal/dispatch/telemetry"
	"github.com/skycourier-io/skycourier/pkg/log"
	"github.com/skycourier-io/skycourier/pkg/mqtt"
	genericoptions "github.com/skycourier-io/skycourier/pkg/options"
)

// Config holds the validated option groups the hub is built from.
type Config struct {
	HTTPOptions      *genericoptions.HTTPOptions
	MQTTOptions      *genericoptions.MQTTOptions
	FleetOptions     *genericoptions.FleetOptions
	TelemetryOptions *genericoptions.TelemetryOptions
	BroadcastOptions *genericoptions.BroadcastOptions
	ControlOptions   *genericoptions.ControlOptions
}

// NewDispatchServer wires the hub: secondary adapters first (control backend,
// store, broadcast), then the core service, then the ingress servers.
func (cfg *Config) NewDispatchServer() (*DispatchServer, error) {
	registry := fleet.NewRegistry()
	store := orders.NewMemoryStore()
	hub := broadcast.NewHub(cfg.BroadcastOptions.QueueSize)

	var (
		control    core.VehicleControl
		simFleet   *sim.Fleet
		mqttClient mqtt.Client
	)
	switch cfg.ControlOptions.Mode {
	case genericoptions.ControlModeMQTT:
		client, err := initializeMQTTClient(cfg.MQTTOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		mqttClient = client
		// Telemetry older than three poll cycles counts as a dead link.
		control = controlmqtt.New(client, cfg.MQTTOptions.TopicRoot, 3*cfg.TelemetryOptions.PollInterval)
	default:
		simFleet = sim.New(cfg.ControlOptions.SimSpeed, cfg.ControlOptions.SimTick)
		control = simFleet
	}

	svc := service.New(registry, store, control, hub)

	provisioner := fleet.NewProvisioner(cfg.FleetOptions.Manifest, registry)
	provisioner.OnProvision = func(spec fleet.VehicleSpec) {
		if simFleet != nil {
			simFleet.Seed(spec.ID, spec.Home)
		}
		if v, ok := registry.Get(spec.ID); ok {
			hub.Publish(model.NewVehicleUpdateEvent(v))
		}
	}
	if err := provisioner.Apply(); err != nil {
		return nil, fmt.Errorf("failed to apply fleet manifest: %w", err)
	}

	synchronizer := telemetry.New(registry, control, svc, hub,
		cfg.TelemetryOptions.PollInterval, cfg.TelemetryOptions.ArrivalEpsilon)

	httpSrv := httpserver.NewServer(cfg.HTTPOptions, svc, hub, cfg.BroadcastOptions.SnapshotInterval)

	return &DispatchServer{
		httpServer:    httpSrv,
		synchronizer:  synchronizer,
		simFleet:      simFleet,
		mqttClient:    mqttClient,
		provisioner:   provisioner,
		watchManifest: cfg.FleetOptions.Watch,
	}, nil
}

func initializeMQTTClient(opts *genericoptions.MQTTOptions) (mqtt.Client, error) {
	cfg := opts.ToClientConfig()

	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("skyc-dispatch-%s", hostname)
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "failed to new mqtt client")
		return nil, err
	}
	return client, nil
}
