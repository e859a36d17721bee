package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/skycourier-io/skycourier/internal/dispatch/control/sim"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
	httpserver "github.com/skycourier-io/skycourier/internal/dispatch/server/http"
	"github.com/skycourier-io/skycourier/internal/dispatch/telemetry"
	"github.com/skycourier-io/skycourier/pkg/log"
	"github.com/skycourier-io/skycourier/pkg/mqtt"
)

// DispatchServer is the assembled hub process.
type DispatchServer struct {
	httpServer   *httpserver.Server
	synchronizer *telemetry.Synchronizer

	// simFleet and mqttClient are set according to the control mode; at
	// most one of them is non-nil.
	simFleet   *sim.Fleet
	mqttClient mqtt.Client

	provisioner   *fleet.Provisioner
	watchManifest bool
}

// Run launches every long-running loop and blocks until the first one fails
// or ctx is cancelled.
func (s *DispatchServer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.mqttClient != nil {
		if err := s.mqttClient.Start(ctx); err != nil {
			return err
		}
		defer s.mqttClient.Disconnect(context.Background())
	}

	g.Go(func() error {
		return s.httpServer.Run(ctx)
	})
	g.Go(func() error {
		return s.synchronizer.Run(ctx)
	})
	if s.simFleet != nil {
		g.Go(func() error {
			return s.simFleet.Start(ctx)
		})
	}
	if s.watchManifest {
		g.Go(func() error {
			return s.provisioner.Watch(ctx)
		})
	}

	log.Info("Dispatch hub started")
	return g.Wait()
}
