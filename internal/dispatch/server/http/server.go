// Package http exposes the dispatch hub's command surface: the REST API for
// operators and viewers, the websocket feed, health probes and metrics.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skycourier-io/skycourier/internal/dispatch/broadcast"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/service"
	"github.com/skycourier-io/skycourier/pkg/log"
	genericoptions "github.com/skycourier-io/skycourier/pkg/options"
)

// Server serves the hub API over one listener.
type Server struct {
	opts *genericoptions.HTTPOptions
	svc  *service.Service
	hub  *broadcast.Hub

	// snapshotInterval paces the periodic status_update frames pushed to
	// websocket viewers.
	snapshotInterval time.Duration

	httpServer *http.Server
}

// NewServer assembles the API server.
func NewServer(opts *genericoptions.HTTPOptions, svc *service.Service, hub *broadcast.Hub,
	snapshotInterval time.Duration) *Server {
	s := &Server{
		opts:             opts,
		svc:              svc,
		hub:              hub,
		snapshotInterval: snapshotInterval,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: opts.Timeout,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/orders", s.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleUpdateOrder).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/launch", s.handleLaunch).Methods(http.MethodPost)

	api.HandleFunc("/drones", s.handleListVehicles).Methods(http.MethodGet)
	api.HandleFunc("/drones/{id}", s.handleGetVehicle).Methods(http.MethodGet)
	api.HandleFunc("/drones/{id}/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/drones/{id}/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/drones/{id}/rtl", s.handleReturnToLaunch).Methods(http.MethodPost)
	api.HandleFunc("/drones/{id}/connection", s.handleSetConnection).Methods(http.MethodPut)

	api.HandleFunc("/delivery-sites", s.handleListSites).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWebsocket)

	return r
}

// Run serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen(s.opts.Network, s.opts.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "addr", s.opts.Addr)
		if serr := s.httpServer.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()
	log.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "skyc-dispatch",
		"drones":  len(s.svc.Vehicles()),
	})
}
