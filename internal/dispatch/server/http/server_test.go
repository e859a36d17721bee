package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skycourier-io/skycourier/internal/dispatch/broadcast"
	"github.com/skycourier-io/skycourier/internal/dispatch/control/sim"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/service"
	"github.com/skycourier-io/skycourier/internal/dispatch/fleet"
	"github.com/skycourier-io/skycourier/internal/dispatch/orders"
	"github.com/skycourier-io/skycourier/pkg/geo"
	genericoptions "github.com/skycourier-io/skycourier/pkg/options"
)

var (
	home  = geo.Position{Lat: 16.4663, Lon: 80.5036}
	siteA = fleet.Site{ID: "block-a", Name: "Block A", Position: geo.Position{Lat: 16.4685, Lon: 80.5036}}
)

func newTestServer(t *testing.T) (*Server, *sim.Fleet) {
	t.Helper()

	registry := fleet.NewRegistry()
	registry.SetSites([]fleet.Site{siteA})
	store := orders.NewMemoryStore()
	fl := sim.New(0.001, time.Second)
	hub := broadcast.NewHub(64)
	svc := service.New(registry, store, fl, hub)

	svc.ProvisionVehicle(fleet.VehicleSpec{ID: "drone-1", Model: "X500", Endpoint: "sim://drone-1", Home: home})
	fl.Seed("drone-1", home)

	return NewServer(genericoptions.NewHTTPOptions(), svc, hub, 100*time.Millisecond), fl
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func TestOrderLifecycleOverAPI(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/api/orders", model.OrderDraft{
		User:               "alice",
		DeliveryLocationID: siteA.ID,
		Items:              []model.OrderItem{{ID: "item-1", Name: "Biryani", Price: 12.5, Quantity: 1}},
		Total:              12.5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	o := decode[model.Order](t, rec)
	if o.Status != model.OrderPlaced || !strings.HasPrefix(o.ID, "ORD-") {
		t.Fatalf("order = %+v", o)
	}

	for _, next := range []model.OrderStatus{model.OrderAccepted, model.OrderCooking, model.OrderReadyForLaunch} {
		rec = doJSON(t, h, http.MethodPatch, "/api/orders/"+o.ID, map[string]any{"status": next})
		if rec.Code != http.StatusOK {
			t.Fatalf("to %s: status %d, body %s", next, rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(t, h, http.MethodGet, "/api/orders/"+o.ID, nil)
	if got := decode[model.Order](t, rec); got.Status != model.OrderReadyForLaunch {
		t.Errorf("status = %s", got.Status)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/orders", nil)
	if list := decode[[]model.Order](t, rec); len(list) != 1 {
		t.Errorf("list = %d orders", len(list))
	}
}

func TestLaunchEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/api/orders", model.OrderDraft{User: "alice", DeliveryLocationID: siteA.ID})
	o := decode[model.Order](t, rec)
	for _, next := range []model.OrderStatus{model.OrderAccepted, model.OrderCooking, model.OrderReadyForLaunch} {
		doJSON(t, h, http.MethodPatch, "/api/orders/"+o.ID, map[string]any{"status": next})
	}

	if rec = doJSON(t, h, http.MethodPost, "/api/drones/drone-1/connect", nil); rec.Code != http.StatusOK {
		t.Fatalf("connect: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/orders/"+o.ID+"/launch", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("launch: status %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[model.Order](t, rec); got.Status != model.OrderEnRoute || got.VehicleID != "drone-1" {
		t.Errorf("launched order = %+v", got)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/drones/drone-1", nil)
	if v := decode[model.VehicleStatus](t, rec); v.MissionState != model.MissionOutbound || v.OrderID != o.ID {
		t.Errorf("drone = %+v", v)
	}
}

func TestLaunchWithoutVehicleIsConflict(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/api/orders", model.OrderDraft{User: "alice", DeliveryLocationID: siteA.ID})
	o := decode[model.Order](t, rec)
	for _, next := range []model.OrderStatus{model.OrderAccepted, model.OrderCooking, model.OrderReadyForLaunch} {
		doJSON(t, h, http.MethodPatch, "/api/orders/"+o.ID, map[string]any{"status": next})
	}

	rec = doJSON(t, h, http.MethodPost, "/api/orders/"+o.ID+"/launch", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decode[map[string]string](t, rec)
	if resp["error"] == "" {
		t.Error("no human-readable error message")
	}
}

func TestErrorStatuses(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown order", http.MethodGet, "/api/orders/ORD-missing", nil, http.StatusNotFound},
		{"unknown drone", http.MethodGet, "/api/drones/ghost", nil, http.StatusNotFound},
		{"malformed order payload", http.MethodPost, "/api/orders", nil, http.StatusBadRequest},
		{"rtl on disconnected drone", http.MethodPost, "/api/drones/drone-1/rtl", nil, http.StatusBadGateway},
		{"empty connection string", http.MethodPut, "/api/drones/drone-1/connection", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.name == "malformed order payload" {
				req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{not json"))
				rec = httptest.NewRecorder()
				h.ServeHTTP(rec, req)
			} else {
				rec = doJSON(t, h, tt.method, tt.path, tt.body)
			}
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestConnectionStringUpdate(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	rec := doJSON(t, h, http.MethodPut, "/api/drones/drone-1/connection",
		map[string]string{"connectionString": "udp:drone-1:14551"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if v := decode[model.VehicleStatus](t, rec); v.Endpoint != "udp:drone-1:14551" {
		t.Errorf("endpoint = %s", v.Endpoint)
	}

	// Rejected while connected.
	doJSON(t, h, http.MethodPost, "/api/drones/drone-1/connect", nil)
	rec = doJSON(t, h, http.MethodPut, "/api/drones/drone-1/connection",
		map[string]string{"connectionString": "udp:drone-1:14552"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestDeliverySitesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.routes(), http.MethodGet, "/api/delivery-sites", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	sites := decode[[]fleet.Site](t, rec)
	if len(sites) != 1 || sites[0].ID != siteA.ID {
		t.Errorf("sites = %+v", sites)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if rec := doJSON(t, h, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestWebsocketFeed(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// First frame is the immediate status snapshot.
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var snapshot struct {
		Type   string                         `json:"type"`
		Drones map[string]model.VehicleStatus `json:"drones"`
	}
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.Type != "status_update" {
		t.Fatalf("first frame type = %s", snapshot.Type)
	}
	if _, ok := snapshot.Drones["drone-1"]; !ok {
		t.Errorf("snapshot missing drone-1: %+v", snapshot.Drones)
	}

	// A committed order shows up as an order_created frame. Malformed
	// client frames must not kill the feed.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.svc.CreateOrder(context.Background(), model.OrderDraft{User: "alice", DeliveryLocationID: siteA.ID}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("feed died: %v", err)
		}
		if frame["event"] == "order_created" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("order_created frame never arrived")
		}
	}
}
