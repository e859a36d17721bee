package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skycourier-io/skycourier/internal/dispatch/core"
	"github.com/skycourier-io/skycourier/internal/dispatch/core/model"
	"github.com/skycourier-io/skycourier/pkg/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error(err, "Failed to encode response")
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrNoAvailableVehicle):
		status = http.StatusConflict
	case errors.Is(err, core.ErrLinkError), errors.Is(err, core.ErrCommandRejected):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var draft model.OrderDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order payload: " + err.Error()})
		return
	}

	o, err := s.svc.CreateOrder(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Orders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.Order(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid status payload: " + err.Error()})
		return
	}

	o, err := s.svc.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.Launch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := s.svc.Vehicles()
	out := make([]model.VehicleStatus, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, model.StatusOf(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v, ok := s.svc.Vehicle(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "drone " + id + " not found"})
		return
	}
	writeJSON(w, http.StatusOK, model.StatusOf(v))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.Connect(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	v, _ := s.svc.Vehicle(id)
	writeJSON(w, http.StatusOK, model.StatusOf(v))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.Disconnect(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	v, _ := s.svc.Vehicle(id)
	writeJSON(w, http.StatusOK, model.StatusOf(v))
}

func (s *Server) handleReturnToLaunch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.svc.ReturnToLaunch(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	v, _ := s.svc.Vehicle(id)
	writeJSON(w, http.StatusOK, model.StatusOf(v))
}

func (s *Server) handleSetConnection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConnectionString string `json:"connectionString"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ConnectionString == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "connectionString is required"})
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.svc.SetConnectionString(r.Context(), id, body.ConnectionString); err != nil {
		writeError(w, err)
		return
	}
	v, _ := s.svc.Vehicle(id)
	writeJSON(w, http.StatusOK, model.StatusOf(v))
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Sites())
}
