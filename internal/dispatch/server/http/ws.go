package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skycourier-io/skycourier/pkg/log"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Viewers are browser dashboards served from other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebsocket streams the viewer feed: committed order and vehicle events
// as they happen, plus a whole-fleet status_update snapshot on a fixed
// interval. Inbound frames are read only to service pings and detect close;
// their content is ignored.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub.ID())
	log.Info("Viewer connected", "remote", r.RemoteAddr, "subscriber", sub.ID())

	// Reader: consume and discard until the peer goes away, then close the
	// subscription so the writer below unblocks.
	go func() {
		defer s.hub.Unsubscribe(sub.ID())
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	done := make(chan struct{})
	defer close(done)

	events := make(chan any, 1)
	go func() {
		defer close(events)
		for {
			evt, ok := sub.Next()
			if !ok {
				return
			}
			select {
			case events <- evt.Payload:
			case <-done:
				return
			}
		}
	}()

	snapshot := time.NewTicker(s.snapshotInterval)
	defer snapshot.Stop()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	// Late joiners get the fleet state immediately.
	if err := s.writeSnapshot(conn); err != nil {
		return
	}

	for {
		select {
		case payload, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(payload); err != nil {
				log.Debug("Viewer write failed", "subscriber", sub.ID(), "error", err.Error())
				return
			}
		case <-snapshot.C:
			if err := s.writeSnapshot(conn); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeSnapshot(conn *websocket.Conn) error {
	evt := s.svc.Snapshot(time.Now())
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(evt.Payload)
}
