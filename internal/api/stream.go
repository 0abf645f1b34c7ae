package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/composablestudio/internal/logger"
	"github.com/user/composablestudio/internal/studio"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamEvent is one frame sent to a snapshot stream client.
type streamEvent struct {
	Type     string           `json:"type"`
	Snapshot *studio.Snapshot `json:"snapshot"`
}

// handleStream upgrades to a WebSocket, sends the current snapshot, and then
// forwards every update of the composition until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := compositionID(r)
	log := logger.For("api").With().Str("composition", string(id)).Logger()

	updates, cancel := s.svc.Subscribe(id)
	defer cancel()

	snap, err := s.svc.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		return
	}
	defer conn.Close()

	if m := s.opts.Metrics; m != nil {
		m.StreamClients.Inc()
		defer m.StreamClients.Dec()
	}
	log.Debug().Msg("stream client connected")

	// Reads only serve to notice the client closing and to process pongs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev streamEvent) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.Warn().Err(err).Msg("stream write failed, dropping client")
			return false
		}
		return true
	}
	if !send(streamEvent{Type: "snapshot", Snapshot: snap}) {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			log.Debug().Msg("stream client disconnected")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !send(streamEvent{Type: "update", Snapshot: &update}) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
