package api

import (
	"net/http"
	"time"

	"vigil/internal/event"
	"vigil/internal/logging"

	"github.com/gorilla/websocket"
)

// EventsHandler streams supervision events over a websocket. Each bus
// event goes out as one JSON message; the read loop only watches for the
// client going away.
type EventsHandler struct {
	Bus    *event.Bus[event.Event]
	Logger *logging.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Bus == nil {
		http.Error(w, "event stream unavailable", http.StatusInternalServerError)
		return
	}
	output, cancel := h.Bus.Subscribe()
	if output == nil {
		http.Error(w, "event stream unavailable", http.StatusInternalServerError)
		return
	}
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Logger != nil {
		h.Logger.Debug("event stream opened", map[string]string{
			"remote": r.RemoteAddr,
		})
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case published, ok := <-output:
				if !ok {
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
					return
				}
				if err := conn.WriteJSON(published); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
