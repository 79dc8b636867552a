package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vigil/internal/event"
	"vigil/internal/metrics"
	"vigil/internal/process"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, bus *event.Bus[event.Event]) *httptest.Server {
	t.Helper()
	registry := &metrics.Registry{}
	registry.IncRestart()

	mux := http.NewServeMux()
	RegisterRoutes(mux, Options{
		Processes: process.NewRegistry(),
		Metrics:   registry,
		Bus:       bus,
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHealthzEndpoint(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok\n" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestHealthzRejectsPost(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Post(server.URL+"/healthz", "text/plain", nil)
	if err != nil {
		t.Fatalf("post healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "GET" {
		t.Fatalf("expected Allow header, got %q", allow)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		State      string    `json:"state"`
		Processes  []any     `json:"processes"`
		ServerTime time.Time `json:"server_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload.State != "idle" {
		t.Fatalf("expected idle state without a supervisor, got %q", payload.State)
	}
	if payload.ServerTime.IsZero() {
		t.Fatal("expected server time to be set")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "vigil_restarts_total 1") {
		t.Fatalf("expected restart counter in metrics output, got:\n%s", body)
	}
}

func TestEventsStreamDeliversBusEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := event.NewBus[event.Event](ctx, event.BusOptions{Name: "watch_events", Registry: &metrics.Registry{}})

	server := newTestServer(t, bus)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial events stream: %v", err)
	}
	defer conn.Close()

	deadline := time.After(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for stream subscription")
		case <-time.After(5 * time.Millisecond):
		}
	}

	bus.Publish(event.NewTaskEvent(event.TypeTaskStarted, 1, nil))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload struct {
		Type       string `json:"type"`
		Generation uint64 `json:"generation"`
	}
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if payload.Type != event.TypeTaskStarted || payload.Generation != 1 {
		t.Fatalf("unexpected event payload: %+v", payload)
	}
}
