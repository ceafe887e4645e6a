package server

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resilitics/resilitics/internal/engine"
)

// makeOriginRequest creates a fake request with the given Origin header.
func makeOriginRequest(origin string) *http.Request {
	r, _ := http.NewRequest("GET", "/api/v1/stream", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginChecking(t *testing.T) {
	tests := []struct {
		name      string
		origins   []string
		reqOrigin string
		want      bool
	}{
		// Default / development origins
		{"allow localhost:3000", nil, "http://localhost:3000", true},
		{"allow localhost:5173", nil, "http://localhost:5173", true},
		{"block localhost:8080 by default", nil, "http://localhost:8080", false},
		{"block external by default", nil, "https://evil.example.com", false},

		// Wildcard mode
		{"wildcard allows anything", []string{"*"}, "https://example.com", true},
		{"wildcard allows localhost", []string{"*"}, "http://localhost:3000", true},

		// Explicit allow list
		{"explicit allow match", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"explicit allow mismatch", []string{"https://app.example.com"}, "https://evil.com", false},
		{"case-insensitive origin", []string{"https://App.Example.Com"}, "https://app.example.com", true},

		// No origin header (non-browser clients / same-host)
		{"no origin header allowed", nil, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			up := newUpgrader(tc.origins)
			got := up.CheckOrigin(makeOriginRequest(tc.reqOrigin))
			assert.Equal(t, tc.want, got,
				"origin=%q, allowed=%v", tc.reqOrigin, tc.origins)
		})
	}
}

func TestHubClientRegistration(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	assert.Equal(t, 0, hub.ClientCount())

	client := &wsClient{send: make(chan []byte, 4), hub: hub, id: "c1"}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	go hub.Run()

	for i := 0; i < 3; i++ {
		hub.register <- &wsClient{send: make(chan []byte, 4), hub: hub}
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 3, hub.ClientCount())

	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubFiltersByRunID(t *testing.T) {
	hub := NewHub(context.Background(), zap.NewNop())
	go hub.Run()
	defer hub.Stop()

	all := &wsClient{send: make(chan []byte, 4), hub: hub, id: "all"}
	one := &wsClient{send: make(chan []byte, 4), hub: hub, id: "one", runID: "run-1"}
	hub.register <- all
	hub.register <- one

	hub.Notify(engine.RunEvent{Type: engine.RunEventStarted, RunID: "run-2"})

	select {
	case msg := <-all.send:
		assert.Contains(t, string(msg), "run-2")
	case <-time.After(time.Second):
		t.Fatal("unfiltered client never received the event")
	}

	select {
	case msg := <-one.send:
		t.Fatalf("filtered client received another run's event: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	hub.Notify(engine.RunEvent{Type: engine.RunEventCompleted, RunID: "run-1"})
	select {
	case msg := <-one.send:
		assert.Contains(t, string(msg), engine.RunEventCompleted)
	case <-time.After(time.Second):
		t.Fatal("filtered client never received its run's event")
	}
}

// waitForClients polls until the hub has registered n clients.
func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readRunEvents reads frames until n lifecycle events have arrived. The write
// pump batches queued messages into one frame separated by newlines.
func readRunEvents(t *testing.T, conn *websocket.Conn, n int) []engine.RunEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var events []engine.RunEvent
	for len(events) < n {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read message: %v (got %d of %d events)", err, len(events), n)
		}
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			if len(line) == 0 {
				continue
			}
			var ev engine.RunEvent
			require.NoError(t, json.Unmarshal(line, &ev), "frame line %q", line)
			events = append(events, ev)
		}
	}
	return events
}

func TestStreamDeliversRunLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}
	waitForClients(t, srv.hub, 1)

	dir := t.TempDir()
	body, err := json.Marshal(map[string]string{
		"results_path": writeFile(t, dir, "results.csv", spikeResults),
		"events_path":  writeFile(t, dir, "events.csv", spikeEvents),
	})
	require.NoError(t, err)

	httpResp, err := http.Post(ts.URL+"/api/v1/analyze", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	events := readRunEvents(t, conn, 3)

	assert.Equal(t, engine.RunEventStarted, events[0].Type)
	assert.Equal(t, engine.RunEventAssessed, events[1].Type)
	assert.Equal(t, "api-0", events[1].Pod)
	assert.Equal(t, "DELETED", events[1].Outcome)
	assert.Equal(t, engine.RunEventCompleted, events[2].Type)
	assert.Equal(t, 1, events[2].EventCount)

	assert.NotEmpty(t, events[0].RunID)
	assert.Equal(t, events[0].RunID, events[2].RunID)
}
