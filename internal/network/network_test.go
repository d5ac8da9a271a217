package network

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/infra/storage"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/config"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
)

type testServer struct {
	engine   *engine.Engine
	eventLog *events.EventLog
	hub      *Hub
	srv      *httptest.Server
}

func newTestServer(t *testing.T, hubCfg config.HubConfig, sessions SessionLister, recaps RecapReader) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	log := logger.Discard()
	el := events.NewEventLog(nil)
	eng := engine.NewEngine(el, log, engine.WithManualClock(), engine.WithWakeProbability(0))
	hub := NewHub(eng, hubCfg, log, nil)
	eng.OnUpdate(hub.PublishState)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	NewAPI(eng, hub, sessions, recaps, nil, log).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{engine: eng, eventLog: el, hub: hub, srv: srv}
}

func testHubConfig() config.HubConfig {
	cfg := config.DefaultConfig().Hub
	cfg.MinActionInterval = 0
	cfg.EventPollInterval = 10 * time.Millisecond
	return cfg
}

func postJSON(t *testing.T, url string, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func decodeSnapshot(t *testing.T, b []byte) engine.Snapshot {
	t.Helper()
	var snap engine.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		t.Fatalf("Failed to decode snapshot %s: %v", b, err)
	}
	return snap
}

func dial(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match accepts a message. Frames may carry
// several newline separated messages.
func readUntil(t *testing.T, conn *websocket.Conn, match func(InboundMessage) bool) InboundMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("No matching message: %v", err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		for dec.More() {
			var msg InboundMessage
			if err := dec.Decode(&msg); err != nil {
				t.Fatalf("Bad frame %s: %v", data, err)
			}
			if match(msg) {
				return msg
			}
		}
	}
}

func stateWith(t *testing.T, pred func(engine.Snapshot) bool) func(InboundMessage) bool {
	return func(msg InboundMessage) bool {
		if msg.Type != MsgTypeState {
			return false
		}
		return pred(decodeSnapshot(t, msg.Payload))
	}
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
}

func TestHTTPStateAndActions(t *testing.T) {
	ts := newTestServer(t, testHubConfig(), nil, nil)

	resp, err := http.Get(ts.srv.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state failed: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if snap := decodeSnapshot(t, b); snap.Status != engine.StatusIdle || len(snap.Kids) != 2 {
		t.Errorf("Unexpected initial state: %+v", snap)
	}

	resp, b = postJSON(t, ts.srv.URL+"/api/running", `{"running": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, b)
	}
	if snap := decodeSnapshot(t, b); snap.Status != engine.StatusRunning {
		t.Errorf("Expected running, got %s", snap.Status)
	}

	// Baby is asleep, so the click is accepted but changes nothing.
	resp, b = postJSON(t, ts.srv.URL+"/api/room", `{"room": "babyRoom"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if snap := decodeSnapshot(t, b); snap.InProgressCount() != 0 {
		t.Errorf("No activity should start for a sleeping kid")
	}

	ts.engine.Tick()
	resp, b = postJSON(t, ts.srv.URL+"/api/restart", ``)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if snap := decodeSnapshot(t, b); snap.TimeElapsed != 0 || snap.Status != engine.StatusRunning {
		t.Errorf("Unexpected state after restart: %+v", snap)
	}
}

func TestHTTPRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, testHubConfig(), nil, nil)

	tests := []struct {
		path string
		body string
	}{
		{"/api/room", `{"room": "kitchen"}`},
		{"/api/room", `not json`},
		{"/api/running", `{}`},
		{"/api/running", `{"running": "yes"}`},
	}
	for _, tt := range tests {
		resp, _ := postJSON(t, ts.srv.URL+tt.path, tt.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", tt.path, tt.body, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.srv.URL + "/api/restart")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /api/restart, got %d", resp.StatusCode)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	disabled := newTestServer(t, testHubConfig(), nil, nil)
	resp, err := http.Get(disabled.srv.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a ledger, got %d", resp.StatusCode)
	}

	db, err := storage.InitSQLite(":memory:")
	if err != nil {
		t.Fatalf("InitSQLite failed: %v", err)
	}
	defer db.Close()
	sessionRepo := storage.NewSQLiteSessionRepository(db)
	recaps := storage.NewReconstructor(storage.NewSQLiteEventRepository(db))
	err = sessionRepo.Upsert(context.Background(), storage.SessionRecord{
		SessionID: "night-1", Status: "complete", TimeElapsed: 30, CycleTime: 30, ParentSleepTime: 12, TargetSleepTime: 20, Rating: "FUNCTIONAL",
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	ts := newTestServer(t, testHubConfig(), sessionRepo, recaps)
	resp, err = http.Get(ts.srv.URL + "/api/sessions?limit=5")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Sessions []storage.SessionRecord `json:"sessions"`
		Count    int                     `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if body.Count != 1 || body.Sessions[0].Rating != "FUNCTIONAL" {
		t.Errorf("Unexpected sessions body: %+v", body)
	}

	resp2, err := http.Get(ts.srv.URL + "/api/sessions?limit=zero")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad limit, got %d", resp2.StatusCode)
	}

	resp3, err := http.Get(ts.srv.URL + "/api/sessions/night-404/recap")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown recap, got %d", resp3.StatusCode)
	}
}

func TestWebSocketReceivesSnapshotOnConnect(t *testing.T) {
	ts := newTestServer(t, testHubConfig(), nil, nil)
	conn := dial(t, ts)

	readUntil(t, conn, stateWith(t, func(s engine.Snapshot) bool {
		return s.Status == engine.StatusIdle && s.SessionID == ts.engine.SessionID()
	}))
}

func TestWebSocketCommandsDriveEngine(t *testing.T) {
	ts := newTestServer(t, testHubConfig(), nil, nil)
	conn := dial(t, ts)
	readUntil(t, conn, stateWith(t, func(s engine.Snapshot) bool { return true }))

	running := true
	sendCommand(t, conn, Command{Type: CmdSetRunning, Running: &running})
	readUntil(t, conn, stateWith(t, func(s engine.Snapshot) bool { return s.Status == engine.StatusRunning }))

	ts.engine.Tick()
	readUntil(t, conn, stateWith(t, func(s engine.Snapshot) bool { return s.TimeElapsed == 1 }))

	sendCommand(t, conn, Command{Type: CmdRoomAction, Room: "attic"})
	msg := readUntil(t, conn, func(m InboundMessage) bool { return m.Type == MsgTypeError })
	var perr ErrorPayload
	if err := json.Unmarshal(msg.Payload, &perr); err != nil {
		t.Fatalf("Bad error payload: %v", err)
	}
	if perr.Command != string(CmdRoomAction) {
		t.Errorf("Expected error for ROOM_ACTION, got %+v", perr)
	}

	sendCommand(t, conn, Command{Type: CmdRestart})
	readUntil(t, conn, stateWith(t, func(s engine.Snapshot) bool { return s.TimeElapsed == 0 && s.Status == engine.StatusRunning }))
}

func TestWebSocketRateLimit(t *testing.T) {
	cfg := testHubConfig()
	cfg.MinActionInterval = time.Hour
	ts := newTestServer(t, cfg, nil, nil)
	conn := dial(t, ts)
	readUntil(t, conn, stateWith(t, func(s engine.Snapshot) bool { return true }))

	running := true
	sendCommand(t, conn, Command{Type: CmdSetRunning, Running: &running})
	sendCommand(t, conn, Command{Type: CmdRestart})

	msg := readUntil(t, conn, func(m InboundMessage) bool { return m.Type == MsgTypeError })
	var perr ErrorPayload
	json.Unmarshal(msg.Payload, &perr)
	if perr.Error != "rate limited" {
		t.Errorf("Expected rate limit rejection, got %+v", perr)
	}
	if snap := ts.engine.Snapshot(); snap.Status != engine.StatusRunning {
		t.Errorf("First command should have been applied, got %s", snap.Status)
	}
}

func TestEventPollerForwardsLedgerEvents(t *testing.T) {
	ts := newTestServer(t, testHubConfig(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts.hub.StartEventPoller(ctx, ts.eventLog)

	conn := dial(t, ts)
	readUntil(t, conn, stateWith(t, func(s engine.Snapshot) bool { return true }))

	ts.engine.SetRunning(true)
	ts.engine.Tick()

	msg := readUntil(t, conn, func(m InboundMessage) bool { return m.Type == MsgTypeEvent })
	var ev events.GameEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("Bad event payload: %v", err)
	}
	if ev.Type != events.EventTypeSessionStarted {
		t.Errorf("Expected SESSION_STARTED first, got %s", ev.Type)
	}
}

func TestPublishStateNeverBlocks(t *testing.T) {
	cfg := testHubConfig()
	cfg.BroadcastBuffer = 1
	log := logger.Discard()
	eng := engine.NewEngine(events.NewEventLog(nil), log, engine.WithManualClock())
	hub := NewHub(eng, cfg, log, nil) // Run is never started

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.PublishState(eng.Snapshot())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("PublishState blocked on a full queue")
	}
}
