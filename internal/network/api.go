// Package network - api.go
// HTTP surface of the game: JSON endpoints mirroring the WebSocket commands,
// the ledger views and the WebSocket upgrade itself.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
	"github.com/MRamiBalles/SleepRegression/server/internal/infra/storage"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/metrics"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 200
)

// SessionLister reads the session ledger. storage.SessionRepository satisfies it.
type SessionLister interface {
	Recent(ctx context.Context, limit int) ([]storage.SessionRecord, error)
}

// RecapReader summarises a session from the ledger. *storage.Reconstructor satisfies it.
type RecapReader interface {
	GenerateRecap(ctx context.Context, sessionID string) ([]storage.RecapEvent, error)
}

// API serves the HTTP routes. sessions, recaps and metrics may be nil when
// the corresponding backend is disabled.
type API struct {
	game     GameController
	hub      *Hub
	sessions SessionLister
	recaps   RecapReader
	metrics  *metrics.Collector
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewAPI creates the HTTP handler set.
func NewAPI(game GameController, hub *Hub, sessions SessionLister, recaps RecapReader, m *metrics.Collector, log *logger.Logger) *API {
	return &API{
		game:     game,
		hub:      hub,
		sessions: sessions,
		recaps:   recaps,
		metrics:  m,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // The browser client may be served from a dev server
			},
		},
	}
}

// RegisterRoutes sets up the API routes.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", a.HandleState)
	mux.HandleFunc("POST /api/room", a.HandleRoom)
	mux.HandleFunc("POST /api/running", a.HandleRunning)
	mux.HandleFunc("POST /api/restart", a.HandleRestart)
	mux.HandleFunc("GET /api/sessions", a.HandleSessions)
	mux.HandleFunc("GET /api/sessions/{id}/recap", a.HandleRecap)
	mux.HandleFunc("GET /ws", a.ServeWs)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		a.jsonSuccess(w, map[string]string{"status": "ok"})
	})
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
}

// HandleState returns the current snapshot.
// GET /api/state
func (a *API) HandleState(w http.ResponseWriter, r *http.Request) {
	a.jsonSuccess(w, a.game.Snapshot())
}

// RoomRequest is the body of POST /api/room.
type RoomRequest struct {
	Room string `json:"room"`
}

// HandleRoom performs the room action, a click on a room.
// POST /api/room
func (a *API) HandleRoom(w http.ResponseWriter, r *http.Request) {
	var req RoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	room, ok := household.ParseRoom(req.Room)
	if !ok {
		a.jsonError(w, "Unknown room "+strconv.Quote(req.Room), http.StatusBadRequest)
		return
	}
	a.jsonSuccess(w, a.game.PerformRoomAction(room))
}

// RunningRequest is the body of POST /api/running.
type RunningRequest struct {
	Running *bool `json:"running"`
}

// HandleRunning starts, pauses or resumes the night.
// POST /api/running
func (a *API) HandleRunning(w http.ResponseWriter, r *http.Request) {
	var req RunningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Running == nil {
		a.jsonError(w, "Body must be {\"running\": bool}", http.StatusBadRequest)
		return
	}
	a.jsonSuccess(w, a.game.SetRunning(*req.Running))
}

// HandleRestart begins a fresh night.
// POST /api/restart
func (a *API) HandleRestart(w http.ResponseWriter, r *http.Request) {
	a.jsonSuccess(w, a.game.Restart())
}

// HandleSessions lists recent nights from the ledger.
// GET /api/sessions?limit=N
func (a *API) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		a.jsonError(w, "Session ledger disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSessionLimit)
	}

	sessions, err := a.sessions.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error("Failed to list sessions", "err", err)
		a.jsonError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []storage.SessionRecord{}
	}
	a.jsonSuccess(w, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// HandleRecap returns the readable history of one night.
// GET /api/sessions/{id}/recap
func (a *API) HandleRecap(w http.ResponseWriter, r *http.Request) {
	if a.recaps == nil {
		a.jsonError(w, "Session ledger disabled", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.PathValue("id")
	recap, err := a.recaps.GenerateRecap(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.jsonError(w, "Unknown session", http.StatusNotFound)
			return
		}
		a.logger.Error("Failed to build recap", "session", sessionID, "err", err)
		a.jsonError(w, "Failed to build recap", http.StatusInternalServerError)
		return
	}
	if len(recap) == 0 {
		a.jsonError(w, "Unknown session", http.StatusNotFound)
		return
	}
	a.jsonSuccess(w, map[string]interface{}{
		"session_id": sessionID,
		"events":     recap,
	})
}

// ServeWs handles websocket requests from the peer.
// GET /ws
func (a *API) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.metrics.RecordWSError()
		a.logger.Warn("Failed to upgrade websocket connection", "err", err)
		return
	}

	client := NewClient(a.hub, conn)
	if !client.Register() {
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}

// jsonError sends an error response.
func (a *API) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func (a *API) jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
