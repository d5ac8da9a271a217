// Package network - replay.go
// Live replay endpoint: JSON export of the in-memory event history of this
// server process, for the client's timeline view and for debugging.
package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/infra/storage"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
)

// ReplayHandler provides the replay API.
type ReplayHandler struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(el *events.EventLog, log *logger.Logger) *ReplayHandler {
	return &ReplayHandler{
		eventLog: el,
		logger:   log,
	}
}

// ReplayEvent is an event as shown on the timeline.
type ReplayEvent struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Timestamp string      `json:"timestamp"`
	Tick      int         `json:"tick"`
	Type      string      `json:"type"`
	ActorID   string      `json:"actor_id"`
	TargetID  string      `json:"target_id,omitempty"`
	Summary   string      `json:"summary"`
	Impact    string      `json:"impact"`
	Details   interface{} `json:"details,omitempty"`
}

// ReplayResponse is the API response for a replay.
type ReplayResponse struct {
	SessionID   string        `json:"session_id,omitempty"`
	TotalEvents int           `json:"total_events"`
	NextCursor  int           `json:"next_cursor"`
	GeneratedAt string        `json:"generated_at"`
	Events      []ReplayEvent `json:"events"`
}

// HandleReplay returns recorded events.
// GET /api/replay?session=ID&type=KID_WOKE&since=N&ticks=true
// since is a cursor from a previous response's next_cursor. Clock ticks are
// left out unless ticks=true.
func (rh *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session")
	eventType := q.Get("type")
	withTicks := q.Get("ticks") == "true"

	since := 0
	if v := q.Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			rh.jsonError(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = n
	}

	recorded, cursor := rh.eventLog.Since(since)

	replayEvents := make([]ReplayEvent, 0, len(recorded))
	for _, e := range recorded {
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if !withTicks && eventType == "" && e.Type == events.EventTypeTimeTick {
			continue
		}
		replayEvents = append(replayEvents, rh.convertToReplayEvent(e))
	}

	response := ReplayResponse{
		SessionID:   sessionID,
		TotalEvents: len(replayEvents),
		NextCursor:  cursor,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      replayEvents,
	}

	rh.logger.Debug("replay served", "session", sessionID, "events", len(replayEvents))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleStats returns per-type event counts for one session.
// GET /api/replay/stats?session=ID
func (rh *ReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		rh.jsonError(w, "Missing session", http.StatusBadRequest)
		return
	}

	sessionEvents := rh.eventLog.GetBySession(sessionID)
	if len(sessionEvents) == 0 {
		rh.jsonError(w, "Unknown session", http.StatusNotFound)
		return
	}

	stats := map[string]int{
		"total_events": len(sessionEvents),
		"wakeups":      0,
		"activities":   0,
		"completions":  0,
		"parent_moves": 0,
	}
	for _, e := range sessionEvents {
		switch e.Type {
		case events.EventTypeKidWoke:
			stats["wakeups"]++
		case events.EventTypeActivityStarted:
			stats["activities"]++
		case events.EventTypeActivityCompleted:
			stats["completions"]++
		case events.EventTypeParentMoved:
			stats["parent_moves"]++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id":   sessionID,
		"generated_at": time.Now().Format(time.RFC3339),
		"stats":        stats,
	})
}

// RegisterRoutes sets up the replay API routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/replay", rh.HandleReplay)
	mux.HandleFunc("GET /api/replay/stats", rh.HandleStats)
}

// convertToReplayEvent transforms an internal event to timeline format.
func (rh *ReplayHandler) convertToReplayEvent(e events.GameEvent) ReplayEvent {
	out := ReplayEvent{
		ID:        e.ID,
		SessionID: e.SessionID,
		Timestamp: e.Timestamp.Format("15:04:05"),
		Tick:      e.Tick,
		Type:      string(e.Type),
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Details:   e.Payload,
	}

	// The summaries are shared with the ledger recap.
	if rec, err := storage.ToRecord(e); err == nil {
		out.Summary = storage.SummarizeEvent(rec)
		out.Impact = storage.EventImpact(rec)
	}
	return out
}

// jsonError sends an error response.
func (rh *ReplayHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
