package network

import (
	"context"
	"sync"
	"time"

	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
	"github.com/MRamiBalles/SleepRegression/server/internal/events"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/config"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/logger"
	"github.com/MRamiBalles/SleepRegression/server/internal/platform/metrics"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	game    GameController
	cfg     config.HubConfig
	logger  *logger.Logger
	metrics *metrics.Collector
}

// NewHub initializes a new WebSocket Hub. m may be nil.
func NewHub(game GameController, cfg config.HubConfig, log *logger.Logger, m *metrics.Collector) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, cfg.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		game:       game,
		cfg:        cfg,
		logger:     log,
		metrics:    m,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.dropLocked(client)
			}
			h.mu.Unlock()
			close(h.done)
			h.logger.Info("WebSocket Hub shutting down.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected", "clients", h.ClientCount())

			// Late joiners see the night as it is right now.
			if msg, err := encodeMessage(MsgTypeState, h.game.Snapshot()); err == nil {
				h.sendTo(client, msg)
			}
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.dropLocked(client)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					h.logger.Warn("Dropping slow WebSocket client")
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.metrics.RecordWSConnection(-1)
}

// sendTo queues message for a single client if it is still connected.
func (h *Hub) sendTo(client *Client, message []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return false
	}
	select {
	case client.send <- message:
		h.metrics.RecordWSMessage(false)
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishState queues a snapshot for every client. It never blocks, so it is
// safe to register as an engine listener; when the queue is full the update
// is dropped and the next one supersedes it.
func (h *Hub) PublishState(snap engine.Snapshot) {
	payload, err := encodeMessage(MsgTypeState, snap)
	if err != nil {
		h.logger.Error("Failed to serialize state for WebSocket broadcast", "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSError()
		h.logger.Warn("Broadcast queue full, dropping state", "t", snap.TimeElapsed)
	}
}

// BroadcastEvent takes a GameEvent, serializes it to JSON, and sends it to all connected clients.
func (h *Hub) BroadcastEvent(ctx context.Context, event events.GameEvent) {
	payload, err := encodeMessage(MsgTypeEvent, event)
	if err != nil {
		h.logger.Error("Failed to serialize GameEvent for WebSocket broadcast", "type", event.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- payload:
	case <-ctx.Done():
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes new events to the Hub.
// This allows the Hub to run independently from the Engine while picking up the same events.
// Clock ticks are skipped; the state broadcast already carries them.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog) {
	interval := h.cfg.EventPollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	go func() {
		pollInterval := time.NewTicker(interval)
		defer pollInterval.Stop()

		cursor := eventLog.Len()

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				var newEvents []events.GameEvent
				newEvents, cursor = eventLog.Since(cursor)
				for _, event := range newEvents {
					if event.Type == events.EventTypeTimeTick {
						continue
					}
					h.BroadcastEvent(ctx, event)
				}
			}
		}
	}()
}
