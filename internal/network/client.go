package network

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte
	lastActionTime time.Time
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	size := hub.cfg.ClientSendBuffer
	if size <= 0 {
		size = 64
	}
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, size),
	}
}

// Register adds the client to the hub. It reports false once the hub has stopped.
func (c *Client) Register() bool {
	select {
	case c.hub.register <- c:
		return true
	case <-c.hub.done:
		return false
	}
}

// ReadPump pumps commands from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.metrics.RecordWSError()
				c.hub.logger.Warn("WebSocket read failed", "err", err)
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Warn("Failed to parse Command from WebSocket", "err", err)
			c.reject("", "malformed command")
			continue
		}

		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd Command) {
	// 1. Rate Limiting Check
	if interval := c.hub.cfg.MinActionInterval; interval > 0 && time.Since(c.lastActionTime) < interval {
		c.hub.logger.Warn("Rate limit exceeded for client command", "type", cmd.Type)
		c.reject(cmd.Type, "rate limited")
		return
	}
	c.lastActionTime = time.Now()

	// 2. Route. Accepted commands reach every client through the engine's
	// state broadcast; commands whose preconditions fail are silent no-ops.
	game := c.hub.game
	switch cmd.Type {
	case CmdRoomAction:
		room, ok := household.ParseRoom(cmd.Room)
		if !ok {
			c.reject(cmd.Type, "unknown room "+cmd.Room)
			return
		}
		game.PerformRoomAction(room)
	case CmdMoveToParentRoom:
		game.MoveParentToParentRoom()
	case CmdSetRunning:
		if cmd.Running == nil {
			c.reject(cmd.Type, "missing running flag")
			return
		}
		game.SetRunning(*cmd.Running)
	case CmdRestart:
		game.Restart()
	default:
		c.hub.logger.Warn("Unknown Command type", "type", cmd.Type)
		c.reject(cmd.Type, "unknown command")
	}
}

// reject answers only the client that sent the offending command.
func (c *Client) reject(cmd CommandType, reason string) {
	msg, err := encodeMessage(MsgTypeError, ErrorPayload{Command: string(cmd), Error: reason})
	if err != nil {
		return
	}
	c.hub.sendTo(c, msg)
}

// WritePump pumps messages from the hub to the websocket connection.
// Queued messages are coalesced into one frame, one JSON document per line.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.hub.metrics.RecordWSError()
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				c.hub.metrics.RecordWSError()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
