package network

import (
	"encoding/json"
	"time"

	"github.com/MRamiBalles/SleepRegression/server/internal/domain/household"
	"github.com/MRamiBalles/SleepRegression/server/internal/engine"
)

// MessageType tags every frame the server pushes to clients.
type MessageType string

const (
	MsgTypeState MessageType = "STATE" // Full snapshot after a change
	MsgTypeEvent MessageType = "EVENT" // Raw ledger event
	MsgTypeError MessageType = "ERROR" // Rejected command, only sent to its author
)

// Message is the envelope of every server-to-client frame.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// InboundMessage is Message as seen by a client decoding it.
type InboundMessage struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ErrorPayload explains why a command was rejected.
type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

// CommandType names an action a client may request.
type CommandType string

const (
	CmdRoomAction       CommandType = "ROOM_ACTION"
	CmdSetRunning       CommandType = "SET_RUNNING"
	CmdRestart          CommandType = "RESTART"
	CmdMoveToParentRoom CommandType = "MOVE_TO_PARENT_ROOM"
)

// Command is an incoming request from the frontend.
type Command struct {
	Type    CommandType `json:"type"`
	Room    string      `json:"room,omitempty"`    // ROOM_ACTION only
	Running *bool       `json:"running,omitempty"` // SET_RUNNING only
}

// GameController is the slice of the engine the network layer drives.
type GameController interface {
	Snapshot() engine.Snapshot
	PerformRoomAction(room household.Room) engine.Snapshot
	MoveParentToParentRoom() engine.Snapshot
	SetRunning(running bool) engine.Snapshot
	Restart() engine.Snapshot
}

func newMessage(t MessageType, payload interface{}) Message {
	return Message{Type: t, Timestamp: time.Now().UnixMilli(), Payload: payload}
}

func encodeMessage(t MessageType, payload interface{}) ([]byte, error) {
	return json.Marshal(newMessage(t, payload))
}
