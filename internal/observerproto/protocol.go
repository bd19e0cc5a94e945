package observerproto

import (
	"encoding/json"

	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/scoring"
)

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Kinds limits the stream to these event kinds; empty means all.
	Kinds []events.Kind `json:"kinds,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status"`
	Kinds           []events.Kind `json:"kinds"`
}

// SessionStatus is a point-in-time view of a running session.
type SessionStatus struct {
	State         string             `json:"state"`
	RemainingTime float64            `json:"remaining_time"`
	LimitTime     float64            `json:"limit_time"`
	TotalPlaced   int                `json:"total_placed"`
	Waiting       int                `json:"waiting"`
	Counters      scoring.Counters   `json:"counters"`
	Tiles         []board.TileStatus `json:"tiles"`
}

// Server -> Client. One per session event.
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Seq             uint64          `json:"seq"`
	Kind            events.Kind     `json:"kind"`
	Payload         json.RawMessage `json:"payload"`
}
