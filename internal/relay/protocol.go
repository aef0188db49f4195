package relay

import (
	"encoding/json"
	"fmt"

	"github.com/sketchwave/server/internal/action"
)

// Wire events exchanged over the websocket. Client→server: joinRoom,
// requestHistory, draw, shape, text, clear. Server→client: drawingHistory
// in response to join/requestHistory, relayed draw/shape/text to the other
// members, clear to the full membership, error for per-request rejections.
const (
	EventJoinRoom       = "joinRoom"
	EventRequestHistory = "requestHistory"
	EventDraw           = "draw"
	EventShape          = "shape"
	EventText           = "text"
	EventClear          = "clear"
	EventHistory        = "drawingHistory"
	EventError          = "error"
)

// Envelope is the single frame format in both directions. Fields beyond
// Event are set depending on the event.
type Envelope struct {
	Event   string          `json:"event"`
	Code    string          `json:"code,omitempty"`
	Action  *action.Action  `json:"action,omitempty"`
	History []action.Action `json:"history,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode parses one inbound frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("frame missing event")
	}
	return env, nil
}

func encode(env Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// Envelope contains only marshalable fields; this cannot happen
		// for values built by the engine.
		panic(err)
	}
	return data
}

// ErrorFrame builds the rejection frame sent back to one connection.
func ErrorFrame(msg string) []byte {
	return encode(Envelope{Event: EventError, Error: msg})
}

// HistoryFrame builds the drawingHistory frame. The replayed history is
// already compacted to the last clear, so a client applies it to a blank
// canvas as-is.
func HistoryFrame(code string, history []action.Action) []byte {
	return encode(Envelope{
		Event:   EventHistory,
		Code:    code,
		History: action.Compact(history),
	})
}

// eventFor maps an accepted action to the event name it is relayed under.
func eventFor(kind action.Kind) string {
	switch kind {
	case action.KindShape:
		return EventShape
	case action.KindText:
		return EventText
	default:
		return EventDraw
	}
}
