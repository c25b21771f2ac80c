package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/chatsignal/internal/domain"
)

// Wire event names. Names follow the browser client, spaces included.
const (
	EventSetup           = "setup"
	EventConnected       = "connected"
	EventJoinChat        = "join chat"
	EventTyping          = "typing"
	EventStopTyping      = "stop typing"
	EventNewMessage      = "new message"
	EventMessageReceived = "message received"
	EventCallInitiated   = "call-initiated"
	EventCallAnswered    = "call-answered"
	EventCallRejected    = "call-rejected"
	EventCallFailed      = "call-failed"
	EventICECandidate    = "ice-candidate"
	EventLeaveCall       = "leave-call"
	EventUserLeftCall    = "user-left-call"
	EventError           = "error"
)

// Envelope is the frame layout in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data into an Envelope frame. A json.RawMessage is passed
// through untouched so relayed payloads reach peers byte for byte.
func Encode(event string, data any) (Frame, error) {
	env := Envelope{Event: event}
	switch d := data.(type) {
	case nil:
	case json.RawMessage:
		env.Data = d
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", event, err)
		}
		env.Data = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", event, err)
	}
	return b, nil
}

// Decode splits a frame into event name and raw payload.
func Decode(f Frame) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w: %v", domain.ErrMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode frame: missing event: %w", domain.ErrMalformed)
	}
	return env, nil
}
