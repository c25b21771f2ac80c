package orch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

var validate = validator.New()

// RoomRef accepts a bare room id or an object naming it, since clients
// send both shapes (`"chat-9"` and `{"chatId":"chat-9"}`).
type RoomRef string

func (r *RoomRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RoomRef(s)
		return nil
	}
	var obj struct {
		RoomID string `json:"roomId"`
		ChatID string `json:"chatId"`
		Room   string `json:"room"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	switch {
	case obj.RoomID != "":
		*r = RoomRef(obj.RoomID)
	case obj.ChatID != "":
		*r = RoomRef(obj.ChatID)
	default:
		*r = RoomRef(obj.Room)
	}
	return nil
}

// SetupPayload carries the identity the external auth system handed the
// client. Both `_id` and `userId` are understood.
type SetupPayload struct {
	ID     string `json:"_id"`
	UserID string `json:"userId"`
}

func (p SetupPayload) Identity() string {
	if p.ID != "" {
		return p.ID
	}
	return p.UserID
}

// participant is a chat member reference, either `{"_id": ...}` or a bare id.
type participant string

func (p *participant) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = participant(s)
		return nil
	}
	var obj struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*p = participant(obj.ID)
	return nil
}

// messageHeader is the part of a "new message" payload the relay reads.
// Everything else is forwarded untouched.
type messageHeader struct {
	Chat *struct {
		Users []participant `json:"users"`
	} `json:"chat"`
	Sender participant `json:"sender"`
}

// CallPayload is shared by call-initiated, call-answered and call-rejected.
type CallPayload struct {
	CallerID   string          `json:"callerId" validate:"required,max=64"`
	ReceiverID string          `json:"receiverId" validate:"required,max=64"`
	ChatID     string          `json:"chatId" validate:"required"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`

	// Raw is the payload as received, relayed byte for byte.
	Raw json.RawMessage `json:"-"`
}

func rawOf(p CallPayload) any {
	if len(p.Raw) > 0 {
		return p.Raw
	}
	return p
}

func (p CallPayload) Chat() domain.ChatID     { return domain.ChatID(p.ChatID) }
func (p CallPayload) Caller() domain.UserID   { return domain.UserID(p.CallerID) }
func (p CallPayload) Receiver() domain.UserID { return domain.UserID(p.ReceiverID) }

// CandidatePayload is an inbound ice-candidate. The browser client emits
// it positionally as (candidate, targetUserId, chatId), so a JSON array
// of that shape is accepted next to the object form.
type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate" validate:"required"`
	UserID    string          `json:"userId" validate:"required,max=64"`
	RoomID    string          `json:"roomId" validate:"required"`
}

func (p *CandidatePayload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var args []json.RawMessage
		if err := json.Unmarshal(b, &args); err != nil {
			return err
		}
		if len(args) != 3 {
			return fmt.Errorf("ice-candidate wants 3 arguments, got %d", len(args))
		}
		p.Candidate = args[0]
		if err := json.Unmarshal(args[1], &p.UserID); err != nil {
			return err
		}
		return json.Unmarshal(args[2], &p.RoomID)
	}
	type plain CandidatePayload
	var out plain
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*p = CandidatePayload(out)
	return nil
}

// outbound payloads

type connectedData struct {
	ConnID core.ConnID `json:"connId"`
}

type candidateData struct {
	Candidate json.RawMessage `json:"candidate"`
	RoomID    domain.ChatID   `json:"roomId"`
}

type userLeftData struct {
	ConnID core.ConnID   `json:"connId"`
	ChatID domain.ChatID `json:"chatId"`
}

type callFailedData struct {
	CallerID   domain.UserID `json:"callerId"`
	ReceiverID domain.UserID `json:"receiverId"`
	ChatID     domain.ChatID `json:"chatId"`
	Reason     string        `json:"reason"`
}

const (
	ReasonReceiverOffline = "receiver_offline"
	ReasonBusy            = "busy"
)

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload: %w", domain.ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return nil
}

func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return nil
}
