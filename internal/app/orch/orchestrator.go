package orch

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsignal/internal/app"
	"github.com/dkeye/chatsignal/internal/app/call"
	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

// PayloadChecker validates signaling payloads before they are relayed.
type PayloadChecker interface {
	Description(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, error)
	Candidate(raw json.RawMessage) (webrtc.ICECandidateInit, error)
}

type Options struct {
	// TypingExcludeSender keeps typing indicators from echoing back.
	TypingExcludeSender bool
	// NotifyCallFailure sends call-failed to a caller whose call could
	// not be placed. Off means the caller only observes silence.
	NotifyCallFailure bool
}

// Orchestrator is the message relay: every inbound event of every
// connection goes through it.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Calls    *call.Sessions
	Policy   app.Policy
	Checker  PayloadChecker
	Options  Options
}

func (o *Orchestrator) toRoom(room domain.RoomID, event string, data any, exclude core.ConnID) int {
	frame, err := core.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode")
		return 0
	}
	res := o.Rooms.Broadcast(room, frame, exclude)
	o.backpressure(room, res.Dropped)
	return res.SendTo
}

// toUser fans out to every device of the identity through its mailbox.
func (o *Orchestrator) toUser(u domain.UserID, event string, data any) int {
	return o.toRoom(u.Mailbox(), event, data, "")
}

// toParty reaches a call party through the mailbox and, when the
// connection that placed or answered the call never registered, directly.
func (o *Orchestrator) toParty(u domain.UserID, conn core.ConnID, event string, data any) int {
	n := o.toUser(u, event, data)
	if conn == "" {
		return n
	}
	if id, ok := o.Registry.Identity(conn); ok && id == u {
		return n
	}
	if o.emit(conn, event, data) {
		n++
	}
	return n
}

func (o *Orchestrator) emit(conn core.ConnID, event string, data any) bool {
	e, ok := o.Registry.Get(conn)
	if !ok {
		return false
	}
	frame, err := core.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode")
		return false
	}
	if err := e.Signal.TrySend(frame); err != nil {
		o.backpressure("", []core.ConnID{conn})
		return false
	}
	return true
}

func (o *Orchestrator) backpressure(room domain.RoomID, dropped []core.ConnID) {
	for _, id := range dropped {
		log.Warn().Str("module", "orch").Str("room", string(room)).Str("conn", string(id)).Msg("frame dropped, send buffer full")
		if o.Policy == nil {
			continue
		}
		switch o.Policy.OnBackPressure(room, id) {
		case app.KickMember:
			o.Registry.Cancel(id)
		case app.NoAction:
		}
	}
}
