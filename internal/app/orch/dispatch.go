package orch

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsignal/internal/app/call"
	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

// Dispatch is the single entry point for inbound events. Errors are
// logged here and returned for the caller's information only; none of
// them should tear the connection down.
func (o *Orchestrator) Dispatch(conn core.ConnID, env core.Envelope) error {
	err := o.dispatch(conn, env)
	if err != nil {
		logDrop(conn, env.Event, err)
	}
	return err
}

func (o *Orchestrator) dispatch(conn core.ConnID, env core.Envelope) error {
	switch env.Event {
	case core.EventSetup:
		var p SetupPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return o.Setup(conn, p.Identity())
	case core.EventJoinChat:
		var r RoomRef
		if err := decode(env.Data, &r); err != nil {
			return err
		}
		return o.JoinChat(conn, domain.RoomID(r))
	case core.EventTyping, core.EventStopTyping:
		var r RoomRef
		if err := decode(env.Data, &r); err != nil {
			return err
		}
		return o.Typing(conn, domain.RoomID(r), env.Event == core.EventStopTyping)
	case core.EventNewMessage:
		_, err := o.NewMessage(conn, env.Data)
		return err
	case core.EventCallInitiated, core.EventCallAnswered, core.EventCallRejected:
		var p CallPayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		p.Raw = env.Data
		switch env.Event {
		case core.EventCallInitiated:
			return o.CallInitiated(conn, p)
		case core.EventCallAnswered:
			return o.CallAnswered(conn, p)
		default:
			return o.CallRejected(conn, p)
		}
	case core.EventICECandidate:
		var p CandidatePayload
		if err := decode(env.Data, &p); err != nil {
			return err
		}
		return o.ICECandidate(conn, p)
	case core.EventLeaveCall:
		var r RoomRef
		if err := decode(env.Data, &r); err != nil {
			return err
		}
		return o.LeaveCall(conn, domain.ChatID(r))
	default:
		return fmt.Errorf("unknown event %q: %w", env.Event, domain.ErrMalformed)
	}
}

func logDrop(conn core.ConnID, event string, err error) {
	var lvl zerolog.Level
	switch {
	case errors.Is(err, domain.ErrTargetOffline):
		lvl = zerolog.InfoLevel
	case errors.Is(err, domain.ErrMalformed),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrNoSession),
		errors.Is(err, domain.ErrUnknownConnection),
		errors.Is(err, call.ErrQueueFull):
		lvl = zerolog.WarnLevel
	default:
		lvl = zerolog.ErrorLevel
	}
	log.WithLevel(lvl).Err(err).Str("module", "orch").Str("conn", string(conn)).Str("event", event).Msg("event dropped")
}
