package orch

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

// Setup binds the identity to the connection, acknowledges with
// "connected" and hands over candidates that waited for this identity.
func (o *Orchestrator) Setup(conn core.ConnID, rawID string) error {
	uid, err := domain.ParseUserID(rawID)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if err := o.Registry.Register(conn, uid); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	o.emit(conn, core.EventConnected, connectedData{ConnID: conn})

	for _, p := range o.Calls.TakeReady(uid) {
		o.toParty(uid, p.Conn, core.EventICECandidate, candidateData{Candidate: p.Candidate, RoomID: p.Chat})
	}
	return nil
}

func (o *Orchestrator) JoinChat(conn core.ConnID, room domain.RoomID) error {
	if room == "" {
		return fmt.Errorf("join chat: empty room: %w", domain.ErrMalformed)
	}
	e, ok := o.Registry.Get(conn)
	if !ok {
		return fmt.Errorf("join chat: %w", domain.ErrUnknownConnection)
	}
	o.Rooms.Join(conn, e.Signal, room)
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(room)).Msg("joined chat")
	return nil
}

// Typing relays typing / stop typing to the room. The sender hears its
// own echo unless the relay is configured otherwise.
func (o *Orchestrator) Typing(conn core.ConnID, room domain.RoomID, stop bool) error {
	if room == "" {
		return fmt.Errorf("typing: empty room: %w", domain.ErrMalformed)
	}
	event := core.EventTyping
	if stop {
		event = core.EventStopTyping
	}
	var exclude core.ConnID
	if o.Options.TypingExcludeSender {
		exclude = conn
	}
	o.toRoom(room, event, room, exclude)
	return nil
}

// NewMessage fans the payload out, unchanged, to the mailbox of every
// chat participant except the declared sender. The participant list is
// trusted as given; nothing is looked up or stored here.
func (o *Orchestrator) NewMessage(conn core.ConnID, raw json.RawMessage) (int, error) {
	var hdr messageHeader
	if err := decode(raw, &hdr); err != nil {
		return 0, fmt.Errorf("new message: %w", err)
	}
	if hdr.Chat == nil || hdr.Chat.Users == nil {
		return 0, fmt.Errorf("new message: chat.users not defined: %w", domain.ErrMalformed)
	}
	sender := domain.UserID(hdr.Sender)
	recipients := lo.Uniq(lo.FilterMap(hdr.Chat.Users, func(p participant, _ int) (domain.UserID, bool) {
		u := domain.UserID(p)
		return u, u != "" && u != sender
	}))

	delivered := 0
	for _, u := range recipients {
		n := o.toUser(u, core.EventMessageReceived, raw)
		if n == 0 {
			log.Debug().Str("module", "orch").Str("user", string(u)).Msg("message recipient offline")
		}
		delivered += n
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("sender", string(sender)).Int("recipients", len(recipients)).Int("delivered", delivered).Msg("message relayed")
	return delivered, nil
}

// OnDisconnect cleans up after a closed connection. Repeated calls for
// the same connection do nothing.
func (o *Orchestrator) OnDisconnect(conn core.ConnID) {
	e, ok := o.Registry.Unregister(conn)
	if !ok {
		return
	}
	online := e.Identity != "" && o.Registry.Online(e.Identity) > 0
	for _, sess := range o.Calls.EndByConn(conn, e.Identity, online) {
		o.endCall(sess, conn, e.Identity)
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("user", string(e.Identity)).Msg("disconnected")
}
