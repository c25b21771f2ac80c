package orch

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsignal/internal/app/call"
	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

// checkSender rejects a connection that speaks for someone else. A
// connection without identity is trusted like the rest of the payload.
func (o *Orchestrator) checkSender(conn core.ConnID, claimed domain.UserID) error {
	if id, ok := o.Registry.Identity(conn); ok && id != claimed {
		return fmt.Errorf("connection is %s, payload names %s: %w", id, claimed, domain.ErrInvalidState)
	}
	return nil
}

func (o *Orchestrator) CallInitiated(conn core.ConnID, p CallPayload) error {
	if err := check(p); err != nil {
		return fmt.Errorf("call-initiated: %w", err)
	}
	if o.Checker != nil {
		if _, err := o.Checker.Description(p.Offer, webrtc.SDPTypeOffer); err != nil {
			return fmt.Errorf("call-initiated: %w", err)
		}
	}
	if err := o.checkSender(conn, p.Caller()); err != nil {
		return fmt.Errorf("call-initiated: %w", err)
	}

	if o.Registry.Online(p.Receiver()) == 0 {
		o.callFailed(conn, p, ReasonReceiverOffline)
		return fmt.Errorf("call-initiated: receiver %s: %w", p.ReceiverID, domain.ErrTargetOffline)
	}
	sess, renegotiated, err := o.Calls.Initiate(p.Chat(), p.Caller(), p.Receiver(), conn, p.Offer)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			o.callFailed(conn, p, ReasonBusy)
		}
		return fmt.Errorf("call-initiated: %w", err)
	}
	room := domain.CallRoom(sess.Chat)
	if renegotiated {
		// a re-offer from another device takes the call over
		for _, id := range o.Rooms.MembersOf(room) {
			if id != conn {
				o.Rooms.Leave(id, room)
			}
		}
	}
	if e, ok := o.Registry.Get(conn); ok {
		o.Rooms.Join(conn, e.Signal, room)
	}
	n := o.toUser(sess.Receiver, core.EventCallInitiated, rawOf(p))
	log.Info().Str("module", "orch").Str("chat", p.ChatID).Bool("renegotiated", renegotiated).Int("delivered", n).Msg("call initiated")
	return nil
}

func (o *Orchestrator) callFailed(conn core.ConnID, p CallPayload, reason string) {
	if !o.Options.NotifyCallFailure {
		return
	}
	o.toParty(p.Caller(), conn, core.EventCallFailed, callFailedData{
		CallerID:   p.Caller(),
		ReceiverID: p.Receiver(),
		ChatID:     p.Chat(),
		Reason:     reason,
	})
}

func (o *Orchestrator) CallAnswered(conn core.ConnID, p CallPayload) error {
	if err := check(p); err != nil {
		return fmt.Errorf("call-answered: %w", err)
	}
	if o.Checker != nil {
		if _, err := o.Checker.Description(p.Answer, webrtc.SDPTypeAnswer); err != nil {
			return fmt.Errorf("call-answered: %w", err)
		}
	}
	if err := o.checkSender(conn, p.Receiver()); err != nil {
		return fmt.Errorf("call-answered: %w", err)
	}
	sess, held, err := o.Calls.Answer(p.Chat(), p.Caller(), p.Receiver(), conn, p.Answer)
	if err != nil {
		return fmt.Errorf("call-answered: %w", err)
	}
	if e, ok := o.Registry.Get(conn); ok {
		o.Rooms.Join(conn, e.Signal, domain.CallRoom(sess.Chat))
	}
	n := o.toParty(sess.Caller, sess.CallerConn, core.EventCallAnswered, rawOf(p))
	for _, c := range held {
		o.toParty(c.Target, c.Conn, core.EventICECandidate, candidateData{Candidate: c.Candidate, RoomID: c.Chat})
	}
	log.Info().Str("module", "orch").Str("chat", p.ChatID).Int("delivered", n).Int("flushed_candidates", len(held)).Msg("call answered")
	return nil
}

func (o *Orchestrator) CallRejected(conn core.ConnID, p CallPayload) error {
	if err := check(p); err != nil {
		return fmt.Errorf("call-rejected: %w", err)
	}
	if err := o.checkSender(conn, p.Receiver()); err != nil {
		return fmt.Errorf("call-rejected: %w", err)
	}
	sess, err := o.Calls.Reject(p.Chat(), p.Caller(), p.Receiver())
	if err != nil {
		return fmt.Errorf("call-rejected: %w", err)
	}
	n := o.toParty(sess.Caller, sess.CallerConn, core.EventCallRejected, rawOf(p))
	o.clearCallRoom(sess.Chat)
	log.Info().Str("module", "orch").Str("chat", p.ChatID).Int("delivered", n).Msg("call rejected")
	return nil
}

// ICECandidate forwards a candidate to its target, or holds it on the
// session until the target can use it.
func (o *Orchestrator) ICECandidate(conn core.ConnID, p CandidatePayload) error {
	if err := check(p); err != nil {
		return fmt.Errorf("ice-candidate: %w", err)
	}
	if o.Checker != nil {
		if _, err := o.Checker.Candidate(p.Candidate); err != nil {
			return fmt.Errorf("ice-candidate: %w", err)
		}
	}
	chat := domain.ChatID(p.RoomID)
	target := domain.UserID(p.UserID)
	from, _ := o.Registry.Identity(conn)

	to, deliver, err := o.Calls.Candidate(chat, from, target, o.reachable, p.Candidate)
	if err != nil {
		return fmt.Errorf("ice-candidate: %w", err)
	}
	if !deliver {
		return nil
	}
	if o.toParty(target, to, core.EventICECandidate, candidateData{Candidate: p.Candidate, RoomID: chat}) == 0 {
		return fmt.Errorf("ice-candidate: target %s: %w", target, domain.ErrTargetOffline)
	}
	return nil
}

// reachable is true when target has a registered device or conn, the
// connection it called or answered from, is still open.
func (o *Orchestrator) reachable(target domain.UserID, conn core.ConnID) bool {
	if o.Registry.Online(target) > 0 {
		return true
	}
	_, ok := o.Registry.Get(conn)
	return conn != "" && ok
}

// LeaveCall takes the connection out of the call room, tells whoever is
// left and ends the session.
func (o *Orchestrator) LeaveCall(conn core.ConnID, chat domain.ChatID) error {
	if chat == "" {
		return fmt.Errorf("leave-call: empty chat: %w", domain.ErrMalformed)
	}
	room := domain.CallRoom(chat)
	o.Rooms.Leave(conn, room)

	who, _ := o.Registry.Identity(conn)
	sess, ok := o.Calls.Leave(chat, who, conn)
	if !ok {
		o.toRoom(room, core.EventUserLeftCall, userLeftData{ConnID: conn, ChatID: chat}, conn)
		return nil
	}
	o.endCall(sess, conn, who)
	return nil
}

// endCall notifies the surviving party of a terminated session and
// empties its call room. who is the identity of the departing connection,
// empty when it never registered.
func (o *Orchestrator) endCall(sess call.Session, departing core.ConnID, who domain.UserID) {
	data := userLeftData{ConnID: departing, ChatID: sess.Chat}
	n := o.toRoom(domain.CallRoom(sess.Chat), core.EventUserLeftCall, data, departing)
	if sess.Phase == call.Ringing && who != sess.Receiver {
		// the receiver is still ringing and has not joined the call room
		n += o.toUser(sess.Receiver, core.EventUserLeftCall, data)
	}
	o.clearCallRoom(sess.Chat)
	log.Info().Str("module", "orch").Str("chat", string(sess.Chat)).Str("conn", string(departing)).Str("was", sess.Phase.String()).Int("notified", n).Msg("call ended")
}

func (o *Orchestrator) clearCallRoom(chat domain.ChatID) {
	room := domain.CallRoom(chat)
	for _, id := range o.Rooms.MembersOf(room) {
		o.Rooms.Leave(id, room)
	}
}
