package call

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrQueueFull = errors.New("candidate queue full")

const DefaultQueueLimit = 32

// Sessions keeps at most one live session per chat.
type Sessions struct {
	mu         sync.Mutex
	byChat     map[domain.ChatID]*Session
	queueLimit int
	now        func() time.Time
}

func NewSessions(queueLimit int) *Sessions {
	if queueLimit <= 0 {
		queueLimit = DefaultQueueLimit
	}
	return &Sessions{
		byChat:     make(map[domain.ChatID]*Session),
		queueLimit: queueLimit,
		now:        time.Now,
	}
}

// Initiate moves the chat from Idle to Ringing. A repeated offer from the
// same caller to the same receiver while ringing replaces the stored offer
// and reports renegotiated=true. Any other live session makes the chat busy.
func (s *Sessions) Initiate(
	chat domain.ChatID,
	caller, receiver domain.UserID,
	callerConn core.ConnID,
	offer json.RawMessage,
) (Session, bool, error) {
	if caller == receiver {
		return Session{}, false, fmt.Errorf("initiate %s: caller is receiver: %w", chat, domain.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byChat[chat]; ok && cur.Phase.Live() {
		if cur.Phase == Ringing && cur.Caller == caller && cur.Receiver == receiver {
			cur.Offer = offer
			cur.CallerConn = callerConn
			log.Info().Str("module", "call").Str("chat", string(chat)).Msg("offer renegotiated")
			return cur.snapshot(), true, nil
		}
		return Session{}, false, fmt.Errorf("initiate %s: session %s: %w", chat, cur.Phase, domain.ErrInvalidState)
	}

	cur := &Session{
		Chat:       chat,
		Caller:     caller,
		Receiver:   receiver,
		CallerConn: callerConn,
		Phase:      Ringing,
		Offer:      offer,
		StartedAt:  s.now(),
		pending:    make(map[domain.UserID][]json.RawMessage),
	}
	s.byChat[chat] = cur
	log.Info().Str("module", "call").Str("chat", string(chat)).Str("caller", string(caller)).Str("receiver", string(receiver)).Msg("ringing")
	return cur.snapshot(), false, nil
}

// Answer moves Ringing to Active and releases candidates that were held
// for the receiver.
func (s *Sessions) Answer(
	chat domain.ChatID,
	caller, receiver domain.UserID,
	receiverConn core.ConnID,
	answer json.RawMessage,
) (Session, []Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byChat[chat]
	if !ok {
		return Session{}, nil, fmt.Errorf("answer %s: %w", chat, domain.ErrNoSession)
	}
	if cur.Phase != Ringing {
		return Session{}, nil, fmt.Errorf("answer %s: session %s: %w", chat, cur.Phase, domain.ErrInvalidState)
	}
	if cur.Caller != caller || cur.Receiver != receiver {
		return Session{}, nil, fmt.Errorf("answer %s: parties do not match: %w", chat, domain.ErrInvalidState)
	}
	cur.Phase = Active
	cur.Answer = answer
	cur.ReceiverConn = receiverConn
	cur.AnsweredAt = s.now()
	log.Info().Str("module", "call").Str("chat", string(chat)).Msg("active")
	return cur.snapshot(), cur.take(receiver), nil
}

// Reject ends a ringing session.
func (s *Sessions) Reject(chat domain.ChatID, caller, receiver domain.UserID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byChat[chat]
	if !ok {
		return Session{}, fmt.Errorf("reject %s: %w", chat, domain.ErrNoSession)
	}
	if cur.Phase != Ringing {
		return Session{}, fmt.Errorf("reject %s: session %s: %w", chat, cur.Phase, domain.ErrInvalidState)
	}
	if cur.Caller != caller || cur.Receiver != receiver {
		return Session{}, fmt.Errorf("reject %s: parties do not match: %w", chat, domain.ErrInvalidState)
	}
	return s.endLocked(cur, "rejected"), nil
}

// Reachable reports whether target can be sent to right now; conn is the
// target's call connection, empty when none is known.
type Reachable func(target domain.UserID, conn core.ConnID) bool

// Candidate decides what to do with a candidate from one party to the other.
// It returns deliver=true when the target can consume it now, along with
// the target's call connection if one is known; otherwise the candidate is
// queued on the session. An empty from stands for the target's peer, for
// senders that never registered an identity.
func (s *Sessions) Candidate(
	chat domain.ChatID,
	from, target domain.UserID,
	reachable Reachable,
	candidate json.RawMessage,
) (to core.ConnID, deliver bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byChat[chat]
	if !ok || !cur.Phase.Live() {
		return "", false, fmt.Errorf("candidate %s: %w", chat, domain.ErrNoSession)
	}
	if from == "" && cur.party(target) {
		from = cur.peerOf(target)
	}
	if !cur.party(target) || !cur.party(from) || cur.peerOf(from) != target {
		return "", false, fmt.Errorf("candidate %s: %s -> %s is not a call leg: %w", chat, from, target, domain.ErrInvalidState)
	}
	to = cur.connOf(target)
	if cur.ready(target) && reachable(target, to) {
		return to, true, nil
	}
	if len(cur.pending[target]) >= s.queueLimit {
		return "", false, fmt.Errorf("candidate %s for %s: %w", chat, target, ErrQueueFull)
	}
	cur.pending[target] = append(cur.pending[target], candidate)
	log.Debug().Str("module", "call").Str("chat", string(chat)).Str("target", string(target)).Int("queued", len(cur.pending[target])).Msg("candidate queued")
	return "", false, nil
}

// TakeReady drains queued candidates for target from every session where
// the target is able to consume them.
func (s *Sessions) TakeReady(target domain.UserID) []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Pending
	for _, cur := range s.byChat {
		if cur.party(target) && cur.ready(target) {
			out = append(out, cur.take(target)...)
		}
	}
	return out
}

// Leave ends the session when who, or the leaving connection, is one of
// its parties.
func (s *Sessions) Leave(chat domain.ChatID, who domain.UserID, id core.ConnID) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byChat[chat]
	if !ok || !(cur.party(who) || cur.hasConn(id)) {
		return Session{}, false
	}
	return s.endLocked(cur, "left"), true
}

// EndByConn ends every session the closing connection took part in. A
// ringing session also ends when its receiver has no connection left.
func (s *Sessions) EndByConn(id core.ConnID, identity domain.UserID, identityOnline bool) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for _, cur := range s.byChat {
		receiverGone := cur.Phase == Ringing && identity != "" && cur.Receiver == identity && !identityOnline
		if cur.hasConn(id) || receiverGone {
			out = append(out, s.endLocked(cur, "disconnected"))
		}
	}
	slices.SortFunc(out, func(a, b Session) int {
		if a.Chat < b.Chat {
			return -1
		}
		if a.Chat > b.Chat {
			return 1
		}
		return 0
	})
	return out
}

func (s *Sessions) endLocked(cur *Session, reason string) Session {
	snap := cur.snapshot()
	cur.Phase = Ended
	delete(s.byChat, cur.Chat)
	log.Info().Str("module", "call").Str("chat", string(cur.Chat)).Str("was", snap.Phase.String()).Str("reason", reason).Msg("ended")
	return snap
}

func (s *Sessions) Get(chat domain.ChatID) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byChat[chat]
	if !ok {
		return Session{}, false
	}
	return cur.snapshot(), true
}

// Phase of the chat's call; Idle when there is none.
func (s *Sessions) Phase(chat domain.ChatID) Phase {
	if sess, ok := s.Get(chat); ok {
		return sess.Phase
	}
	return Idle
}
