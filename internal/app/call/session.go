package call

import (
	"encoding/json"
	"time"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

// Session is one call attempt between two identities in a chat.
type Session struct {
	Chat         domain.ChatID   `json:"chatId"`
	Caller       domain.UserID   `json:"callerId"`
	Receiver     domain.UserID   `json:"receiverId"`
	CallerConn   core.ConnID     `json:"-"`
	ReceiverConn core.ConnID     `json:"-"`
	Phase        Phase           `json:"phase"`
	Offer        json.RawMessage `json:"-"`
	Answer       json.RawMessage `json:"-"`
	StartedAt    time.Time       `json:"startedAt"`
	AnsweredAt   time.Time       `json:"answeredAt,omitzero"`

	// candidates waiting for their target, keyed by target identity
	pending map[domain.UserID][]json.RawMessage
}

// Pending is a queued candidate released for delivery. Conn is the
// target's call connection when one is known.
type Pending struct {
	Chat      domain.ChatID
	Target    domain.UserID
	Conn      core.ConnID
	Candidate json.RawMessage
}

func (s *Session) snapshot() Session {
	out := *s
	out.pending = nil
	return out
}

func (s *Session) party(u domain.UserID) bool {
	return u != "" && (u == s.Caller || u == s.Receiver)
}

func (s *Session) peerOf(u domain.UserID) domain.UserID {
	if u == s.Caller {
		return s.Receiver
	}
	return s.Caller
}

// ready reports whether target already has a peer connection able to
// consume candidates. The receiver builds one only after answering.
func (s *Session) ready(target domain.UserID) bool {
	return s.Phase == Active || target == s.Caller
}

// connOf is the connection that placed or answered the call for u.
func (s *Session) connOf(u domain.UserID) core.ConnID {
	switch u {
	case s.Caller:
		return s.CallerConn
	case s.Receiver:
		return s.ReceiverConn
	}
	return ""
}

func (s *Session) hasConn(id core.ConnID) bool {
	return id != "" && (id == s.CallerConn || id == s.ReceiverConn)
}

func (s *Session) take(target domain.UserID) []Pending {
	queued := s.pending[target]
	if len(queued) == 0 {
		return nil
	}
	delete(s.pending, target)
	out := make([]Pending, 0, len(queued))
	for _, c := range queued {
		out = append(out, Pending{Chat: s.Chat, Target: target, Conn: s.connOf(target), Candidate: c})
	}
	return out
}
