package call

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

var (
	offer  = json.RawMessage(`{"type":"offer","sdp":"o"}`)
	answer = json.RawMessage(`{"type":"answer","sdp":"a"}`)
)

func cand(n string) json.RawMessage {
	return json.RawMessage(`{"candidate":"` + n + `"}`)
}

func TestSessions_IdleRingingActive(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)

	req.Equal(Idle, s.Phase("c1"))

	sess, reneg, err := s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	req.False(reneg)
	req.Equal(Ringing, sess.Phase)
	req.Equal(Ringing, s.Phase("c1"))

	sess, flushed, err := s.Answer("c1", "u1", "u2", "y", answer)
	req.NoError(err)
	req.Empty(flushed)
	req.Equal(Active, sess.Phase)
	req.JSONEq(string(answer), string(sess.Answer))
	req.Equal(Active, s.Phase("c1"))
}

func TestSessions_AnswerWithoutRinging_IsRejected(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)

	_, _, err := s.Answer("nope", "u1", "u2", "y", answer)
	req.ErrorIs(err, domain.ErrNoSession)

	_, _, err = s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	_, _, err = s.Answer("c1", "u1", "u3", "y", answer)
	req.ErrorIs(err, domain.ErrInvalidState)
	req.Equal(Ringing, s.Phase("c1"))

	_, _, err = s.Answer("c1", "u1", "u2", "y", answer)
	req.NoError(err)
	_, _, err = s.Answer("c1", "u1", "u2", "y", answer)
	req.ErrorIs(err, domain.ErrInvalidState)
}

func TestSessions_Initiate_BusyAndRenegotiate(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)

	_, _, err := s.Initiate("c1", "u1", "u1", "x", offer)
	req.ErrorIs(err, domain.ErrInvalidState)

	_, _, err = s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)

	newOffer := json.RawMessage(`{"type":"offer","sdp":"o2"}`)
	sess, reneg, err := s.Initiate("c1", "u1", "u2", "x2", newOffer)
	req.NoError(err)
	req.True(reneg)
	req.Equal("x2", string(sess.CallerConn))
	req.JSONEq(string(newOffer), string(sess.Offer))

	_, _, err = s.Initiate("c1", "u2", "u1", "y", offer)
	req.ErrorIs(err, domain.ErrInvalidState)
}

func TestSessions_Reject(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)

	_, err := s.Reject("c1", "u1", "u2")
	req.ErrorIs(err, domain.ErrNoSession)

	_, _, err = s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	sess, err := s.Reject("c1", "u1", "u2")
	req.NoError(err)
	req.Equal(Ringing, sess.Phase)
	req.Equal(Idle, s.Phase("c1"))

	// a fresh call is possible once the old one ended
	_, _, err = s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
}

func online(domain.UserID, core.ConnID) bool  { return true }
func offline(domain.UserID, core.ConnID) bool { return false }

func TestSessions_Candidate_HeldForReceiverUntilAnswer(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)
	_, _, err := s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)

	// caller -> receiver while ringing: receiver has no peer connection yet
	_, deliver, err := s.Candidate("c1", "u1", "u2", online, cand("a"))
	req.NoError(err)
	req.False(deliver)
	_, deliver, err = s.Candidate("c1", "u1", "u2", online, cand("b"))
	req.NoError(err)
	req.False(deliver)

	// receiver -> caller goes straight through
	_, deliver, err = s.Candidate("c1", "u2", "u1", online, cand("r"))
	req.NoError(err)
	req.True(deliver)

	req.Empty(s.TakeReady("u2"))

	_, flushed, err := s.Answer("c1", "u1", "u2", "y", answer)
	req.NoError(err)
	req.Len(flushed, 2)
	req.JSONEq(string(cand("a")), string(flushed[0].Candidate))
	req.JSONEq(string(cand("b")), string(flushed[1].Candidate))
	req.Equal(domain.UserID("u2"), flushed[0].Target)

	_, deliver, err = s.Candidate("c1", "u1", "u2", online, cand("c"))
	req.NoError(err)
	req.True(deliver)
}

func TestSessions_Candidate_OfflineTargetQueuedThenTaken(t *testing.T) {
	req := require.New(t)
	s := NewSessions(2)
	_, _, err := s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	_, _, err = s.Answer("c1", "u1", "u2", "y", answer)
	req.NoError(err)

	_, deliver, err := s.Candidate("c1", "u2", "u1", offline, cand("a"))
	req.NoError(err)
	req.False(deliver)
	_, _, err = s.Candidate("c1", "u2", "u1", offline, cand("b"))
	req.NoError(err)
	_, _, err = s.Candidate("c1", "u2", "u1", offline, cand("c"))
	req.ErrorIs(err, ErrQueueFull)

	taken := s.TakeReady("u1")
	req.Len(taken, 2)
	req.Empty(s.TakeReady("u1"))
}

func TestSessions_Candidate_ReachesCallConnectionWithoutIdentity(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)
	_, _, err := s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	_, _, err = s.Answer("c1", "u1", "u2", "y", answer)
	req.NoError(err)

	// caller identity is offline but its call connection is still open
	var asked core.ConnID
	bound := func(_ domain.UserID, conn core.ConnID) bool {
		asked = conn
		return conn == "x"
	}
	to, deliver, err := s.Candidate("c1", "u2", "u1", bound, cand("a"))
	req.NoError(err)
	req.True(deliver)
	req.Equal(core.ConnID("x"), to)
	req.Equal(core.ConnID("x"), asked)

	to, deliver, err = s.Candidate("c1", "u1", "u2", bound, cand("b"))
	req.NoError(err)
	req.False(deliver)
	req.Empty(to)

	taken := s.TakeReady("u2")
	req.Len(taken, 1)
	req.Equal(core.ConnID("y"), taken[0].Conn)
}

func TestSessions_Candidate_Invalid(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)

	_, _, err := s.Candidate("c1", "u1", "u2", online, cand("a"))
	req.ErrorIs(err, domain.ErrNoSession)

	_, _, err = s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	_, _, err = s.Candidate("c1", "u3", "u2", online, cand("a"))
	req.ErrorIs(err, domain.ErrInvalidState)
	_, _, err = s.Candidate("c1", "u1", "u1", online, cand("a"))
	req.ErrorIs(err, domain.ErrInvalidState)
	_, _, err = s.Candidate("c1", "", "u3", online, cand("a"))
	req.ErrorIs(err, domain.ErrInvalidState)

	// unknown sender counts as the target's peer
	_, deliver, err := s.Candidate("c1", "", "u1", online, cand("a"))
	req.NoError(err)
	req.True(deliver)
}

func TestSessions_Leave(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)
	_, _, err := s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)

	_, ok := s.Leave("c1", "stranger", "w")
	req.False(ok)
	req.Equal(Ringing, s.Phase("c1"))

	sess, ok := s.Leave("c1", "u2", "y")
	req.True(ok)
	req.Equal(Ringing, sess.Phase)
	req.Equal(Idle, s.Phase("c1"))

	// an unregistered caller connection can still hang up
	_, _, err = s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	_, ok = s.Leave("c1", "", "x")
	req.True(ok)
}

func TestSessions_EndByConn(t *testing.T) {
	req := require.New(t)
	s := NewSessions(4)
	_, _, err := s.Initiate("c1", "u1", "u2", "x", offer)
	req.NoError(err)
	_, _, err = s.Answer("c1", "u1", "u2", "y", answer)
	req.NoError(err)
	_, _, err = s.Initiate("c2", "u3", "u2", "z", offer)
	req.NoError(err)

	// u2 still has another device: the ringing call in c2 survives
	ended := s.EndByConn("y", "u2", true)
	req.Len(ended, 1)
	req.Equal(domain.ChatID("c1"), ended[0].Chat)
	req.Equal(Active, ended[0].Phase)
	req.Equal(Ringing, s.Phase("c2"))

	// last device of the receiver gone: c2 ends too
	ended = s.EndByConn("y2", "u2", false)
	req.Len(ended, 1)
	req.Equal(domain.ChatID("c2"), ended[0].Chat)

	req.Empty(s.EndByConn("y", "u2", false))
}

func TestPhase_String(t *testing.T) {
	require.Equal(t, "Idle", Idle.String())
	require.Equal(t, "Ringing", Ringing.String())
	require.Equal(t, "Active", Active.String())
	require.Equal(t, "Ended", Ended.String())
	require.False(t, Ended.Live())
	b, err := json.Marshal(map[string]Phase{"p": Active})
	require.NoError(t, err)
	require.JSONEq(t, `{"p":"Active"}`, string(b))
}
