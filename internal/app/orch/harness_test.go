package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/chatsignal/internal/app"
	"github.com/dkeye/chatsignal/internal/app/call"
	"github.com/dkeye/chatsignal/internal/core"
)

// fakeConn records every frame it is handed.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Envelope
	full   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errors.New("backpressure")
	}
	env, err := core.Decode(fr)
	if err != nil {
		return err
	}
	f.frames = append(f.frames, env)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.frames {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeConn) last(t *testing.T, event string) json.RawMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Event == event {
			return f.frames[i].Data
		}
	}
	t.Fatalf("no %q frame received", event)
	return nil
}

func (f *fakeConn) all(event string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, e := range f.frames {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	o       *Orchestrator
	cancels map[core.ConnID]context.Context
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	rooms := core.NewRoomManager()
	return &harness{
		t: t,
		o: &Orchestrator{
			Registry: app.NewRegistry(rooms),
			Rooms:    rooms,
			Calls:    call.NewSessions(8),
			Policy:   app.DropPolicy{},
			Options:  opts,
		},
		cancels: make(map[core.ConnID]context.Context),
	}
}

func (h *harness) connect(id core.ConnID) *fakeConn {
	c := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())
	h.t.Cleanup(cancel)
	h.cancels[id] = ctx
	h.o.Registry.Bind(id, c, "token-"+string(id), cancel)
	return c
}

func (h *harness) setup(id core.ConnID, user string) *fakeConn {
	c := h.connect(id)
	require.NoError(h.t, h.send(id, core.EventSetup, map[string]string{"_id": user}))
	return c
}

func (h *harness) send(id core.ConnID, event string, data any) error {
	raw, err := json.Marshal(data)
	require.NoError(h.t, err)
	return h.o.Dispatch(id, core.Envelope{Event: event, Data: raw})
}

func callData(caller, receiver, chat string, extra map[string]any) map[string]any {
	out := map[string]any{"callerId": caller, "receiverId": receiver, "chatId": chat}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var (
	testOffer  = map[string]string{"type": "offer", "sdp": "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}
	testAnswer = map[string]string{"type": "answer", "sdp": "v=0\r\no=- 3 4 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}
)
