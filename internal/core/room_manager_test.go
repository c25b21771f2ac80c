package core_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/core/mocks"
	"github.com/dkeye/chatsignal/internal/domain"
)

func TestRoomManager_Join_CreatesRoomAndLeave_DestroysIt(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	m := core.NewRoomManager()
	sc := mocks.NewMockSignalConnection(ctrl)

	// Given no room exists
	req.Empty(m.List())
	req.Empty(m.MembersOf("chat-9"))

	// When a connection joins
	m.Join("x", sc, "chat-9")

	// Then the room exists with one member
	req.Equal([]core.ConnID{"x"}, m.MembersOf("chat-9"))
	req.Equal([]core.RoomInfo{{ID: "chat-9", MemberCount: 1}}, m.List())

	// When the only member leaves the room is gone
	req.True(m.Leave("x", "chat-9"))
	req.Empty(m.MembersOf("chat-9"))
	req.Empty(m.List())
	req.Empty(m.RoomsOf("x"))

	// Leaving twice is a no-op
	req.False(m.Leave("x", "chat-9"))
}

func TestRoomManager_Broadcast_ExcludesSenderOnly(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	m := core.NewRoomManager()
	x := mocks.NewMockSignalConnection(ctrl)
	y := mocks.NewMockSignalConnection(ctrl)
	z := mocks.NewMockSignalConnection(ctrl)
	outsider := mocks.NewMockSignalConnection(ctrl)

	frame := core.Frame(`{"event":"typing"}`)
	y.EXPECT().TrySend(frame).Return(nil).Times(1)
	z.EXPECT().TrySend(frame).Return(nil).Times(1)
	// x is excluded and the outsider is not a member: no calls expected

	m.Join("x", x, "room")
	m.Join("y", y, "room")
	m.Join("z", z, "room")
	m.Join("o", outsider, "other")

	res := m.Broadcast("room", frame, "x")
	req.Equal(2, res.SendTo)
	req.Empty(res.Dropped)
}

func TestRoomManager_Broadcast_ReportsDropped(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	m := core.NewRoomManager()
	slow := mocks.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(errors.New("backpressure"))

	m.Join("slow", slow, "room")
	res := m.Broadcast("room", core.Frame("{}"), "")
	req.Equal(0, res.SendTo)
	req.Equal([]core.ConnID{"slow"}, res.Dropped)
}

func TestRoomManager_Broadcast_MissingRoomIsNoop(t *testing.T) {
	m := core.NewRoomManager()
	res := m.Broadcast("nobody-here", core.Frame("{}"), "")
	require.Equal(t, core.PublishResult{}, res)
}

func TestRoomManager_LeaveAll(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	m := core.NewRoomManager()
	x := mocks.NewMockSignalConnection(ctrl)
	y := mocks.NewMockSignalConnection(ctrl)

	m.Join("x", x, "user-1")
	m.Join("x", x, "chat-9")
	m.Join("y", y, "chat-9")

	left := m.LeaveAll("x")
	req.Equal([]domain.RoomID{"chat-9", "user-1"}, left)
	req.Equal([]core.ConnID{"y"}, m.MembersOf("chat-9"))
	req.Empty(m.MembersOf("user-1"))
	req.Empty(m.RoomsOf("x"))
	req.Empty(m.LeaveAll("x"))
}

type countingConn struct {
	mu   sync.Mutex
	sent int
}

func (c *countingConn) TrySend(core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func (c *countingConn) Close() {}

func TestRoomManager_ConcurrentBroadcastAndMembershipChurn(t *testing.T) {
	m := core.NewRoomManager()
	stable := &countingConn{}
	m.Join("stable", stable, "room")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				m.Broadcast("room", core.Frame("{}"), "")
			}
		}()
		go func(i int) {
			defer wg.Done()
			id := core.ConnID(rune('a' + i))
			c := &countingConn{}
			for j := 0; j < 200; j++ {
				m.Join(id, c, "room")
				m.LeaveAll(id)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, []core.ConnID{"stable"}, m.MembersOf("room"))
	require.Equal(t, 8*200, stable.sent)
}
