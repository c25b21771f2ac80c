package core

import (
	"github.com/dkeye/chatsignal/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	Members() []ConnID

	AddMember(id ConnID, sc SignalConnection)
	RemoveMember(id ConnID) bool
	Broadcast(data Frame, exclude ConnID) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// RoomManager owns room lifecycle: a room exists from its first join
// until its last member leaves.
type RoomManager interface {
	Join(id ConnID, sc SignalConnection, room domain.RoomID)
	Leave(id ConnID, room domain.RoomID) bool
	LeaveAll(id ConnID) []domain.RoomID
	RoomsOf(id ConnID) []domain.RoomID
	MembersOf(room domain.RoomID) []ConnID
	Broadcast(room domain.RoomID, data Frame, exclude ConnID) PublishResult
	List() []RoomInfo
}
