package core

import (
	"slices"
	"sync"

	"github.com/dkeye/chatsignal/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type roomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]RoomService
	// reverse index, lets LeaveAll avoid scanning every room
	joined map[ConnID]map[domain.RoomID]struct{}
}

func NewRoomManager() RoomManager {
	return &roomManager{
		rooms:  make(map[domain.RoomID]RoomService),
		joined: make(map[ConnID]map[domain.RoomID]struct{}),
	}
}

func (m *roomManager) Join(id ConnID, sc SignalConnection, name domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[name]
	if !ok {
		room = NewRoomService(name)
		m.rooms[name] = room
		log.Debug().Str("module", "core.room").Str("room", string(name)).Msg("room created")
	}
	room.AddMember(id, sc)
	set, ok := m.joined[id]
	if !ok {
		set = make(map[domain.RoomID]struct{})
		m.joined[id] = set
	}
	set[name] = struct{}{}
}

func (m *roomManager) Leave(id ConnID, name domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(id, name)
}

func (m *roomManager) leaveLocked(id ConnID, name domain.RoomID) bool {
	room, ok := m.rooms[name]
	if !ok {
		return false
	}
	removed := room.RemoveMember(id)
	if room.MemberCount() == 0 {
		delete(m.rooms, name)
		log.Debug().Str("module", "core.room").Str("room", string(name)).Msg("room destroyed")
	}
	if set, ok := m.joined[id]; ok {
		delete(set, name)
		if len(set) == 0 {
			delete(m.joined, id)
		}
	}
	return removed
}

func (m *roomManager) LeaveAll(id ConnID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := lo.Keys(m.joined[id])
	for _, name := range names {
		m.leaveLocked(id, name)
	}
	slices.Sort(names)
	return names
}

func (m *roomManager) RoomsOf(id ConnID) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := lo.Keys(m.joined[id])
	slices.Sort(names)
	return names
}

func (m *roomManager) MembersOf(name domain.RoomID) []ConnID {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if !ok {
		return []ConnID{}
	}
	return room.Members()
}

// Broadcast is best effort: a missing room is a silent no-op.
func (m *roomManager) Broadcast(name domain.RoomID, data Frame, exclude ConnID) PublishResult {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if !ok {
		return PublishResult{}
	}
	return room.Broadcast(data, exclude)
}

func (m *roomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for name, r := range m.rooms {
		out = append(out, RoomInfo{ID: name, MemberCount: r.MemberCount()})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}
