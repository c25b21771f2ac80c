package core

import (
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/chatsignal/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id      domain.RoomID
	mu      sync.RWMutex
	members map[ConnID]SignalConnection
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:      id,
		members: make(map[ConnID]SignalConnection),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) Members() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Keys(r.members))
	slices.Sort(out)
	return out
}

func (r *roomImpl) AddMember(id ConnID, sc SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id] = sc
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(id)).Msg("member added")
}

func (r *roomImpl) RemoveMember(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(id)).Msg("member removed")
	return true
}

// Broadcast copies the member set before writing so that concurrent
// joins and leaves never block on, or race with, the fan-out.
func (r *roomImpl) Broadcast(data Frame, exclude ConnID) PublishResult {
	r.mu.RLock()
	snapshot := maps.Clone(r.members)
	r.mu.RUnlock()

	res := PublishResult{}
	for id, sc := range snapshot {
		if id == exclude {
			continue
		}
		if err := sc.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("exclude", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
