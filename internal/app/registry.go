package app

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Entry is what the registry knows about one live connection.
type Entry struct {
	ID          core.ConnID
	Identity    domain.UserID
	ClientToken string
	Signal      core.SignalConnection
	Cancel      context.CancelFunc
}

// Registry maps connections to identities and keeps the reverse
// identity -> connections index so lookups never scan every socket.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*Entry
	byUser map[domain.UserID]map[core.ConnID]struct{}
	rooms  core.RoomManager
}

func NewRegistry(rooms core.RoomManager) *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*Entry),
		byUser: make(map[domain.UserID]map[core.ConnID]struct{}),
		rooms:  rooms,
	}
}

// Bind records a freshly opened connection that has no identity yet.
func (r *Registry) Bind(id core.ConnID, sc core.SignalConnection, clientToken string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &Entry{ID: id, ClientToken: clientToken, Signal: sc, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("client", clientToken).Msg("bound connection")
}

// Register attaches identity to the connection and subscribes it to the
// identity's mailbox room. Repeating the same identity is a no-op.
func (r *Registry) Register(id core.ConnID, identity domain.UserID) error {
	if identity == "" {
		return fmt.Errorf("register %s: empty identity: %w", id, domain.ErrMalformed)
	}
	r.mu.Lock()
	e, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("register %s: %w", id, domain.ErrUnknownConnection)
	}
	if e.Identity != "" && e.Identity != identity {
		current := e.Identity
		r.mu.Unlock()
		return fmt.Errorf("register %s as %s: already %s: %w", id, identity, current, domain.ErrInvalidState)
	}
	e.Identity = identity
	set, ok := r.byUser[identity]
	if !ok {
		set = make(map[core.ConnID]struct{})
		r.byUser[identity] = set
	}
	set[id] = struct{}{}
	// joining under the registry lock keeps Unregister from slipping in
	// between the index update and the mailbox join
	r.rooms.Join(id, e.Signal, identity.Mailbox())
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(identity)).Msg("registered identity")
	return nil
}

// Resolve returns every open connection of identity. Unknown identity
// yields an empty slice.
func (r *Registry) Resolve(identity domain.UserID) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.Keys(r.byUser[identity])
	slices.Sort(out)
	return out
}

// Online reports how many connections identity currently has.
func (r *Registry) Online(identity domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[identity])
}

func (r *Registry) Get(id core.ConnID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (r *Registry) Identity(id core.ConnID) (domain.UserID, bool) {
	e, ok := r.Get(id)
	if !ok || e.Identity == "" {
		return "", false
	}
	return e.Identity, true
}

// Unregister drops the connection from every room and from the index.
// Only the first call for a connection reports true.
func (r *Registry) Unregister(id core.ConnID) (Entry, bool) {
	r.mu.Lock()
	e, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return Entry{}, false
	}
	delete(r.conns, id)
	if e.Identity != "" {
		if set, ok := r.byUser[e.Identity]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byUser, e.Identity)
			}
		}
	}
	left := r.rooms.LeaveAll(id)
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(e.Identity)).Int("rooms_left", len(left)).Msg("unregistered connection")
	return *e, true
}

// Cancel closes the connection's context; its pumps exit and the
// transport reports the disconnect.
func (r *Registry) Cancel(id core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}
