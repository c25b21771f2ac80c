package app

import (
	"fmt"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a connection whose send buffer is full.
// The frame itself is always dropped; delivery is at most once.
type Policy interface {
	OnBackPressure(room domain.RoomID, conn core.ConnID) BackpressureAction
}

// DropPolicy drops the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomID, core.ConnID) BackpressureAction {
	return NoAction
}

// KickPolicy disconnects a client that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomID, core.ConnID) BackpressureAction {
	return KickMember
}

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
