package core

//go:generate mockgen -destination=mocks/mock_signal.go -package=mocks github.com/dkeye/chatsignal/internal/core SignalConnection

// Frame is a raw text payload ready for the wire.
type Frame []byte

// ConnID identifies one live transport connection. Assigned by the transport.
type ConnID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
