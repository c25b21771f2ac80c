// Package call holds the per-chat call session state machine:
// Idle -> Ringing -> Active -> Ended.
package call

type Phase int

const (
	Idle Phase = iota
	Ringing
	Active
	Ended
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Ringing:
		return "Ringing"
	case Active:
		return "Active"
	case Ended:
		return "Ended"
	default:
		return "Unknown"
	}
}

// Live reports whether signaling may flow for the phase.
func (p Phase) Live() bool { return p == Ringing || p == Active }

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }
