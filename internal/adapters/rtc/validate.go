package rtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/chatsignal/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

// Validator checks signaling payloads before they are relayed. It only
// parses them; nothing is applied to a local PeerConnection.
type Validator struct {
	// Strict requires RTCSessionDescription and RTCIceCandidateInit shapes
	// and parses the SDP body and candidate line. Otherwise any JSON value
	// is relayed as is.
	Strict bool
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null" && json.Valid(raw)
}

// Description checks an offer or answer. In strict mode it must decode as
// a session description of the wanted type.
func (v Validator) Description(raw json.RawMessage, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var sd webrtc.SessionDescription
	if !present(raw) {
		return sd, fmt.Errorf("%s missing: %w", want, domain.ErrMalformed)
	}
	if !v.Strict {
		_ = json.Unmarshal(raw, &sd)
		return sd, nil
	}
	if err := json.Unmarshal(raw, &sd); err != nil {
		return sd, fmt.Errorf("%s: %w: %v", want, domain.ErrMalformed, err)
	}
	if sd.Type != want {
		return sd, fmt.Errorf("expected %s, got %s: %w", want, sd.Type, domain.ErrMalformed)
	}
	if sd.SDP == "" {
		return sd, fmt.Errorf("%s without sdp: %w", want, domain.ErrMalformed)
	}
	if _, err := sd.Unmarshal(); err != nil {
		return sd, fmt.Errorf("%s sdp: %w: %v", want, domain.ErrMalformed, err)
	}
	return sd, nil
}

// Candidate checks an ICE candidate. An empty candidate line marks the
// end of gathering and is accepted.
func (v Validator) Candidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var ci webrtc.ICECandidateInit
	if !present(raw) {
		return ci, fmt.Errorf("candidate missing: %w", domain.ErrMalformed)
	}
	if !v.Strict {
		_ = json.Unmarshal(raw, &ci)
		return ci, nil
	}
	if err := json.Unmarshal(raw, &ci); err != nil {
		return ci, fmt.Errorf("candidate: %w: %v", domain.ErrMalformed, err)
	}
	if ci.Candidate != "" {
		line := strings.TrimPrefix(ci.Candidate, "candidate:")
		if _, err := ice.UnmarshalCandidate(line); err != nil {
			return ci, fmt.Errorf("candidate line: %w: %v", domain.ErrMalformed, err)
		}
	}
	return ci, nil
}
