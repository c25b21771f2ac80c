package rtc

import (
	"github.com/pion/webrtc/v4"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

// DefaultWebRTCConfig is the peer configuration handed to browsers. The
// server never opens a PeerConnection itself.
func DefaultWebRTCConfig(urls ...string) webrtc.Configuration {
	if len(urls) == 0 {
		urls = []string{DefaultSTUN}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: urls,
			},
		},
	}
}

// ClientConfig is the browser-facing shape of webrtc.Configuration.
type ClientConfig struct {
	ICEServers []ClientICEServer `json:"iceServers"`
}

type ClientICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func ToClientConfig(cfg webrtc.Configuration) ClientConfig {
	out := ClientConfig{ICEServers: make([]ClientICEServer, 0, len(cfg.ICEServers))}
	for _, s := range cfg.ICEServers {
		cs := ClientICEServer{URLs: s.URLs, Username: s.Username}
		if cred, ok := s.Credential.(string); ok {
			cs.Credential = cred
		}
		out.ICEServers = append(out.ICEServers, cs)
	}
	return out
}
