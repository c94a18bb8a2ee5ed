package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"

	"huddle/pkg/config"
)

// DefaultICEServers is used when the configuration lists none.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// ICEServers converts configured servers to the form browsers expect in
// RTCPeerConnection's iceServers.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	if len(servers) == 0 {
		return DefaultICEServers
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}

// ValidateICEServers checks the servers the same way a peer connection does
// when it is configured with them.
func ValidateICEServers(servers []webrtc.ICEServer) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return fmt.Errorf("invalid ICE servers: %w", err)
	}
	return pc.Close()
}
