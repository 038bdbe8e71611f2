package session

import (
	"encoding/json"
	"strings"

	"github.com/pion/webrtc/v3"
)

// Status is the remote session state.
type Status int

const (
	StatusUnknown      Status = 0
	StatusProvisioning Status = 1
	StatusReady        Status = 2
	StatusRunning      Status = 3
	StatusQueued       Status = 4
	StatusStopping     Status = 5
	StatusFailed       Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusProvisioning:
		return "provisioning"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusQueued:
		return "queued"
	case StatusStopping:
		return "stopping"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// IsStreamable tells if the session can be connected to.
func (s Status) IsStreamable() bool { return s == StatusReady || s == StatusRunning }

// IsPending tells if the session may still become streamable.
func (s Status) IsPending() bool { return s == StatusProvisioning || s == StatusQueued }

// Info is the known state of a remote session.
// The signaling fields are empty until the session is streamable.
type Info struct {
	SessionID       string
	Status          Status
	Zone            string
	ServerIP        string
	GPUType         string
	QueuePosition   int
	SignalingServer string
	SignalingURL    string
	IceServers      []IceServer
	Media           *MediaConnection
}

// HasSignaling tells if the signaling address is resolved.
func (i *Info) HasSignaling() bool { return i != nil && i.SignalingURL != "" }

type MediaConnection struct {
	IP   string
	Port int
}

// IceServer is a STUN/TURN server.
// The urls value comes either as a string or as an array of strings.
type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func (s *IceServer) UnmarshalJSON(data []byte) error {
	var raw struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Username, s.Credential, s.URLs = raw.Username, raw.Credential, nil
	if len(raw.URLs) == 0 || string(raw.URLs) == "null" {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw.URLs, &one); err == nil {
		if one = strings.TrimSpace(one); one != "" {
			s.URLs = []string{one}
		}
		return nil
	}
	return json.Unmarshal(raw.URLs, &s.URLs)
}

func (s IceServer) ToPion() webrtc.ICEServer {
	srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
	if s.Credential != "" {
		srv.Credential = s.Credential
		srv.CredentialType = webrtc.ICECredentialTypePassword
	}
	return srv
}

// FallbackIceServers are used when the session has none.
var FallbackIceServers = []IceServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

// ToPion converts the list for a peer connection config,
// an empty list gives the fallback servers.
func ToPion(servers []IceServer) []webrtc.ICEServer {
	if len(servers) == 0 {
		servers = FallbackIceServers
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		out = append(out, s.ToPion())
	}
	return out
}
