package session

import "strings"

// Connection usage codes.
const (
	UsageMedia     = 6
	UsageSignaling = 14
)

// Connection is a session connection descriptor.
type Connection struct {
	Usage        int    `json:"usage"`
	IP           string `json:"ip,omitempty"`
	Port         int    `json:"port,omitempty"`
	ResourcePath string `json:"resourcePath,omitempty"`
}

// Signaling is the resolved address of the signaling server.
type Signaling struct {
	Server string
	URL    string
	Media  *MediaConnection
}

var schemes = []string{"rtsps://", "rtsp://", "wss://", "https://"}

// hostOf strips a known scheme and returns
// the host up to the next ':' or '/'.
func hostOf(path string) string {
	for _, s := range schemes {
		if strings.HasPrefix(path, s) {
			rest := path[len(s):]
			if i := strings.IndexAny(rest, ":/"); i >= 0 {
				rest = rest[:i]
			}
			return rest
		}
	}
	return ""
}

func find(conns []Connection, usage int) *Connection {
	for i := range conns {
		if conns[i].Usage == usage {
			return &conns[i]
		}
	}
	return nil
}

// ResolveSignaling finds the signaling address among the session
// connections. The control IP is the last resort host.
func ResolveSignaling(conns []Connection, controlIP string) (Signaling, error) {
	sig := find(conns, UsageSignaling)

	var host, path string
	if sig != nil {
		host, path = sig.IP, sig.ResourcePath
		if host == "" {
			host = hostOf(path)
		}
	}
	if host == "" {
		host = controlIP
	}
	if host == "" {
		return Signaling{}, ErrNoSignaling
	}

	var address string
	switch {
	case strings.HasPrefix(path, "rtsps://"):
		address = "wss://" + host + "/nvst/"
	case strings.HasPrefix(path, "wss://"):
		address = path
	case strings.HasPrefix(path, "/"):
		address = "wss://" + host + ":443" + path
	default:
		address = "wss://" + host + ":443/nvst/"
	}

	out := Signaling{Server: host, URL: address}
	if m := find(conns, UsageMedia); m != nil {
		ip := m.IP
		if ip == "" {
			ip = hostOf(m.ResourcePath)
		}
		if ip == "" {
			ip = host
		}
		out.Media = &MediaConnection{IP: ip, Port: m.Port}
	}
	return out, nil
}
