package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestResolveSignaling(t *testing.T) {
	tests := []struct {
		name    string
		conns   []Connection
		control string
		server  string
		url     string
		err     error
	}{
		{
			name:   "secure rtsp path",
			conns:  []Connection{{Usage: UsageSignaling, ResourcePath: "rtsps://203.0.113.5:443/session"}},
			server: "203.0.113.5",
			url:    "wss://203.0.113.5/nvst/",
		},
		{
			name:   "direct ip wins",
			conns:  []Connection{{Usage: UsageSignaling, IP: "198.51.100.7", ResourcePath: "rtsps://203.0.113.5:443/session"}},
			server: "198.51.100.7",
			url:    "wss://198.51.100.7/nvst/",
		},
		{
			name:   "wss verbatim",
			conns:  []Connection{{Usage: UsageSignaling, ResourcePath: "wss://sig.example.net/nvst/x"}},
			server: "sig.example.net",
			url:    "wss://sig.example.net/nvst/x",
		},
		{
			name:   "absolute path",
			conns:  []Connection{{Usage: UsageSignaling, IP: "203.0.113.9", ResourcePath: "/custom/"}},
			server: "203.0.113.9",
			url:    "wss://203.0.113.9:443/custom/",
		},
		{
			name:    "control ip fallback",
			conns:   []Connection{{Usage: UsageMedia, IP: "203.0.113.20", Port: 47998}},
			control: "203.0.113.1",
			server:  "203.0.113.1",
			url:     "wss://203.0.113.1:443/nvst/",
		},
		{
			name:    "plain rtsp is default",
			conns:   []Connection{{Usage: UsageSignaling, ResourcePath: "rtsp://203.0.113.5:48010"}},
			control: "203.0.113.1",
			server:  "203.0.113.5",
			url:     "wss://203.0.113.5:443/nvst/",
		},
		{
			name:  "nothing",
			conns: []Connection{{Usage: UsageMedia, Port: 1}},
			err:   ErrNoSignaling,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sig, err := ResolveSignaling(test.conns, test.control)
			if !errors.Is(err, test.err) {
				t.Fatalf("err = %v, want %v", err, test.err)
			}
			if sig.Server != test.server || sig.URL != test.url {
				t.Errorf("got %v %v, want %v %v", sig.Server, sig.URL, test.server, test.url)
			}
		})
	}
}

func TestResolveMedia(t *testing.T) {
	sig, err := ResolveSignaling([]Connection{
		{Usage: UsageSignaling, IP: "203.0.113.5"},
		{Usage: UsageMedia, ResourcePath: "rtsps://203.0.113.6:48010", Port: 48010},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if sig.Media == nil || sig.Media.IP != "203.0.113.6" || sig.Media.Port != 48010 {
		t.Errorf("media = %+v", sig.Media)
	}
}

func TestIceServerUrls(t *testing.T) {
	var list []IceServer
	data := `[{"urls":"stun:a:3478"},{"urls":["turn:b:3478","turns:b:443"],"username":"u","credential":"p"},{"urls":null}]`
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || len(list[0].URLs) != 1 || len(list[1].URLs) != 2 || list[2].URLs != nil {
		t.Fatalf("list = %+v", list)
	}

	pion := ToPion(list)
	if len(pion) != 2 {
		t.Fatalf("pion = %+v", pion)
	}
	if pion[1].Username != "u" || pion[1].Credential != "p" {
		t.Errorf("creds = %+v", pion[1])
	}
	if fb := ToPion(nil); len(fb) != 2 || fb[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("fallback = %+v", fb)
	}
}
