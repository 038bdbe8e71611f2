package webrtc

import (
	"errors"
	"strings"
	"testing"

	"github.com/opencloud/opencloud/pkg/config"
	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/pion/webrtc/v3"
)

func newFactory(t *testing.T) *ApiFactory {
	f, err := NewApiFactory(config.Webrtc{
		IceServers: []config.IceServer{{Urls: "stun:stun.l.google.com:19302"}},
	}, logger.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// offer makes an offer like the streaming server does, with video, audio and data.
func offer(t *testing.T) (*webrtc.PeerConnection, string) {
	remote, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = remote.Close() })
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err = remote.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err = remote.CreateDataChannel("input_channel_v1", nil); err != nil {
		t.Fatal(err)
	}
	o, err := remote.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = remote.SetLocalDescription(o); err != nil {
		t.Fatal(err)
	}
	return remote, o.SDP
}

func TestAnswer(t *testing.T) {
	f := newFactory(t)
	p, err := f.NewPeer(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	remote, sdp := offer(t)
	mid := "0"
	if err = p.AddICECandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host", SDPMid: &mid}); err != nil {
		t.Fatalf("early candidate: %v", err)
	}
	if len(p.pending) != 1 {
		t.Errorf("pending = %v", len(p.pending))
	}

	answer, err := p.Answer(sdp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(answer, "v=0") || !strings.Contains(answer, "m=video") {
		t.Errorf("answer = %v", answer)
	}
	if len(p.pending) != 0 {
		t.Errorf("pending candidates are not flushed")
	}
	if err = remote.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		t.Errorf("remote can't take the answer: %v", err)
	}
}

func TestBadOffer(t *testing.T) {
	p, err := newFactory(t).NewPeer(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.Close() }()
	if _, err = p.Answer("garbage"); err == nil {
		t.Errorf("no error")
	}
}

func TestClosedPeer(t *testing.T) {
	p, err := newFactory(t).NewPeer(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = p.Close(); err != nil {
		t.Fatal(err)
	}
	if err = p.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, err = p.Answer("v=0"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
	if err = p.AddICECandidate(webrtc.ICECandidateInit{}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
}

// firstVideoCodec is the encoding name of the first payload type of the video section.
func firstVideoCodec(sdp string) string {
	lines := strings.Split(strings.ReplaceAll(sdp, "\r\n", "\n"), "\n")
	pt := ""
	for _, l := range lines {
		if f := strings.Fields(l); len(f) > 3 && f[0] == "m=video" {
			pt = f[3]
			break
		}
	}
	for _, l := range lines {
		if rest, ok := strings.CutPrefix(l, "a=rtpmap:"+pt+" "); ok && pt != "" {
			name, _, _ := strings.Cut(rest, "/")
			return name
		}
	}
	return ""
}

func TestPreferCodec(t *testing.T) {
	tests := []struct {
		codec string
		want  string
	}{
		{codec: "H264", want: "H264"},
		{codec: "vp9", want: "VP9"},
		{codec: "NOPE"},
	}
	for _, test := range tests {
		t.Run(test.codec, func(t *testing.T) {
			p, err := newFactory(t).NewPeer(nil)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = p.Close() }()
			p.PreferCodec(test.codec)

			remote, sdp := offer(t)
			answer, err := p.Answer(sdp)
			if err != nil {
				t.Fatal(err)
			}
			got := firstVideoCodec(answer)
			if got == "" {
				t.Fatalf("no video codec in %v", answer)
			}
			if test.want != "" && got != test.want {
				t.Errorf("first codec = %v, want %v", got, test.want)
			}
			if err = remote.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
				t.Errorf("remote can't take the answer: %v", err)
			}
		})
	}
}
