package webrtc

import (
	"errors"
	"strings"
	"sync"

	"github.com/opencloud/opencloud/pkg/logger"
	"github.com/pion/webrtc/v3"
)

var ErrClosed = errors.New("peer closed")

// Peer is the answering side of the stream connection.
// Remote candidates that come before the offer are kept
// until the remote description is set.
type Peer struct {
	conn *webrtc.PeerConnection
	log  *logger.Logger

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	remote  bool
	closed  bool
	codec   string
}

func newPeer(conn *webrtc.PeerConnection, log *logger.Logger) *Peer {
	p := &Peer{conn: conn, log: log.Module("peer")}
	conn.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		p.log.Debug().Msgf("ICE state: %v", s)
	})
	conn.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.log.Debug().Msgf("Data channel: %v", dc.Label())
	})
	return p
}

// OnICECandidate sets the callback for the local candidates.
func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			p.log.Debug().Msg("ICE gathering is complete")
			return
		}
		fn(c.ToJSON())
	})
}

func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote)) {
	p.conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.log.Info().Msgf("Remote track: %v %v", track.Kind(), track.Codec().MimeType)
		fn(track)
	})
}

// PreferCodec moves the video codec (H264, H265, AV1, ...) to the top
// of the answer when the offer has it. The rest stay as a fallback.
func (p *Peer) PreferCodec(name string) {
	p.mu.Lock()
	p.codec = name
	p.mu.Unlock()
}

func (p *Peer) preferCodec(name string) {
	mime := "video/" + name
	for _, t := range p.conn.GetTransceivers() {
		if t.Kind() != webrtc.RTPCodecTypeVideo || t.Receiver() == nil {
			continue
		}
		var first, rest []webrtc.RTPCodecParameters
		for _, c := range t.Receiver().GetParameters().Codecs {
			if strings.EqualFold(c.MimeType, mime) {
				first = append(first, c)
			} else {
				rest = append(rest, c)
			}
		}
		if len(first) == 0 {
			p.log.Debug().Msgf("No %v in the offer", name)
			continue
		}
		if err := t.SetCodecPreferences(append(first, rest...)); err != nil {
			p.log.Warn().Err(err).Msg("Couldn't set the codec preferences")
		}
	}
}

func (p *Peer) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	p.conn.OnConnectionStateChange(fn)
}

// Answer applies the remote offer and returns the local answer.
// Candidates are trickled separately.
func (p *Peer) Answer(offer string) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrClosed
	}
	codec := p.codec
	p.mu.Unlock()

	err := p.conn.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer})
	if err != nil {
		return "", err
	}
	if codec != "" {
		p.preferCodec(codec)
	}
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err = p.conn.SetLocalDescription(answer); err != nil {
		return "", err
	}

	p.mu.Lock()
	p.remote = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range pending {
		if err := p.conn.AddICECandidate(c); err != nil {
			p.log.Warn().Err(err).Msg("Couldn't add a candidate")
		}
	}
	return p.conn.LocalDescription().SDP, nil
}

// AddICECandidate adds the remote candidate.
func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.remote {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.conn.AddICECandidate(c)
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = nil
	p.mu.Unlock()
	return p.conn.Close()
}
