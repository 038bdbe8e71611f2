package signaling

import (
	"encoding/json"
	"fmt"
)

// inbound is any frame coming from the server.
type inbound struct {
	AckID    *int            `json:"ackid,omitempty"`
	Ack      *int            `json:"ack,omitempty"`
	Hb       *int            `json:"hb,omitempty"`
	PeerMsg  *peerMsg        `json:"peer_msg,omitempty"`
	PeerInfo json.RawMessage `json:"peer_info,omitempty"`
}

// origin is the peer id of the frame sender, 0 when unknown.
func (f inbound) origin() int {
	if f.PeerMsg != nil {
		return f.PeerMsg.From
	}
	if len(f.PeerInfo) > 0 {
		var info struct {
			ID int `json:"id"`
		}
		if json.Unmarshal(f.PeerInfo, &info) == nil {
			return info.ID
		}
	}
	return 0
}

func (f inbound) kind() string {
	switch {
	case f.PeerMsg != nil:
		return "peer_msg"
	case f.Hb != nil:
		return "hb"
	case f.Ack != nil:
		return "ack"
	case len(f.PeerInfo) > 0:
		return "peer_info"
	}
	return "unknown"
}

// peerMsg is the relay envelope, msg is a JSON document itself.
type peerMsg struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Msg  string `json:"msg"`
}

type outbound struct {
	AckID    int       `json:"ackid,omitempty"`
	PeerMsg  *peerMsg  `json:"peer_msg,omitempty"`
	PeerInfo *peerInfo `json:"peer_info,omitempty"`
}

type peerInfo struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	Connected      bool   `json:"connected"`
	PeerRole       int    `json:"peerRole"`
	Resolution     string `json:"resolution"`
	Version        int    `json:"version"`
}

type ackFrame struct {
	Ack int `json:"ack"`
}

type hbFrame struct {
	Hb int `json:"hb"`
}

// inner is the relayed peer message.
type inner struct {
	Type          string  `json:"type,omitempty"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     *string `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// decodeInner turns the relayed message into an event.
// Unknown shapes become Log events.
func decodeInner(msg string) Event {
	var in inner
	if err := json.Unmarshal([]byte(msg), &in); err != nil {
		return Log{Message: fmt.Sprintf("malformed peer message: %v", err), Frame: msg}
	}
	switch {
	case in.Type == "offer" && in.SDP != "":
		return Offer{SDP: in.SDP}
	case in.Candidate != nil:
		return RemoteICE{Candidate: Candidate{
			Candidate:     *in.Candidate,
			SDPMid:        in.SDPMid,
			SDPMLineIndex: in.SDPMLineIndex,
		}}
	}
	return Log{Message: "unknown peer message", Frame: msg}
}
