package signaling

// Event is something that happened on the channel,
// one of Connected, Disconnected, Offer, RemoteICE or Log.
type Event interface{ event() }

type Connected struct{ Key Key }

// Disconnected is the close of the socket by the other side.
type Disconnected struct{ Reason string }

// Offer is the SDP offer of the remote peer.
type Offer struct{ SDP string }

type RemoteICE struct{ Candidate Candidate }

// Log is a diagnostic about a frame that couldn't be used.
type Log struct {
	Message string
	Frame   string
}

func (Connected) event()    {}
func (Disconnected) event() {}
func (Offer) event()        {}
func (RemoteICE) event()    {}
func (Log) event()          {}

// Candidate is a trickled ICE candidate.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}
