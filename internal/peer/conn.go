package peer

import (
	"github.com/pion/webrtc/v4"
)

// Conn is the part of a peer connection a Session drives.
type Conn interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	CreateDataChannel(label string, options *webrtc.DataChannelInit) (Channel, error)
	Close() error
}

// Channel is the part of a data channel the telemetry layer uses.
// *webrtc.DataChannel satisfies it.
type Channel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	SendText(s string) error
	Close() error
}

// PionConn adapts a pion peer connection to Conn.
type PionConn struct {
	*webrtc.PeerConnection
}

func (c PionConn) CreateDataChannel(label string, options *webrtc.DataChannelInit) (Channel, error) {
	dc, err := c.PeerConnection.CreateDataChannel(label, options)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// TelemetryLabel is the label of the per-session telemetry channel.
const TelemetryLabel = "coords"

// TelemetryChannelInit keeps telemetry ordered but gives up on a frame
// after one retransmission; a newer pose is always on its way.
func TelemetryChannelInit() *webrtc.DataChannelInit {
	ordered := true
	maxRetransmits := uint16(1)
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	}
}
