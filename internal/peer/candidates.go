package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/solfa/internal/protocol"
)

// CandidateQueue holds remote candidates that arrived before the remote
// description. Candidates leave it in arrival order.
type CandidateQueue struct {
	items []webrtc.ICECandidateInit
}

func (q *CandidateQueue) Push(c webrtc.ICECandidateInit) {
	q.items = append(q.items, c)
}

func (q *CandidateQueue) Len() int {
	return len(q.items)
}

// Drain applies every queued candidate in order and empties the queue. A
// failing candidate does not stop the rest; all failures are returned.
func (q *CandidateQueue) Drain(apply func(webrtc.ICECandidateInit) error) error {
	items := q.items
	q.items = nil

	var errs []error
	for _, c := range items {
		if err := apply(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CandidateSignal wraps a local candidate for the relay.
func CandidateSignal(c webrtc.ICECandidateInit) protocol.Signal {
	return protocol.Signal{
		Type:          protocol.SignalCandidate,
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// CandidateInit extracts a remote candidate from a relay signal.
func CandidateInit(s protocol.Signal) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     s.Candidate,
		SDPMid:        s.SDPMid,
		SDPMLineIndex: s.SDPMLineIndex,
	}
}
