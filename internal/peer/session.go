package peer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/solfa/internal/avatar"
	"github.com/BioHazard786/solfa/internal/protocol"
)

// DefaultExitDelay is how long a departed peer's avatar lingers.
const DefaultExitDelay = 500 * time.Millisecond

// Signaller sends a signal to one member of the room.
type Signaller interface {
	Signal(to, id string, sig protocol.Signal) error
}

// Options configures a new Session.
type Options struct {
	ID     string
	Peer   string
	Role   Role
	Conn   Conn
	Signal Signaller
	Logger *slog.Logger

	// OnTeardown runs during teardown before any resource is released. The
	// owner uses it to forget the session.
	OnTeardown func(*Session)

	// ExitDelay defers avatar removal. Zero uses DefaultExitDelay; a
	// negative value removes it immediately.
	ExitDelay time.Duration
}

// Session is the negotiation and media exchange with one remote peer.
//
// Negotiation methods are not safe for concurrent use; the owner calls
// them from one goroutine. State may be read from anywhere.
type Session struct {
	// ID is shared by both ends of the negotiation.
	ID string

	// Peer is the remote member id, the addressee of our signals.
	Peer string

	Role Role

	// LocalTrack is the shared local audio, RemoteTrack the peer's audio
	// once it arrives. Neither is owned by the session.
	LocalTrack  webrtc.TrackLocal
	RemoteTrack *webrtc.TrackRemote

	// DataChannel carries telemetry. The initiator creates it, the
	// responder receives it.
	DataChannel Channel

	// Avatar is attached when the data channel opens.
	Avatar avatar.Avatar

	conn       Conn
	signal     Signaller
	logger     *slog.Logger
	onTeardown func(*Session)
	exitDelay  time.Duration

	queue     CandidateQueue
	remoteSet bool
	closers   []func()

	mu    sync.Mutex
	state State
}

// New creates a session in the pending-local-stream state.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := opts.ExitDelay
	if delay == 0 {
		delay = DefaultExitDelay
	}
	return &Session{
		ID:         opts.ID,
		Peer:       opts.Peer,
		Role:       opts.Role,
		conn:       opts.Conn,
		signal:     opts.Signal,
		logger:     logger.With("session", opts.ID, "peer", opts.Peer, "role", opts.Role.String()),
		onTeardown: opts.OnTeardown,
		exitDelay:  delay,
		state:      StatePendingLocalStream,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteDescriptionSet reports whether queued candidates may be applied.
func (s *Session) RemoteDescriptionSet() bool {
	return s.remoteSet
}

// QueuedCandidates is the number of candidates waiting for the remote
// description.
func (s *Session) QueuedCandidates() int {
	return s.queue.Len()
}

func (s *Session) setState(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == next {
		return false
	}
	s.state = next
	return true
}

func (s *Session) closed() bool {
	return s.State() == StateClosed
}

// AttachLocal adds the local audio track and moves the session to
// negotiating. A nil track negotiates receive-only.
func (s *Session) AttachLocal(track webrtc.TrackLocal) error {
	if s.closed() {
		return newError("attach local stream", s.ID, ErrClosed)
	}
	if s.State() != StatePendingLocalStream {
		return newError("attach local stream", s.ID, ErrWrongState)
	}
	if track != nil {
		if _, err := s.conn.AddTrack(track); err != nil {
			return s.fail("attach local stream", err)
		}
		s.LocalTrack = track
	}
	s.setState(StateNegotiating)
	return nil
}

// Offer creates the telemetry channel and sends an offer to the peer.
func (s *Session) Offer() error {
	const op = "offer"
	if err := s.ready(op, RoleInitiator); err != nil {
		return err
	}

	dc, err := s.conn.CreateDataChannel(TelemetryLabel, TelemetryChannelInit())
	if err != nil {
		return s.fail("create data channel", err)
	}
	s.DataChannel = dc

	offer, err := s.conn.CreateOffer(nil)
	if err != nil {
		return s.fail("create offer", err)
	}
	if err := s.conn.SetLocalDescription(offer); err != nil {
		return s.fail("set local description", err)
	}

	if err := s.send(protocol.Signal{Type: protocol.SignalOffer, SDP: s.localSDP(offer)}); err != nil {
		return s.fail(op, err)
	}
	s.logger.Debug("offer sent")
	return nil
}

// Accept applies a remote offer, flushes queued candidates and answers.
func (s *Session) Accept(sdp string) error {
	const op = "accept offer"
	if err := s.ready(op, RoleResponder); err != nil {
		return err
	}
	if s.remoteSet {
		return newError(op, s.ID, ErrWrongState)
	}

	if err := s.setRemote(webrtc.SDPTypeOffer, sdp); err != nil {
		return s.fail("set remote description", err)
	}

	answer, err := s.conn.CreateAnswer(nil)
	if err != nil {
		return s.fail("create answer", err)
	}
	if err := s.conn.SetLocalDescription(answer); err != nil {
		return s.fail("set local description", err)
	}

	if err := s.send(protocol.Signal{Type: protocol.SignalAnswer, SDP: s.localSDP(answer)}); err != nil {
		return s.fail(op, err)
	}
	s.logger.Debug("answer sent")
	return nil
}

// Complete applies the peer's answer to our offer.
func (s *Session) Complete(sdp string) error {
	const op = "complete"
	if err := s.ready(op, RoleInitiator); err != nil {
		return err
	}
	if s.remoteSet {
		return newError(op, s.ID, ErrWrongState)
	}
	if err := s.setRemote(webrtc.SDPTypeAnswer, sdp); err != nil {
		return s.fail("set remote description", err)
	}
	return nil
}

// AddCandidate applies a remote candidate, or queues it until the remote
// description is set.
func (s *Session) AddCandidate(c webrtc.ICECandidateInit) error {
	if s.closed() {
		return newError("add candidate", s.ID, ErrClosed)
	}
	if !s.remoteSet {
		s.queue.Push(c)
		return nil
	}
	if err := s.conn.AddICECandidate(c); err != nil {
		// A bad candidate costs one path, not the session.
		s.logger.Warn("add candidate failed", "err", err)
		return newError("add candidate", s.ID, err)
	}
	return nil
}

// SendCandidate forwards a locally gathered candidate to the peer. A nil
// candidate marks the end of gathering and is not sent.
func (s *Session) SendCandidate(c *webrtc.ICECandidate) error {
	if c == nil || s.closed() {
		return nil
	}
	return s.send(CandidateSignal(c.ToJSON()))
}

// SetDataChannel records the channel the initiator opened toward us.
func (s *Session) SetDataChannel(ch Channel) {
	if s.DataChannel != nil && s.DataChannel != ch {
		s.logger.Debug("replacing data channel", "label", ch.Label())
	}
	s.DataChannel = ch
}

// SetRemoteTrack records the peer's audio track.
func (s *Session) SetRemoteTrack(t *webrtc.TrackRemote) {
	s.RemoteTrack = t
}

// AttachAvatar binds the avatar created when the data channel opened.
func (s *Session) AttachAvatar(a avatar.Avatar) {
	s.Avatar = a
}

// OnClose registers fn to run during teardown, after the session has left
// its owner's map and before the connection closes. Used for telemetry and
// audio taps.
func (s *Session) OnClose(fn func()) {
	if s.closed() {
		fn()
		return
	}
	s.closers = append(s.closers, fn)
}

// HandleConnectionState follows the transport. A failed or closed
// transport ends the session; there is no resume in place.
func (s *Session) HandleConnectionState(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if s.setState(StateConnected) {
			s.logger.Info("peer connected")
		}
	case webrtc.PeerConnectionStateDisconnected:
		if s.setState(StateDisconnected) {
			s.logger.Warn("peer disconnected")
		}
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		if s.Teardown(true) {
			s.logger.Info("transport ended", "state", state.String())
		}
	}
}

// Teardown ends the session. notify sends bye to the peer and is false
// when the peer's own bye triggered the teardown. It reports whether this
// call did the work; later calls are no-ops.
func (s *Session) Teardown(notify bool) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	s.mu.Unlock()

	if notify && s.signal != nil {
		if err := s.signal.Signal(s.Peer, s.ID, protocol.Signal{Type: protocol.SignalBye}); err != nil {
			s.logger.Debug("bye not sent", "err", err)
		}
	}

	if s.onTeardown != nil {
		s.onTeardown(s)
	}

	if a := s.Avatar; a != nil {
		if s.exitDelay < 0 {
			a.Remove()
		} else {
			time.AfterFunc(s.exitDelay, a.Remove)
		}
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil

	if s.DataChannel != nil {
		s.DataChannel.Close()
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("close peer connection", "err", err)
		}
	}
	s.logger.Debug("session closed")
	return true
}

func (s *Session) ready(op string, role Role) error {
	switch {
	case s.closed():
		return newError(op, s.ID, ErrClosed)
	case s.Role != role:
		return newError(op, s.ID, ErrWrongRole)
	case s.State() == StatePendingLocalStream:
		return newError(op, s.ID, ErrNoLocalStream)
	}
	return nil
}

func (s *Session) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := s.conn.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return err
	}
	s.remoteSet = true
	if err := s.queue.Drain(s.conn.AddICECandidate); err != nil {
		s.logger.Warn("queued candidates failed", "err", err)
	}
	return nil
}

func (s *Session) localSDP(fallback webrtc.SessionDescription) string {
	if ld := s.conn.LocalDescription(); ld != nil {
		return ld.SDP
	}
	return fallback.SDP
}

func (s *Session) send(sig protocol.Signal) error {
	if s.signal == nil {
		return nil
	}
	return s.signal.Signal(s.Peer, s.ID, sig)
}

// fail tears the session down after a failed step and returns the typed
// error.
func (s *Session) fail(op string, err error) error {
	serr := newError(op, s.ID, err)
	s.logger.Error("negotiation failed", "op", op, "err", err)
	s.Teardown(true)
	return serr
}
