package peer

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/solfa/internal/avatar"
	"github.com/BioHazard786/solfa/internal/protocol"
)

// fakeConn records every call a Session makes.
type fakeConn struct {
	mu         sync.Mutex
	calls      []string
	candidates []string
	remote     *webrtc.SessionDescription
	local      *webrtc.SessionDescription
	channel    *fakeChannel
	closed     int

	failRemote bool
}

func (f *fakeConn) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeConn) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	f.record("create-offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeConn) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.record("create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeConn) SetLocalDescription(d webrtc.SessionDescription) error {
	f.record("set-local")
	f.local = &d
	return nil
}

func (f *fakeConn) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.record("set-remote")
	if f.failRemote {
		return errors.New("bad sdp")
	}
	f.remote = &d
	return nil
}

func (f *fakeConn) LocalDescription() *webrtc.SessionDescription { return f.local }

func (f *fakeConn) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.record("add-candidate")
	if f.remote == nil {
		return errors.New("remote description not set")
	}
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

func (f *fakeConn) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.record("add-track")
	return nil, nil
}

func (f *fakeConn) CreateDataChannel(label string, _ *webrtc.DataChannelInit) (Channel, error) {
	f.record("create-channel")
	f.channel = &fakeChannel{label: label, state: webrtc.DataChannelStateConnecting}
	return f.channel, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

type fakeChannel struct {
	label  string
	state  webrtc.DataChannelState
	sent   []string
	closed int
}

func (c *fakeChannel) Label() string                       { return c.label }
func (c *fakeChannel) ReadyState() webrtc.DataChannelState { return c.state }
func (c *fakeChannel) SendText(s string) error             { c.sent = append(c.sent, s); return nil }
func (c *fakeChannel) Close() error                        { c.closed++; c.state = webrtc.DataChannelStateClosed; return nil }

type sent struct {
	to, id string
	sig    protocol.Signal
}

type recorder struct {
	msgs []sent
}

func (r *recorder) Signal(to, id string, sig protocol.Signal) error {
	r.msgs = append(r.msgs, sent{to, id, sig})
	return nil
}

func (r *recorder) types() []string {
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.sig.Type
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, role Role) (*Session, *fakeConn, *recorder) {
	t.Helper()
	conn := &fakeConn{}
	rec := &recorder{}
	s := New(Options{
		ID:        "s1",
		Peer:      "remote",
		Role:      role,
		Conn:      conn,
		Signal:    rec,
		Logger:    quietLogger(),
		ExitDelay: -1,
	})
	return s, conn, rec
}

func candidate(n string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: "candidate:" + n}
}

func TestInitiatorOffer(t *testing.T) {
	s, conn, rec := newSession(t, RoleInitiator)

	if err := s.Offer(); !errors.Is(err, ErrNoLocalStream) {
		t.Fatalf("offer before local stream = %v", err)
	}
	if s.State() != StatePendingLocalStream {
		t.Fatalf("state = %v", s.State())
	}

	if err := s.AttachLocal(nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := s.Offer(); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if s.State() != StateNegotiating {
		t.Fatalf("state = %v", s.State())
	}
	if s.DataChannel == nil || s.DataChannel.Label() != TelemetryLabel {
		t.Fatalf("initiator did not create the telemetry channel")
	}
	if got := strings.Join(conn.calls, ","); got != "create-channel,create-offer,set-local" {
		t.Fatalf("calls = %s", got)
	}
	if len(rec.msgs) != 1 || rec.msgs[0].to != "remote" || rec.msgs[0].id != "s1" ||
		rec.msgs[0].sig.Type != protocol.SignalOffer || rec.msgs[0].sig.SDP != "offer-sdp" {
		t.Fatalf("sent = %+v", rec.msgs)
	}
}

func TestResponderCannotOffer(t *testing.T) {
	s, _, _ := newSession(t, RoleResponder)
	s.AttachLocal(nil)
	var serr *SessionError
	if err := s.Offer(); !errors.As(err, &serr) || !errors.Is(err, ErrWrongRole) || serr.ID != "s1" {
		t.Fatalf("Offer as responder = %v", err)
	}
}

func TestCandidatesQueuedUntilRemoteDescription(t *testing.T) {
	s, conn, rec := newSession(t, RoleResponder)
	s.AttachLocal(nil)

	for _, n := range []string{"1", "2", "3"} {
		if err := s.AddCandidate(candidate(n)); err != nil {
			t.Fatalf("queue candidate %s: %v", n, err)
		}
	}
	if s.QueuedCandidates() != 3 || len(conn.calls) != 0 {
		t.Fatalf("candidates applied before remote description: %v", conn.calls)
	}

	if err := s.Accept("remote-offer"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := strings.Join(conn.candidates, ","); got != "candidate:1,candidate:2,candidate:3" {
		t.Fatalf("applied = %s", got)
	}
	want := "set-remote,add-candidate,add-candidate,add-candidate,create-answer,set-local"
	if got := strings.Join(conn.calls, ","); got != want {
		t.Fatalf("calls = %s", got)
	}
	if s.QueuedCandidates() != 0 {
		t.Fatalf("queue not drained")
	}

	if err := s.AddCandidate(candidate("4")); err != nil {
		t.Fatalf("late candidate: %v", err)
	}
	if conn.candidates[len(conn.candidates)-1] != "candidate:4" {
		t.Fatalf("late candidate not applied directly")
	}
	if got := rec.types(); len(got) != 1 || got[0] != protocol.SignalAnswer {
		t.Fatalf("sent = %v", got)
	}
}

func TestInitiatorCompleteFlushesQueue(t *testing.T) {
	s, conn, _ := newSession(t, RoleInitiator)
	s.AttachLocal(nil)
	s.Offer()
	s.AddCandidate(candidate("a"))
	s.AddCandidate(candidate("b"))

	if err := s.Complete("answer"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if conn.remote == nil || conn.remote.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("remote = %+v", conn.remote)
	}
	if got := strings.Join(conn.candidates, ","); got != "candidate:a,candidate:b" {
		t.Fatalf("applied = %s", got)
	}
	if err := s.Complete("answer"); !errors.Is(err, ErrWrongState) {
		t.Fatalf("second Complete = %v", err)
	}
}

func TestFailedStepClosesSession(t *testing.T) {
	s, conn, rec := newSession(t, RoleResponder)
	conn.failRemote = true
	s.AttachLocal(nil)

	err := s.Accept("garbage")
	var serr *SessionError
	if !errors.As(err, &serr) || serr.Op != "set remote description" {
		t.Fatalf("Accept = %v", err)
	}
	if s.State() != StateClosed || conn.closed != 1 {
		t.Fatalf("state = %v, closed = %d", s.State(), conn.closed)
	}
	if got := rec.types(); len(got) != 1 || got[0] != protocol.SignalBye {
		t.Fatalf("sent = %v", got)
	}
}

func TestTeardownIdempotent(t *testing.T) {
	var removedFromMap, tapsStopped int
	conn := &fakeConn{}
	rec := &recorder{}
	s := New(Options{
		ID:         "s9",
		Peer:       "remote",
		Role:       RoleInitiator,
		Conn:       conn,
		Signal:     rec,
		Logger:     quietLogger(),
		ExitDelay:  -1,
		OnTeardown: func(*Session) { removedFromMap++ },
	})
	s.AttachLocal(nil)
	s.Offer()
	a := avatar.NewConsole("remote", nil, quietLogger())
	s.AttachAvatar(a)
	s.OnClose(func() {
		if removedFromMap != 1 {
			t.Errorf("tap stopped before session left the map")
		}
		tapsStopped++
	})

	if !s.Teardown(true) {
		t.Fatalf("first teardown reported no-op")
	}
	if s.Teardown(true) || s.Teardown(false) {
		t.Fatalf("repeated teardown did work")
	}

	if removedFromMap != 1 || tapsStopped != 1 || conn.closed != 1 || conn.channel.closed != 1 {
		t.Fatalf("map=%d taps=%d conn=%d channel=%d", removedFromMap, tapsStopped, conn.closed, conn.channel.closed)
	}
	if !a.Snapshot().Removed {
		t.Fatalf("avatar not removed")
	}
	if got := rec.types(); len(got) != 2 || got[1] != protocol.SignalBye {
		t.Fatalf("sent = %v", got)
	}
	if err := s.AddCandidate(candidate("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("AddCandidate after close = %v", err)
	}
}

func TestInboundByeDoesNotEcho(t *testing.T) {
	s, _, rec := newSession(t, RoleResponder)
	s.AttachLocal(nil)
	s.Teardown(false)
	if len(rec.msgs) != 0 {
		t.Fatalf("bye echoed: %v", rec.types())
	}
}

func TestConnectionStates(t *testing.T) {
	s, conn, _ := newSession(t, RoleResponder)
	s.AttachLocal(nil)

	s.HandleConnectionState(webrtc.PeerConnectionStateConnected)
	if s.State() != StateConnected {
		t.Fatalf("state = %v", s.State())
	}
	s.HandleConnectionState(webrtc.PeerConnectionStateDisconnected)
	if s.State() != StateDisconnected {
		t.Fatalf("state = %v", s.State())
	}
	s.HandleConnectionState(webrtc.PeerConnectionStateFailed)
	if s.State() != StateClosed || conn.closed != 1 {
		t.Fatalf("failed transport left state %v", s.State())
	}
	s.HandleConnectionState(webrtc.PeerConnectionStateConnected)
	if s.State() != StateClosed {
		t.Fatalf("closed session resurrected")
	}
}

func TestCandidateSignalRoundTrip(t *testing.T) {
	mid, line := "0", uint16(1)
	init := webrtc.ICECandidateInit{Candidate: "candidate:x", SDPMid: &mid, SDPMLineIndex: &line}
	got := CandidateInit(CandidateSignal(init))
	if got.Candidate != init.Candidate || *got.SDPMid != mid || *got.SDPMLineIndex != line {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestConfiguration(t *testing.T) {
	cfg := Configuration(APIOptions{
		STUNServers: []string{"stun:stun.l.google.com:19302"},
		TURNServers: []string{"turn:turn.example:3478"},
		TURNUser:    "u",
		TURNPass:    "p",
		ForceRelay:  true,
	})
	if len(cfg.ICEServers) != 2 || cfg.ICETransportPolicy != webrtc.ICETransportPolicyRelay {
		t.Fatalf("cfg = %+v", cfg)
	}

	cfg = Configuration(APIOptions{ForceRelay: true})
	if cfg.ICETransportPolicy != webrtc.ICETransportPolicyAll {
		t.Fatalf("relay forced without a TURN server")
	}
}

func TestTunnelName(t *testing.T) {
	for name, want := range map[string]bool{"wg0": true, "tun0": true, "eth0": false, "en0": false} {
		if got := tunnelName(name); got != want {
			t.Fatalf("tunnelName(%q) = %v", name, got)
		}
	}
}
