// Package mesh runs the client side of a room: it joins through the relay,
// negotiates one peer session with every other member and routes each
// inbound signal to the session it belongs to.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/solfa/internal/avatar"
	"github.com/BioHazard786/solfa/internal/peer"
	"github.com/BioHazard786/solfa/internal/protocol"
	"github.com/BioHazard786/solfa/internal/signaling"
	"github.com/BioHazard786/solfa/internal/telemetry"
)

var (
	ErrCaptureDenied = errors.New("local audio capture denied")
	ErrIDUnavailable = errors.New("no member id available")
	ErrRelayClosed   = errors.New("relay connection closed")
	ErrJoinRejected  = errors.New("join rejected by relay")
)

// Defaults for Options.
const (
	DefaultJoinAttempts = 5
	DefaultJoinBackoff  = 100 * time.Millisecond
	DefaultMaxBackoff   = 2 * time.Second
)

// Limits on candidates held for sessions whose offer has not arrived.
const (
	maxEarlyCandidates = 32
	maxEarlySessions   = 16
)

// Relay sends messages to the signaling relay.
type Relay interface {
	Send(msg *protocol.Message) error
}

// Transport creates peer connections.
type Transport interface {
	NewPeerConnection() (*webrtc.PeerConnection, error)
}

// Options configures a Coordinator.
type Options struct {
	Room      string
	Relay     Relay
	Events    <-chan signaling.Event
	Transport Transport

	// LocalTrack is the captured audio shared by every session.
	LocalTrack webrtc.TrackLocal

	Avatars avatar.Factory

	// Observer is called on the coordinator goroutine after every change.
	Observer func(Status)

	Logger *slog.Logger

	JoinAttempts int
	JoinBackoff  time.Duration
	MaxBackoff   time.Duration

	TelemetryInterval time.Duration
	ExitDelay         time.Duration

	// NewID generates member and session ids.
	NewID func() string
}

// Coordinator owns the id->session map and the relay connection of one
// client. All state is touched only by the Run goroutine; transport
// callbacks are posted back onto it.
type Coordinator struct {
	opts   Options
	logger *slog.Logger

	self     string
	proposed string
	room     string
	joined   bool
	attempts int

	sessions map[string]*peer.Session
	senders  map[string]*telemetry.Sender
	speaking map[string]bool
	power    map[string]float64
	history  []Record

	// early holds candidates that overtook their offer, keyed by
	// earlyKey(member, session).
	early map[string][]webrtc.ICECandidateInit

	pose telemetry.Pose

	ctx   context.Context
	posts chan func()
	done  chan struct{}
}

func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.JoinAttempts <= 0 {
		opts.JoinAttempts = DefaultJoinAttempts
	}
	if opts.JoinBackoff <= 0 {
		opts.JoinBackoff = DefaultJoinBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.NewID == nil {
		opts.NewID = NewID
	}
	if opts.Avatars == nil {
		opts.Avatars = &avatar.ConsoleFactory{Logger: opts.Logger}
	}
	return &Coordinator{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*peer.Session),
		senders:  make(map[string]*telemetry.Sender),
		speaking: make(map[string]bool),
		power:    make(map[string]float64),
		early:    make(map[string][]webrtc.ICECandidateInit),
		posts:    make(chan func(), 64),
		done:     make(chan struct{}),
	}
}

// Run joins the room and processes events until ctx is cancelled, which
// leaves the room cleanly and returns nil, or until a fatal error.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	defer c.leave()

	c.proposed = c.opts.NewID()
	if err := c.requestJoin(); err != nil {
		return err
	}

	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case fn := <-c.posts:
			fn()

		case <-retry:
			retry = nil
			c.proposed = c.opts.NewID()
			if err := c.requestJoin(); err != nil {
				return err
			}

		case ev, ok := <-c.opts.Events:
			if !ok {
				return ErrRelayClosed
			}
			wait, err := c.handle(ev)
			if err != nil {
				return err
			}
			if wait > 0 {
				retry = time.After(wait)
			}
		}
	}
}

func (c *Coordinator) requestJoin() error {
	c.logger.Debug("joining room", "room", c.opts.Room, "member", c.proposed, "attempt", c.attempts+1)
	err := c.opts.Relay.Send(&protocol.Message{
		Type: protocol.TypeCreateOrJoin,
		Room: c.opts.Room,
		From: c.proposed,
	})
	if err != nil {
		return fmt.Errorf("join %s: %w", c.opts.Room, err)
	}
	return nil
}

// handle applies one relay event. A positive duration schedules a join
// retry.
func (c *Coordinator) handle(ev signaling.Event) (time.Duration, error) {
	switch ev := ev.(type) {
	case signaling.Joined:
		c.self, c.room, c.joined = ev.Self, ev.Room, true
		c.logger.Info("joined room", "room", ev.Room, "member", ev.Self)
		c.notify()

	case signaling.Ready:
		c.logger.Debug("room ready", "room", ev.Room, "members", ev.Count)
		for _, member := range ev.Members {
			c.initiate(member)
		}

	case signaling.Arrival:
		c.logger.Info("peer arrived", "member", ev.Member)

	case signaling.Signal:
		c.route(ev)

	case signaling.Failure:
		return c.failure(ev)
	}
	return 0, nil
}

func (c *Coordinator) failure(ev signaling.Failure) (time.Duration, error) {
	switch ev.Code {
	case protocol.CodeIDUnavailable:
		if c.joined {
			return 0, nil
		}
		c.attempts++
		if c.attempts >= c.opts.JoinAttempts {
			return 0, fmt.Errorf("%w after %d attempts", ErrIDUnavailable, c.attempts)
		}
		wait := backoff(c.opts.JoinBackoff, c.opts.MaxBackoff, c.attempts)
		c.logger.Warn("member id taken, retrying", "member", c.proposed, "in", wait)
		return wait, nil

	case protocol.CodeInvalidRoom:
		return 0, fmt.Errorf("%w: %s", ErrJoinRejected, ev.Message)

	default:
		c.logger.Warn("relay error", "code", ev.Code, "err", ev.Message)
		return 0, nil
	}
}

// backoff doubles base per attempt, capped at limit.
func backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// route hands a signal to its session.
func (c *Coordinator) route(ev signaling.Signal) {
	sig := ev.Signal
	switch sig.Type {
	case protocol.SignalOffer:
		c.onOffer(ev)

	case protocol.SignalAnswer:
		s, ok := c.lookup(ev)
		if !ok {
			return
		}
		if err := s.Complete(sig.SDP); err != nil {
			c.logger.Warn("apply answer", "err", err)
		}

	case protocol.SignalCandidate:
		if _, ok := c.sessions[ev.ID]; !ok && ev.ID != "" {
			c.holdCandidate(ev)
			return
		}
		s, ok := c.lookup(ev)
		if !ok {
			return
		}
		s.AddCandidate(peer.CandidateInit(sig))

	case protocol.SignalBye:
		if ev.ID != "" {
			delete(c.early, earlyKey(ev.From, ev.ID))
			if s, ok := c.lookup(ev); ok {
				s.Teardown(false)
			}
			return
		}
		c.dropEarly(ev.From)
		for _, s := range c.sessionsWith(ev.From) {
			s.Teardown(false)
		}

	default:
		c.logger.Debug("dropping signal", "from", ev.From, "session", ev.ID,
			"err", fmt.Errorf("%w %q", peer.ErrUnexpectedSignal, sig.Type))
	}
}

func earlyKey(member, id string) string {
	return member + "\x00" + id
}

// holdCandidate keeps a candidate for a session the member has not offered
// yet. Both the number of sessions and candidates per session are bounded.
func (c *Coordinator) holdCandidate(ev signaling.Signal) {
	key := earlyKey(ev.From, ev.ID)
	held, ok := c.early[key]
	switch {
	case !ok && len(c.early) >= maxEarlySessions:
		c.logger.Debug("too many early sessions, dropping candidate", "session", ev.ID, "from", ev.From)
		return
	case len(held) >= maxEarlyCandidates:
		c.logger.Debug("early candidate limit reached", "session", ev.ID, "from", ev.From)
		return
	}
	c.early[key] = append(held, peer.CandidateInit(ev.Signal))
	c.logger.Debug("holding candidate until offer", "session", ev.ID, "from", ev.From, "held", len(held)+1)
}

// dropEarly discards every held candidate from a member.
func (c *Coordinator) dropEarly(member string) {
	prefix := member + "\x00"
	for key := range c.early {
		if strings.HasPrefix(key, prefix) {
			delete(c.early, key)
		}
	}
}

func (c *Coordinator) lookup(ev signaling.Signal) (*peer.Session, bool) {
	s, ok := c.sessions[ev.ID]
	if !ok || s.Peer != ev.From {
		c.logger.Debug("signal for unknown session", "session", ev.ID, "from", ev.From, "type", ev.Signal.Type)
		return nil, false
	}
	return s, true
}

func (c *Coordinator) onOffer(ev signaling.Signal) {
	if ev.ID == "" {
		c.logger.Debug("offer without session id", "from", ev.From)
		return
	}
	if _, ok := c.sessions[ev.ID]; ok {
		c.logger.Debug("duplicate offer", "session", ev.ID, "from", ev.From)
		return
	}

	for _, s := range c.sessionsWith(ev.From) {
		if s.Role == peer.RoleInitiator && !s.RemoteDescriptionSet() {
			// Both sides offered. The lower session id stays initiator.
			if s.ID < ev.ID {
				c.logger.Debug("glare: keeping our offer", "ours", s.ID, "theirs", ev.ID)
				return
			}
			c.logger.Debug("glare: yielding to their offer", "ours", s.ID, "theirs", ev.ID)
			s.Teardown(false)
			continue
		}
		// A fresh offer from a peer we already have means it started over.
		c.logger.Info("replacing session", "session", s.ID, "member", ev.From)
		s.Teardown(false)
	}

	s, err := c.newSession(ev.ID, ev.From, peer.RoleResponder)
	if err != nil {
		c.logger.Error("create session", "member", ev.From, "err", err)
		return
	}
	key := earlyKey(ev.From, ev.ID)
	for _, cand := range c.early[key] {
		// Queued by the session until Accept sets the remote description.
		if err := s.AddCandidate(cand); err != nil {
			c.logger.Debug("held candidate", "err", err)
		}
	}
	delete(c.early, key)
	if err := s.Accept(ev.Signal.SDP); err != nil {
		c.logger.Warn("accept offer", "err", err)
	}
}

func (c *Coordinator) initiate(member string) {
	if member == "" || member == c.self {
		return
	}
	s, err := c.newSession(c.opts.NewID(), member, peer.RoleInitiator)
	if err != nil {
		c.logger.Error("create session", "member", member, "err", err)
		return
	}
	if err := s.Offer(); err != nil {
		c.logger.Warn("offer", "err", err)
		return
	}
	if dc, ok := s.DataChannel.(*webrtc.DataChannel); ok {
		c.wireChannel(s, dc)
	}
}

// sessionsWith lists the live sessions with a member, ordered by id.
func (c *Coordinator) sessionsWith(member string) []*peer.Session {
	var out []*peer.Session
	for _, s := range c.sessions {
		if s.Peer == member {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Signal sends one signal through the relay. Sessions use it.
func (c *Coordinator) Signal(to, id string, sig protocol.Signal) error {
	return c.opts.Relay.Send(&protocol.Message{
		Type:   protocol.TypeMessage,
		To:     to,
		ID:     id,
		Signal: &sig,
	})
}

// forget removes a session during its teardown.
func (c *Coordinator) forget(s *peer.Session) {
	if c.sessions[s.ID] == s {
		delete(c.sessions, s.ID)
	}
	delete(c.senders, s.ID)
	delete(c.speaking, s.ID)
	delete(c.power, s.ID)
	c.closeRecord(s)
	c.logger.Info("session closed", "session", s.ID, "member", s.Peer)
	c.notify()
}

// leave tears every session down, with bye, and leaves the room.
func (c *Coordinator) leave() {
	clear(c.early)
	for _, s := range c.sortedSessions() {
		s.Teardown(true)
	}
	if c.joined {
		if err := c.opts.Relay.Send(&protocol.Message{Type: protocol.TypeLeaveRoom}); err != nil {
			c.logger.Debug("leaveroom not sent", "err", err)
		}
		c.joined = false
	}
}

func (c *Coordinator) sortedSessions() []*peer.Session {
	out := make([]*peer.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// post runs fn on the coordinator goroutine. It is dropped once Run has
// returned.
func (c *Coordinator) post(fn func()) {
	select {
	case c.posts <- fn:
	case <-c.done:
	}
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}
