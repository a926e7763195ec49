package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// DefaultInterval caps the frame rate at about 60 Hz.
const DefaultInterval = 16 * time.Millisecond

// Channel is the data channel a Sender writes to.
type Channel interface {
	ReadyState() webrtc.DataChannelState
	SendText(s string) error
}

// SenderOptions configures a Sender.
type SenderOptions struct {
	Interval time.Duration

	// OnClosed runs once if the channel is found closing or closed at send
	// time. The session uses it to tear itself down.
	OnClosed func()

	Logger *slog.Logger
}

// Sender throttles telemetry: at most one frame per interval, carrying the
// latest pose and every event queued since the last frame.
type Sender struct {
	ch       Channel
	interval time.Duration
	onClosed func()
	logger   *slog.Logger

	mu       sync.Mutex
	pose     Pose
	sentPose Pose
	sentOnce bool
	events   []string
	stopped  bool

	stop chan struct{}
	once sync.Once
}

func NewSender(ch Channel, opts SenderOptions) *Sender {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sender{
		ch:       ch,
		interval: opts.Interval,
		onClosed: opts.OnClosed,
		logger:   opts.Logger,
		stop:     make(chan struct{}),
	}
}

// Update replaces the pose for the next frame.
func (s *Sender) Update(p Pose) {
	s.mu.Lock()
	s.pose = p
	s.mu.Unlock()
}

// Emit queues an event for the next frame. Events are never dropped while
// the sender runs.
func (s *Sender) Emit(event string) {
	s.mu.Lock()
	if !s.stopped {
		s.events = append(s.events, event)
	}
	s.mu.Unlock()
}

// Start runs the send loop in its own goroutine until Stop.
func (s *Sender) Start() {
	go s.run()
}

func (s *Sender) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if !s.tick() {
				return
			}
		}
	}
}

// Stop ends the send loop immediately. Safe to call more than once.
func (s *Sender) Stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.events = nil
		s.mu.Unlock()
		close(s.stop)
	})
}

// tick sends at most one frame. It returns false once the sender should
// stop.
func (s *Sender) tick() bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	if s.sentOnce && s.pose == s.sentPose && len(s.events) == 0 {
		s.mu.Unlock()
		return true
	}

	switch s.ch.ReadyState() {
	case webrtc.DataChannelStateOpen:
	case webrtc.DataChannelStateClosing, webrtc.DataChannelStateClosed:
		s.mu.Unlock()
		s.logger.Debug("telemetry channel closed")
		s.Stop()
		if s.onClosed != nil {
			s.onClosed()
		}
		return false
	default:
		// Still connecting; events wait for the channel.
		s.mu.Unlock()
		return true
	}

	pose, events := s.pose, s.events
	s.events = nil
	s.mu.Unlock()

	if err := s.ch.SendText(Encode(pose, events)); err != nil {
		s.logger.Debug("telemetry send failed", "err", err)
		s.mu.Lock()
		if !s.stopped {
			s.events = append(events, s.events...)
		}
		s.mu.Unlock()
		return true
	}

	s.mu.Lock()
	s.sentPose, s.sentOnce = pose, true
	s.mu.Unlock()
	return true
}
