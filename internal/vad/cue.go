package vad

import (
	"sync"
	"time"
)

// TalkInterval is the cadence of the talk cue while a peer speaks.
const TalkInterval = 160 * time.Millisecond

// TalkCue repeats a "talk" dispatch while the peer is active.
type TalkCue struct {
	dispatch func(string)
	interval time.Duration

	mu     sync.Mutex
	stop   chan struct{}
	closed bool
}

// NewTalkCue dispatches through fn. A zero interval uses TalkInterval.
func NewTalkCue(fn func(string), interval time.Duration) *TalkCue {
	if interval <= 0 {
		interval = TalkInterval
	}
	return &TalkCue{dispatch: fn, interval: interval}
}

// Handle consumes detector events: Active starts the cue, Inactive stops it.
func (c *TalkCue) Handle(ev Event) {
	switch ev.Kind {
	case Active:
		c.start()
	case Inactive:
		c.Stop()
	}
}

func (c *TalkCue) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil || c.closed {
		return
	}
	stop := make(chan struct{})
	c.stop = stop

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		c.dispatch("talk")
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.dispatch("talk")
			}
		}
	}()
}

// Stop cancels the cue. Safe to call when not running.
func (c *TalkCue) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Close stops the cue for good. Events handled afterwards are ignored.
func (c *TalkCue) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
