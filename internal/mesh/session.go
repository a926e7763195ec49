package mesh

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/solfa/internal/media"
	"github.com/BioHazard786/solfa/internal/peer"
	"github.com/BioHazard786/solfa/internal/telemetry"
	"github.com/BioHazard786/solfa/internal/vad"
)

// newSession creates a session, registers it and wires the transport
// callbacks back onto the coordinator goroutine.
func (c *Coordinator) newSession(id, member string, role peer.Role) (*peer.Session, error) {
	pc, err := c.opts.Transport.NewPeerConnection()
	if err != nil {
		return nil, err
	}

	s := peer.New(peer.Options{
		ID:         id,
		Peer:       member,
		Role:       role,
		Conn:       peer.PionConn{PeerConnection: pc},
		Signal:     c,
		Logger:     c.logger,
		OnTeardown: c.forget,
		ExitDelay:  c.opts.ExitDelay,
	})
	c.sessions[id] = s
	c.openRecord(s)

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		c.post(func() {
			if err := s.SendCandidate(cand); err != nil {
				c.logger.Debug("send candidate", "session", id, "err", err)
			}
		})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.post(func() {
			s.HandleConnectionState(state)
			c.markState(s)
			c.notify()
		})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		c.post(func() {
			s.SetRemoteTrack(track)
			c.listen(s, track)
		})
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != peer.TelemetryLabel {
			return
		}
		// Handlers go on before returning so no early frame is missed.
		c.wireChannel(s, dc)
		c.post(func() { s.SetDataChannel(dc) })
	})

	if err := s.AttachLocal(c.opts.LocalTrack); err != nil {
		return nil, err
	}
	c.logger.Debug("session created", "session", id, "member", member, "role", role.String())
	c.notify()
	return s, nil
}

// wireChannel starts telemetry when the channel opens: the peer gets an
// avatar, our pose goes out through a throttled sender and their frames
// drive the avatar.
func (c *Coordinator) wireChannel(s *peer.Session, dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		c.post(func() {
			if s.State() == peer.StateClosed || s.Avatar != nil {
				return
			}
			s.AttachAvatar(c.opts.Avatars.Create(s.Peer))

			sender := telemetry.NewSender(dc, telemetry.SenderOptions{
				Interval: c.opts.TelemetryInterval,
				Logger:   c.logger,
				OnClosed: func() {
					c.post(func() { s.Teardown(true) })
				},
			})
			sender.Update(c.pose)
			sender.Start()
			c.senders[s.ID] = sender
			s.OnClose(sender.Stop)
			c.logger.Debug("telemetry open", "session", s.ID)
		})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		frame := string(msg.Data)
		c.post(func() {
			if s.Avatar == nil || s.State() == peer.StateClosed {
				return
			}
			if err := telemetry.Dispatch(frame, s.Avatar); err != nil {
				c.logger.Debug("bad telemetry frame", "session", s.ID, "err", err)
			}
		})
	})
}

// listen runs the voice activity detector on a remote track until the
// session closes.
func (c *Coordinator) listen(s *peer.Session, track *webrtc.TrackRemote) {
	analyser := vad.NewAnalyser(float64(track.Codec().ClockRate))
	cue := vad.NewTalkCue(func(name string) {
		c.post(func() {
			if s.Avatar != nil {
				s.Avatar.Dispatch(name)
			}
		})
	}, 0)
	detector := vad.NewDetector(analyser, func(ev vad.Event) {
		cue.Handle(ev)
		c.post(func() {
			if _, ok := c.sessions[s.ID]; !ok {
				return
			}
			switch ev.Kind {
			case vad.Active:
				c.speaking[s.ID] = true
				c.power[s.ID] = ev.Power
			case vad.Power:
				c.power[s.ID] = ev.Power
			case vad.Inactive:
				c.speaking[s.ID] = false
				delete(c.power, s.ID)
			}
			c.notify()
		})
	}, vad.Options{})

	ctx, cancel := context.WithCancel(c.ctx)
	go func() {
		if err := media.Tap(track, analyser.WritePCM16); err != nil {
			c.logger.Debug("remote audio ended", "session", s.ID, "err", err)
		}
	}()
	go detector.Run(ctx, 0)

	s.OnClose(func() {
		cancel()
		// A tick still in flight may report Active after cancel.
		cue.Close()
	})
}

// UpdatePose sets the local pose sent to every peer.
func (c *Coordinator) UpdatePose(p telemetry.Pose) {
	c.post(func() {
		c.pose = p
		for _, sender := range c.senders {
			sender.Update(p)
		}
	})
}

// Emit queues a telemetry event for every peer.
func (c *Coordinator) Emit(event string) {
	c.post(func() {
		for _, sender := range c.senders {
			sender.Emit(event)
		}
	})
}

// Status returns a snapshot of the room, taken on the coordinator
// goroutine.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	result := make(chan Status, 1)
	select {
	case c.posts <- func() { result <- c.status() }:
	case <-c.done:
		return Status{}, ErrRelayClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-result:
		return st, nil
	case <-c.done:
		return Status{}, ErrRelayClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// History lists every session this coordinator ran, in creation order.
// Call it after Run has returned.
func (c *Coordinator) History() []Record {
	<-c.done
	return append([]Record(nil), c.history...)
}

func (c *Coordinator) openRecord(s *peer.Session) {
	c.history = append(c.history, Record{
		ID:      s.ID,
		Peer:    s.Peer,
		Role:    s.Role,
		Started: time.Now(),
	})
}

func (c *Coordinator) markState(s *peer.Session) {
	if s.State() != peer.StateConnected {
		return
	}
	for i := len(c.history) - 1; i >= 0; i-- {
		if r := &c.history[i]; r.ID == s.ID && r.Connected.IsZero() {
			r.Connected = time.Now()
			return
		}
	}
}

func (c *Coordinator) closeRecord(s *peer.Session) {
	for i := len(c.history) - 1; i >= 0; i-- {
		if r := &c.history[i]; r.ID == s.ID && r.Ended.IsZero() {
			r.Ended = time.Now()
			return
		}
	}
}
