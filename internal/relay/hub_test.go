package relay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BioHazard786/solfa/internal/protocol"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func connect(h *Hub) *Client {
	c := NewClient(h, nil, nil, 16)
	h.Register <- c
	return c
}

func send(h *Hub, c *Client, msg *protocol.Message) {
	h.Inbound <- &Envelope{Client: c, Message: msg}
}

func expect(t *testing.T, c *Client, typ string) *protocol.Message {
	t.Helper()
	select {
	case m, ok := <-c.Send:
		if !ok {
			t.Fatalf("send channel of %q closed while waiting for %q", c.ID, typ)
		}
		if m.Type != typ {
			t.Fatalf("got %q (%+v), want %q", m.Type, m, typ)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", typ)
	}
	return nil
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case m := <-c.Send:
		t.Fatalf("unexpected message %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func join(t *testing.T, h *Hub, c *Client, token, id string) *protocol.Message {
	t.Helper()
	send(h, c, &protocol.Message{Type: protocol.TypeCreateOrJoin, Room: token, From: id})
	joined := expect(t, c, protocol.TypeJoined)
	return joined
}

func TestJoinScenario(t *testing.T) {
	h := startHub(t)
	a, b := connect(h), connect(h)

	joined := join(t, h, a, "do-re-mi", "alpha")
	if joined.Room != "do-re-mi" || joined.From != "alpha" {
		t.Fatalf("joined = %+v", joined)
	}
	if ready := expect(t, a, protocol.TypeReady); ready.Count != 0 || len(ready.Members) != 0 {
		t.Fatalf("first member ready = %+v", ready)
	}

	join(t, h, b, "do-re-mi", "beta")
	ready := expect(t, b, protocol.TypeReady)
	if ready.Count != 1 || len(ready.Members) != 1 || ready.Members[0] != "alpha" {
		t.Fatalf("second member ready = %+v", ready)
	}

	arrival := expect(t, a, protocol.TypeNewArrival)
	if arrival.From != "beta" {
		t.Fatalf("new arrival from %q", arrival.From)
	}
}

func TestJoinAssignsIDWhenNoneProposed(t *testing.T) {
	h := startHub(t)
	a := connect(h)
	joined := join(t, h, a, "la-la-la", "")
	if joined.From == "" {
		t.Fatalf("relay did not assign a member id")
	}
}

func TestJoinRejectsInvalidRoom(t *testing.T) {
	h := startHub(t)
	a := connect(h)
	send(h, a, &protocol.Message{Type: protocol.TypeCreateOrJoin, Room: "kitten-waffle"})
	if e := expect(t, a, protocol.TypeError); e.Code != protocol.CodeInvalidRoom {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestJoinRejectsTakenID(t *testing.T) {
	h := startHub(t)
	a, b := connect(h), connect(h)
	join(t, h, a, "do-re-mi", "same")
	expect(t, a, protocol.TypeReady)

	send(h, b, &protocol.Message{Type: protocol.TypeCreateOrJoin, Room: "fa-fa-fa", From: "same"})
	if e := expect(t, b, protocol.TypeError); e.Code != protocol.CodeIDUnavailable {
		t.Fatalf("code = %q", e.Code)
	}

	join(t, h, b, "fa-fa-fa", "other")
}

func TestRelayAddressedGoesToOneMember(t *testing.T) {
	h := startHub(t)
	a, b, c := connect(h), connect(h), connect(h)
	join(t, h, a, "mi-mi-mi", "a")
	expect(t, a, protocol.TypeReady)
	join(t, h, b, "mi-mi-mi", "b")
	expect(t, b, protocol.TypeReady)
	expect(t, a, protocol.TypeNewArrival)
	join(t, h, c, "mi-mi-mi", "c")
	expect(t, c, protocol.TypeReady)
	expect(t, a, protocol.TypeNewArrival)
	expect(t, b, protocol.TypeNewArrival)

	send(h, c, &protocol.Message{
		Type:   protocol.TypeMessage,
		To:     "a",
		ID:     "s1",
		Signal: &protocol.Signal{Type: protocol.SignalOffer, SDP: "v=0"},
	})
	got := expect(t, a, protocol.TypeMessage)
	if got.From != "c" || got.ID != "s1" || got.Signal.SDP != "v=0" {
		t.Fatalf("relayed = %+v", got)
	}
	expectNothing(t, b)
}

func TestRelayBroadcastSkipsSender(t *testing.T) {
	h := startHub(t)
	a, b, c := connect(h), connect(h), connect(h)
	for _, m := range []struct {
		c  *Client
		id string
	}{{a, "a"}, {b, "b"}, {c, "c"}} {
		join(t, h, m.c, "re-re-re", m.id)
	}

	send(h, a, &protocol.Message{Type: protocol.TypeMessage, Signal: &protocol.Signal{Type: protocol.SignalBye}})

	for _, rcv := range []*Client{b, c} {
		for {
			m := <-rcv.Send
			if m.Type == protocol.TypeMessage {
				if m.From != "a" {
					t.Fatalf("from = %q", m.From)
				}
				break
			}
		}
	}
	for {
		select {
		case m := <-a.Send:
			if m.Type == protocol.TypeMessage {
				t.Fatalf("sender received its own broadcast")
			}
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}
}

func TestRelayRequiresRoom(t *testing.T) {
	h := startHub(t)
	a := connect(h)
	send(h, a, &protocol.Message{Type: protocol.TypeMessage, To: "x", Signal: &protocol.Signal{Type: protocol.SignalAnswer}})
	if e := expect(t, a, protocol.TypeError); e.Code != protocol.CodeNotInRoom {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestUndecodableFrameGetsError(t *testing.T) {
	h := startHub(t)
	a := connect(h)
	h.Inbound <- &Envelope{Client: a}
	if e := expect(t, a, protocol.TypeError); e.Code != protocol.CodeBadMessage {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestLeaveAndDisconnectBroadcastBye(t *testing.T) {
	h := startHub(t)
	a, b := connect(h), connect(h)
	join(t, h, a, "sol-la-si", "a")
	expect(t, a, protocol.TypeReady)
	join(t, h, b, "sol-la-si", "b")
	expect(t, b, protocol.TypeReady)
	expect(t, a, protocol.TypeNewArrival)

	send(h, b, &protocol.Message{Type: protocol.TypeLeaveRoom})
	bye := expect(t, a, protocol.TypeMessage)
	if bye.From != "b" || bye.Signal == nil || bye.Signal.Type != protocol.SignalBye || bye.ID != "" {
		t.Fatalf("leave bye = %+v", bye)
	}

	join(t, h, b, "sol-la-si", "b")
	expect(t, b, protocol.TypeReady)
	expect(t, a, protocol.TypeNewArrival)

	h.Unregister <- b
	bye = expect(t, a, protocol.TypeMessage)
	if bye.From != "b" || bye.Signal.Type != protocol.SignalBye {
		t.Fatalf("disconnect bye = %+v", bye)
	}
	select {
	case _, ok := <-b.Send:
		if ok {
			t.Fatalf("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("send channel not closed after unregister")
	}

	// the id is free again
	c := connect(h)
	join(t, h, c, "sol-la-si", "b")
}

func TestSwitchingRoomsLeavesPreviousRoom(t *testing.T) {
	h := startHub(t)
	a, b := connect(h), connect(h)
	join(t, h, a, "do-do-do", "a")
	expect(t, a, protocol.TypeReady)
	join(t, h, b, "do-do-do", "b")
	expect(t, b, protocol.TypeReady)
	expect(t, a, protocol.TypeNewArrival)

	join(t, h, a, "re-re-re", "a")
	if ready := expect(t, a, protocol.TypeReady); ready.Count != 0 {
		t.Fatalf("new room ready = %+v", ready)
	}
	if bye := expect(t, b, protocol.TypeMessage); bye.Signal.Type != protocol.SignalBye || bye.From != "a" {
		t.Fatalf("old room did not see departure: %+v", bye)
	}
}

func TestSlowMemberIsDropped(t *testing.T) {
	h := startHub(t)
	slow := NewClient(h, nil, nil, 1)
	h.Register <- slow
	fast := connect(h)

	join(t, h, fast, "fa-fa-fa", "fast")
	expect(t, fast, protocol.TypeReady)

	// joined fills the queue; ready overflows it. Nothing is read from
	// slow until the hub has finished the join.
	send(h, slow, &protocol.Message{Type: protocol.TypeCreateOrJoin, Room: "fa-fa-fa", From: "slow"})

	deadline := time.Now().Add(2 * time.Second)
	for h.Metrics().Get(MetricDropped) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slow member was not dropped")
		}
		time.Sleep(time.Millisecond)
	}

	var got []string
	for m := range slow.Send {
		got = append(got, m.Type)
	}
	if len(got) != 1 || got[0] != protocol.TypeJoined {
		t.Fatalf("slow member received %v before being dropped", got)
	}
	// A dropped joiner is never announced.
	expectNothing(t, fast)
	if h.Metrics().Get(MetricDropped) == 0 {
		t.Fatalf("drop not counted")
	}
}
