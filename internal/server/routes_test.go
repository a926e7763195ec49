package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/solfa/internal/protocol"
	"github.com/BioHazard786/solfa/internal/relay"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := relay.NewHub(opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, opts))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})
	return srv
}

type wireClient struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
}

func dial(t *testing.T, srv *httptest.Server, subprotocol string) *wireClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	if subprotocol != "" {
		d.Subprotocols = []string{subprotocol}
	}
	conn, resp, err := d.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return &wireClient{t: t, conn: conn, codec: protocol.CodecFor(conn.Subprotocol())}
}

func (c *wireClient) send(msg *protocol.Message) {
	c.t.Helper()
	data, err := c.codec.Marshal(msg)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wireClient) expect(typ string) *protocol.Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read while waiting for %q: %v", typ, err)
	}
	msg := new(protocol.Message)
	if err := c.codec.Unmarshal(data, msg); err != nil {
		c.t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != typ {
		c.t.Fatalf("got %q (%+v), want %q", msg.Type, msg, typ)
	}
	return msg
}

func TestRoomJoinScenarioOverWebsocket(t *testing.T) {
	srv := newTestServer(t, Options{})
	a := dial(t, srv, "")
	b := dial(t, srv, protocol.SubprotocolMsgpack)

	if b.conn.Subprotocol() != protocol.SubprotocolMsgpack {
		t.Fatalf("negotiated %q", b.conn.Subprotocol())
	}

	a.send(&protocol.Message{Type: protocol.TypeCreateOrJoin, Room: "do-re-mi", From: "alice"})
	if j := a.expect(protocol.TypeJoined); j.Room != "do-re-mi" || j.From != "alice" {
		t.Fatalf("joined = %+v", j)
	}
	if r := a.expect(protocol.TypeReady); r.Count != 0 {
		t.Fatalf("ready = %+v", r)
	}

	b.send(&protocol.Message{Type: protocol.TypeCreateOrJoin, Room: "Do Re Mi", From: "bob"})
	if j := b.expect(protocol.TypeJoined); j.Room != "do-re-mi" {
		t.Fatalf("normalized room = %q", j.Room)
	}
	ready := b.expect(protocol.TypeReady)
	if ready.Count != 1 || ready.Members[0] != "alice" {
		t.Fatalf("ready = %+v", ready)
	}
	if n := a.expect(protocol.TypeNewArrival); n.From != "bob" {
		t.Fatalf("arrival = %+v", n)
	}

	// B offers, A answers; the relay routes each to the addressee and
	// crosses codecs transparently.
	b.send(&protocol.Message{
		Type:   protocol.TypeMessage,
		To:     "alice",
		ID:     "k3x9",
		Signal: &protocol.Signal{Type: protocol.SignalOffer, SDP: "v=0 offer"},
	})
	offer := a.expect(protocol.TypeMessage)
	if offer.From != "bob" || offer.ID != "k3x9" || offer.Signal.Type != protocol.SignalOffer {
		t.Fatalf("offer = %+v", offer)
	}

	mid, line := "0", uint16(0)
	a.send(&protocol.Message{
		Type:   protocol.TypeMessage,
		To:     offer.From,
		ID:     offer.ID,
		Signal: &protocol.Signal{Type: protocol.SignalCandidate, Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &line},
	})
	a.send(&protocol.Message{
		Type:   protocol.TypeMessage,
		To:     offer.From,
		ID:     offer.ID,
		Signal: &protocol.Signal{Type: protocol.SignalAnswer, SDP: "v=0 answer"},
	})
	cand := b.expect(protocol.TypeMessage)
	if cand.Signal.Type != protocol.SignalCandidate || cand.Signal.SDPMid == nil || *cand.Signal.SDPMid != "0" {
		t.Fatalf("candidate = %+v", cand.Signal)
	}
	if ans := b.expect(protocol.TypeMessage); ans.Signal.Type != protocol.SignalAnswer || ans.ID != "k3x9" {
		t.Fatalf("answer = %+v", ans)
	}

	b.conn.Close()
	bye := a.expect(protocol.TypeMessage)
	if bye.From != "bob" || bye.Signal.Type != protocol.SignalBye {
		t.Fatalf("bye = %+v", bye)
	}
}

func TestUndecodableFrameIsReported(t *testing.T) {
	srv := newTestServer(t, Options{})
	a := dial(t, srv, "")
	if err := a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if e := a.expect(protocol.TypeError); e.Code != protocol.CodeBadMessage {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestOriginCheck(t *testing.T) {
	srv := newTestServer(t, Options{AllowedOrigins: []string{"https://solfa.example"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	h := http.Header{}
	h.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, h)
	if err == nil {
		t.Fatalf("dial from foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp = %v", resp)
	}

	h.Set("Origin", "https://solfa.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, h)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, Options{})
	a := dial(t, srv, "")
	a.send(&protocol.Message{Type: protocol.TypeCreateOrJoin, Room: "si-la-sol"})
	a.expect(protocol.TypeJoined)
	a.expect(protocol.TypeReady)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	for _, want := range []string{
		"# TYPE solfa_relay_events_total counter",
		`solfa_relay_events_total{event="joins"} 1`,
		`solfa_relay_events_total{event="connections"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
