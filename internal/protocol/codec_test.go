package protocol

import (
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestCodecFor(t *testing.T) {
	cases := map[string]string{
		"":                 SubprotocolJSON,
		SubprotocolJSON:    SubprotocolJSON,
		SubprotocolMsgpack: SubprotocolMsgpack,
		"chat":             SubprotocolJSON,
	}
	for in, want := range cases {
		if got := CodecFor(in).Subprotocol(); got != want {
			t.Errorf("CodecFor(%q) = %q, want %q", in, got, want)
		}
	}
	if CodecFor(SubprotocolMsgpack).FrameType() != websocket.BinaryMessage {
		t.Fatalf("msgpack codec must use binary frames")
	}
}

func TestParseCodec(t *testing.T) {
	if _, err := ParseCodec("xml"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
	c, err := ParseCodec("msgpack")
	if err != nil {
		t.Fatalf("ParseCodec: %v", err)
	}
	if c.Subprotocol() != SubprotocolMsgpack {
		t.Fatalf("got %q", c.Subprotocol())
	}
}

func TestJSONWireNames(t *testing.T) {
	mid := "0"
	line := uint16(0)
	msg := &Message{
		Type: TypeMessage,
		To:   "peer-b",
		ID:   "k3x9",
		Signal: &Signal{
			Type:          SignalCandidate,
			Candidate:     "candidate:1 1 udp 1 10.0.0.1 5000 typ host",
			SDPMid:        &mid,
			SDPMLineIndex: &line,
		},
	}
	data, err := JSONCodec{}.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"type":"message"`, `"to":"peer-b"`, `"label":0`, `"id":"0"`, `"type":"candidate"`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"members"`) || strings.Contains(s, `"count"`) {
		t.Errorf("empty fields must be omitted: %s", s)
	}
}

func TestCodecsAgree(t *testing.T) {
	mid := "audio"
	line := uint16(1)
	in := &Message{
		Type:    TypeReady,
		Count:   2,
		Members: []string{"a", "b"},
		Signal:  &Signal{Type: SignalOffer, SDP: "v=0", SDPMid: &mid, SDPMLineIndex: &line},
	}
	for _, c := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		data, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s marshal: %v", c.Subprotocol(), err)
		}
		var out Message
		if err := c.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", c.Subprotocol(), err)
		}
		if out.Type != in.Type || out.Count != 2 || len(out.Members) != 2 || out.Members[1] != "b" {
			t.Fatalf("%s: got %+v", c.Subprotocol(), out)
		}
		if out.Signal == nil || out.Signal.SDP != "v=0" || *out.Signal.SDPMid != "audio" || *out.Signal.SDPMLineIndex != 1 {
			t.Fatalf("%s: signal %+v", c.Subprotocol(), out.Signal)
		}
	}
}
