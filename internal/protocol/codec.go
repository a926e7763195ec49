package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Websocket subprotocols understood by the relay.
const (
	SubprotocolJSON    = "solfa.json"
	SubprotocolMsgpack = "solfa.msgpack"
)

// Subprotocols lists the supported subprotocols in server preference order.
var Subprotocols = []string{SubprotocolJSON, SubprotocolMsgpack}

// Codec converts messages to and from websocket frames.
type Codec interface {
	Subprotocol() string
	FrameType() int
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte, msg *Message) error
}

// CodecFor returns the codec for a negotiated subprotocol. An empty or
// unknown subprotocol falls back to JSON.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// ParseCodec maps a configuration value ("json", "msgpack") to a codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type JSONCodec struct{}

func (JSONCodec) Subprotocol() string { return SubprotocolJSON }
func (JSONCodec) FrameType() int      { return websocket.TextMessage }

func (JSONCodec) Marshal(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg *Message) error {
	return json.Unmarshal(data, msg)
}

type MsgpackCodec struct{}

func (MsgpackCodec) Subprotocol() string { return SubprotocolMsgpack }
func (MsgpackCodec) FrameType() int      { return websocket.BinaryMessage }

func (MsgpackCodec) Marshal(msg *Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (MsgpackCodec) Unmarshal(data []byte, msg *Message) error {
	return msgpack.Unmarshal(data, msg)
}
