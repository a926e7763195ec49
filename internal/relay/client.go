package relay

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/solfa/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is enough for SDP offers with many candidates.
	DefaultMaxMessageSize = 64 * 1024

	// DefaultSendQueue is the per-member outbound queue length.
	DefaultSendQueue = 256
)

// Client is a member handle: one websocket connection to the relay.
type Client struct {
	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection. Nil in hub-only tests.
	Conn *websocket.Conn

	// Codec encodes frames for this connection, chosen by subprotocol.
	Codec protocol.Codec

	// ID is the member id, set on the first successful join.
	ID string

	// RoomID is the room the client is in, maintained by Rooms.
	RoomID string

	// Send is a buffered channel for all outbound messages. The hub closes
	// it when the client is removed, which stops WritePump.
	Send chan *protocol.Message

	// MaxMessageSize bounds inbound frames.
	MaxMessageSize int64
}

// NewClient creates a member handle for conn.
func NewClient(hub *Hub, conn *websocket.Conn, codec protocol.Codec, queue int) *Client {
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	if codec == nil {
		codec = protocol.JSONCodec{}
	}
	return &Client{
		Hub:            hub,
		Conn:           conn,
		Codec:          codec,
		Send:           make(chan *protocol.Message, queue),
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

func (c *Client) addr() string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("relay read failed", "addr", c.addr(), "err", err)
			}
			return
		}

		msg := new(protocol.Message)
		if err := c.Codec.Unmarshal(data, msg); err != nil {
			c.Hub.logger.Debug("undecodable frame", "addr", c.addr(), "err", err)
			msg = nil
		}

		if !c.Hub.submit(&Envelope{Client: c, Message: msg}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.Codec.Marshal(message)
			if err != nil {
				c.Hub.logger.Error("encode relay message", "type", message.Type, "err", err)
				continue
			}
			if err := c.Conn.WriteMessage(c.Codec.FrameType(), data); err != nil {
				c.Hub.logger.Debug("relay write failed", "addr", c.addr(), "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
