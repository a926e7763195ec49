package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/solfa/internal/dns"
	"github.com/BioHazard786/solfa/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned by Send after the connection has gone away.
var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	conn      *websocket.Conn
	codec     protocol.Codec
	serverURL string
	logger    *slog.Logger

	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	done     chan struct{}
	once     sync.Once
}

// NewClient creates a new signaling client. The codec is offered to the
// relay as a subprotocol; the relay's choice wins.
func NewClient(serverURL string, codec protocol.Codec, logger *slog.Logger) *Client {
	if codec == nil {
		codec = protocol.JSONCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		logger:    logger,
		incoming:  make(chan *protocol.Message, 64),
		outgoing:  make(chan *protocol.Message, 64),
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the relay.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{c.codec.Subprotocol()},
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ip, err := dns.Lookup(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
		},
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.conn = conn
	c.codec = protocol.CodecFor(conn.Subprotocol())
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.logger.Debug("connected to relay", "url", u.String(), "codec", c.codec.Subprotocol())

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("relay connection lost", "err", err)
			}
			return
		}

		msg := new(protocol.Message)
		if err := c.codec.Unmarshal(data, msg); err != nil {
			c.logger.Debug("undecodable relay frame", "err", err)
			continue
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Marshal(message)
			if err != nil {
				c.logger.Error("encode relay message", "type", message.Type, "err", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes already queued messages so a final leaveroom is not lost.
func (c *Client) drain() {
	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Marshal(message)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Send queues a message for the relay.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel of messages from the relay. It is closed
// when the connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Done is closed once the connection is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
