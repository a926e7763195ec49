package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/BioHazard786/solfa/internal/protocol"
	"github.com/BioHazard786/solfa/internal/relay"
)

// Options configures the HTTP surface of the relay.
type Options struct {
	// AllowedOrigins lists the origins allowed to open a websocket and to
	// make cross-origin requests. Empty or "*" allows all.
	AllowedOrigins []string

	// MaxMessageBytes bounds a single inbound frame.
	MaxMessageBytes int64

	// SendQueue is the per-member outbound queue length.
	SendQueue int

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) allowAll() bool {
	if len(o.AllowedOrigins) == 0 {
		return true
	}
	for _, origin := range o.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (o Options) originAllowed(origin string) bool {
	if origin == "" || o.allowAll() {
		return true
	}
	for _, allowed := range o.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// NewHandler wires the relay routes: the websocket endpoint, a health
// check and the counters.
func NewHandler(hub *relay.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler)
	mux.Handle("/metrics", MetricsHandler(hub.Metrics()))
	mux.HandleFunc("/ws", ServeWs(hub, opts))

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	if opts.allowAll() {
		c = cors.AllowAll()
	}
	return c.Handler(mux)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling relay is healthy."))
}

// ServeWs returns an http.HandlerFunc that handles websocket requests.
// The wire codec follows the negotiated subprotocol, JSON when none.
func ServeWs(hub *relay.Hub, opts Options) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 16 * 1024,
		Subprotocols:    protocol.Subprotocols,
		CheckOrigin: func(r *http.Request) bool {
			return opts.originAllowed(r.Header.Get("Origin"))
		},
	}
	logger := opts.logger()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "addr", r.RemoteAddr, "err", err)
			return
		}

		codec := protocol.CodecFor(conn.Subprotocol())
		client := relay.NewClient(hub, conn, codec, opts.SendQueue)
		if opts.MaxMessageBytes > 0 {
			client.MaxMessageSize = opts.MaxMessageBytes
		}

		select {
		case hub.Register <- client:
		case <-hub.Done():
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
