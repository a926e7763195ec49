package signaling

import (
	"log/slog"

	"github.com/BioHazard786/solfa/internal/protocol"
)

// Event is a typed relay event. The concrete types are Joined, Ready,
// Arrival, Signal and Failure.
type Event interface {
	event()
}

// Joined acknowledges our own membership.
type Joined struct {
	Room string
	Self string
}

// Ready lists the members that were in the room before us.
type Ready struct {
	Room    string
	Count   int
	Members []string
}

// Arrival announces a member that joined after us.
type Arrival struct {
	Member string
}

// Signal carries an offer, answer, candidate or bye from another member.
// ID is empty for a room-wide bye.
type Signal struct {
	From   string
	ID     string
	Signal protocol.Signal
}

// Failure is an error reported by the relay.
type Failure struct {
	Code    string
	Message string
	Room    string
}

func (Joined) event()  {}
func (Ready) event()   {}
func (Arrival) event() {}
func (Signal) event()  {}
func (Failure) event() {}

// Handler routes incoming relay messages into typed events, preserving
// the relay's order.
type Handler struct {
	client interface {
		Incoming() <-chan *protocol.Message
	}
	logger *slog.Logger
	Events chan Event
}

// NewHandler creates a new message handler reading from client.
func NewHandler(client interface{ Incoming() <-chan *protocol.Message }, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		logger: logger,
		Events: make(chan Event, 64),
	}
}

// Start routes messages until the client's incoming channel closes, then
// closes Events.
func (h *Handler) Start() {
	defer close(h.Events)

	for msg := range h.client.Incoming() {
		if ev := Route(msg); ev != nil {
			h.Events <- ev
			continue
		}
		h.logger.Debug("ignoring relay message", "type", msg.Type)
	}
}

// Route converts one relay message into an event, or nil if the message
// carries nothing a client acts on.
func Route(msg *protocol.Message) Event {
	switch msg.Type {
	case protocol.TypeJoined:
		return Joined{Room: msg.Room, Self: msg.From}

	case protocol.TypeReady:
		return Ready{Room: msg.Room, Count: msg.Count, Members: msg.Members}

	case protocol.TypeNewArrival:
		return Arrival{Member: msg.From}

	case protocol.TypeMessage:
		if msg.Signal == nil {
			return nil
		}
		return Signal{From: msg.From, ID: msg.ID, Signal: *msg.Signal}

	case protocol.TypeError:
		return Failure{Code: msg.Code, Message: msg.Error, Room: msg.Room}
	}
	return nil
}
