package relay

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/BioHazard786/solfa/internal/protocol"
	"github.com/BioHazard786/solfa/internal/room"
)

// Envelope is an inbound message together with the member that sent it.
// A nil Message means the frame could not be decoded.
type Envelope struct {
	Client  *Client
	Message *protocol.Message
}

// Hub is the central brain of the signaling relay.
// It manages room membership and forwards signaling between members.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound is a channel for messages read from clients.
	Inbound chan *Envelope

	rooms   *Rooms
	clients map[*Client]bool
	members map[string]*Client
	metrics *Metrics
	logger  *slog.Logger
	done    chan struct{}
}

// NewHub creates a new Hub instance. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Envelope),
		rooms:      NewRooms(),
		clients:    make(map[*Client]bool),
		members:    make(map[string]*Client),
		metrics:    NewMetrics(),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Metrics returns the hub's counters.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case client := <-h.Register:
			h.clients[client] = true
			h.metrics.Inc(MetricConnections)
			h.logger.Debug("client registered", "addr", client.addr())

		case client := <-h.Unregister:
			h.logger.Debug("client unregistered", "addr", client.addr(), "member", client.ID)
			h.remove(client)

		case env := <-h.Inbound:
			h.handle(env)
		}
	}
}

// submit hands an envelope to the hub. It returns false once the hub is gone.
func (h *Hub) submit(env *Envelope) bool {
	select {
	case h.Inbound <- env:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) handle(env *Envelope) {
	c := env.Client
	if !h.clients[c] {
		// Already removed, e.g. dropped as a slow consumer.
		return
	}

	msg := env.Message
	if msg == nil {
		h.metrics.Inc(MetricBadMessages)
		h.deliver(c, protocol.NewError(protocol.CodeBadMessage, "undecodable message"))
		return
	}

	switch msg.Type {
	case protocol.TypeCreateOrJoin:
		h.join(c, msg)

	case protocol.TypeMessage:
		h.relay(c, msg)

	case protocol.TypeLeaveRoom, protocol.TypeBye:
		h.leave(c)

	default:
		h.metrics.Inc(MetricBadMessages)
		h.logger.Debug("unknown message type", "type", msg.Type, "member", c.ID)
		h.deliver(c, protocol.NewError(protocol.CodeBadMessage, "unknown message type "+msg.Type))
	}
}

// join adds c to a room. The joiner is told about its membership and the
// existing members before anyone else learns about the arrival, so that it
// is ready to negotiate when the first offer comes in.
func (h *Hub) join(c *Client, msg *protocol.Message) {
	token := room.Normalize(msg.Room)
	if !room.Valid(token) {
		h.metrics.Inc(MetricRejectedJoins)
		h.deliver(c, &protocol.Message{
			Type:  protocol.TypeError,
			Room:  msg.Room,
			Code:  protocol.CodeInvalidRoom,
			Error: "room must be three notes, e.g. do-mi-sol",
		})
		return
	}

	id := msg.From
	if id == "" {
		id = c.ID
	}
	if id == "" {
		id = uuid.NewString()
	}
	if owner, ok := h.members[id]; ok && owner != c {
		h.metrics.Inc(MetricRejectedJoins)
		h.deliver(c, &protocol.Message{
			Type:  protocol.TypeError,
			Room:  token,
			From:  id,
			Code:  protocol.CodeIDUnavailable,
			Error: "member id already in use",
		})
		return
	}

	if c.RoomID != "" {
		h.leave(c)
	}
	if c.ID != "" && c.ID != id {
		delete(h.members, c.ID)
	}
	c.ID = id
	h.members[id] = c

	others := h.rooms.Join(token, c)
	h.metrics.Inc(MetricJoins)
	h.logger.Info("member joined", "room", token, "member", id, "members", len(others)+1)

	ids := make([]string, len(others))
	for i, o := range others {
		ids[i] = o.ID
	}

	h.deliver(c, &protocol.Message{Type: protocol.TypeJoined, Room: token, From: id})
	h.deliver(c, &protocol.Message{Type: protocol.TypeReady, Room: token, Count: len(others), Members: ids})
	if !h.clients[c] {
		return
	}

	arrival := &protocol.Message{Type: protocol.TypeNewArrival, Room: token, From: id}
	for _, o := range others {
		h.deliver(o, arrival)
	}
}

// relay forwards a signaling message from c. With an addressee it goes to
// that member only, otherwise to every other member of c's room.
func (h *Hub) relay(c *Client, msg *protocol.Message) {
	if c.RoomID == "" {
		h.deliver(c, protocol.NewError(protocol.CodeNotInRoom, "join a room first"))
		return
	}
	if msg.Signal == nil {
		h.metrics.Inc(MetricBadMessages)
		h.deliver(c, protocol.NewError(protocol.CodeBadMessage, "message without signal"))
		return
	}

	out := *msg
	out.From = c.ID
	out.Room = c.RoomID

	if msg.To != "" {
		target := h.rooms.Lookup(c.RoomID, msg.To)
		if target == nil || target == c {
			h.metrics.Inc(MetricUnroutable)
			h.logger.Debug("unroutable signal", "room", c.RoomID, "from", c.ID, "to", msg.To, "signal", msg.Signal.Type)
			return
		}
		h.metrics.Inc(MetricRelayed)
		h.deliver(target, &out)
		return
	}

	for _, m := range h.rooms.Members(c.RoomID) {
		if m == c {
			continue
		}
		h.metrics.Inc(MetricRelayed)
		h.deliver(m, &out)
	}
}

// leave removes c from its room and tells the remaining members to tear
// down their sessions with it.
func (h *Hub) leave(c *Client) {
	name, remaining, ok := h.rooms.Leave(c)
	if !ok {
		return
	}
	h.metrics.Inc(MetricLeaves)
	h.logger.Info("member left", "room", name, "member", c.ID, "remaining", len(remaining))

	bye := &protocol.Message{
		Type:   protocol.TypeMessage,
		Room:   name,
		From:   c.ID,
		Signal: &protocol.Signal{Type: protocol.SignalBye},
	}
	for _, m := range remaining {
		h.deliver(m, bye)
	}
}

// remove forgets c entirely and closes its send channel.
func (h *Hub) remove(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	h.leave(c)
	if c.ID != "" && h.members[c.ID] == c {
		delete(h.members, c.ID)
	}
	close(c.Send)
}

// deliver queues msg for c without blocking the hub. A member that cannot
// keep up is disconnected.
func (h *Hub) deliver(c *Client, msg *protocol.Message) {
	if !h.clients[c] {
		return
	}
	select {
	case c.Send <- msg:
	default:
		h.metrics.Inc(MetricDropped)
		h.logger.Warn("dropping slow member", "member", c.ID, "room", c.RoomID)
		h.remove(c)
	}
}
