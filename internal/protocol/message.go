package protocol

// Message defines the structure for all client-to-relay and relay-to-client
// websocket messages.
type Message struct {
	Type string `json:"type" msgpack:"type"`

	// Room is the room token for create or join / joined.
	Room string `json:"room,omitempty" msgpack:"room,omitempty"`

	// From is the member id of the sender. The relay always overwrites it
	// on forwarded messages; in create or join it carries the proposed id.
	From string `json:"from,omitempty" msgpack:"from,omitempty"`

	// To addresses a single member. Empty means the whole room.
	To string `json:"to,omitempty" msgpack:"to,omitempty"`

	// ID is the peer session id a signal belongs to.
	ID string `json:"id,omitempty" msgpack:"id,omitempty"`

	// Count and Members describe the room on ready.
	Count   int      `json:"count,omitempty" msgpack:"count,omitempty"`
	Members []string `json:"members,omitempty" msgpack:"members,omitempty"`

	Signal *Signal `json:"signal,omitempty" msgpack:"signal,omitempty"`

	Code  string `json:"code,omitempty" msgpack:"code,omitempty"`
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Relay event names.
const (
	TypeCreateOrJoin = "create or join"
	TypeLeaveRoom    = "leaveroom"
	TypeBye          = "bye"

	TypeJoined     = "joined"
	TypeReady      = "ready"
	TypeNewArrival = "new arrival"
	TypeMessage    = "message"
	TypeError      = "error"
)

// Error codes carried by TypeError messages.
const (
	CodeInvalidRoom   = "invalid-room"
	CodeIDUnavailable = "id-unavailable"
	CodeNotInRoom     = "not-in-room"
	CodeBadMessage    = "bad-message"
)

// Signal is the negotiation payload relayed between peers.
type Signal struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp,omitempty" msgpack:"sdp,omitempty"`

	Candidate     string  `json:"candidate,omitempty" msgpack:"candidate,omitempty"`
	SDPMid        *string `json:"id,omitempty" msgpack:"id,omitempty"`
	SDPMLineIndex *uint16 `json:"label,omitempty" msgpack:"label,omitempty"`
}

// Signal types.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
	SignalBye       = "bye"
)

// NewError builds a relay error reply.
func NewError(code, msg string) *Message {
	return &Message{Type: TypeError, Code: code, Error: msg}
}
