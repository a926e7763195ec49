package peer

// State is the lifecycle state of a Session.
type State int

const (
	StatePendingLocalStream State = iota
	StateNegotiating
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePendingLocalStream:
		return "pending-local-stream"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Role says which side of the negotiation a Session is on. The initiator
// sends the offer and creates the data channel.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}
