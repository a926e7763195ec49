package mesh

import (
	"sort"
	"time"

	"github.com/BioHazard786/solfa/internal/peer"
)

// SessionInfo describes one live session.
type SessionInfo struct {
	ID       string
	Peer     string
	Role     peer.Role
	State    peer.State
	Speaking bool

	// Power is the last voice band power of the peer's audio in dB, zero
	// until the first measurement.
	Power float64
}

// Status is the room as the coordinator sees it.
type Status struct {
	Room     string
	Self     string
	Joined   bool
	Sessions []SessionInfo

	// Early counts remote candidates held for sessions whose offer has not
	// arrived.
	Early int
}

// Record is the history of one session.
type Record struct {
	ID        string
	Peer      string
	Role      peer.Role
	Started   time.Time
	Connected time.Time
	Ended     time.Time
}

func (c *Coordinator) status() Status {
	st := Status{Room: c.room, Self: c.self, Joined: c.joined}
	for _, held := range c.early {
		st.Early += len(held)
	}
	for _, s := range c.sessions {
		st.Sessions = append(st.Sessions, SessionInfo{
			ID:       s.ID,
			Peer:     s.Peer,
			Role:     s.Role,
			State:    s.State(),
			Speaking: c.speaking[s.ID],
			Power:    c.power[s.ID],
		})
	}
	sort.Slice(st.Sessions, func(i, j int) bool {
		if st.Sessions[i].Peer != st.Sessions[j].Peer {
			return st.Sessions[i].Peer < st.Sessions[j].Peer
		}
		return st.Sessions[i].ID < st.Sessions[j].ID
	})
	return st
}

func (c *Coordinator) notify() {
	if c.opts.Observer != nil {
		c.opts.Observer(c.status())
	}
}
