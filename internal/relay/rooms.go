package relay

// Rooms is the room membership table: room token to the ordered set of
// members currently joined. A room exists only while it has members.
//
// Rooms is not safe for concurrent use; the hub goroutine owns it.
type Rooms struct {
	rooms map[string][]*Client
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string][]*Client)}
}

// Join adds c to the room and returns the members that were already there,
// in join order. A client that is in another room leaves it first.
func (r *Rooms) Join(name string, c *Client) []*Client {
	if c.RoomID != "" {
		r.Leave(c)
	}

	others := append([]*Client(nil), r.rooms[name]...)
	r.rooms[name] = append(r.rooms[name], c)
	c.RoomID = name
	return others
}

// Leave removes c from its room and returns the room name and the members
// left behind. ok is false when c was not in a room.
func (r *Rooms) Leave(c *Client) (name string, remaining []*Client, ok bool) {
	name = c.RoomID
	if name == "" {
		return "", nil, false
	}
	c.RoomID = ""

	members := r.rooms[name]
	for i, m := range members {
		if m == c {
			members = append(members[:i:i], members[i+1:]...)
			break
		}
	}

	if len(members) == 0 {
		delete(r.rooms, name)
		return name, nil, true
	}
	r.rooms[name] = members
	return name, append([]*Client(nil), members...), true
}

// Members returns a copy of the room's member list.
func (r *Rooms) Members(name string) []*Client {
	return append([]*Client(nil), r.rooms[name]...)
}

// Lookup finds the member of room with the given id.
func (r *Rooms) Lookup(name, id string) *Client {
	for _, m := range r.rooms[name] {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Len returns the number of non-empty rooms.
func (r *Rooms) Len() int {
	return len(r.rooms)
}

// Names returns the tokens of all live rooms.
func (r *Rooms) Names() []string {
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}
