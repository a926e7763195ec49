package relay

import "testing"

func member(id string) *Client {
	return &Client{ID: id}
}

func TestRoomsJoinReturnsExistingMembersInOrder(t *testing.T) {
	r := NewRooms()
	a, b, c := member("a"), member("b"), member("c")

	if others := r.Join("do-re-mi", a); len(others) != 0 {
		t.Fatalf("first member saw %d others", len(others))
	}
	r.Join("do-re-mi", b)
	others := r.Join("do-re-mi", c)
	if len(others) != 2 || others[0] != a || others[1] != b {
		t.Fatalf("others = %v, want [a b]", ids(others))
	}
	if c.RoomID != "do-re-mi" {
		t.Fatalf("RoomID = %q", c.RoomID)
	}
}

func TestRoomsMemberInAtMostOneRoom(t *testing.T) {
	r := NewRooms()
	a, b := member("a"), member("b")
	r.Join("do-re-mi", a)
	r.Join("do-re-mi", b)
	r.Join("fa-sol-la", a)

	for _, name := range r.Names() {
		count := 0
		for _, m := range r.Members(name) {
			if m == a {
				count++
			}
		}
		if name == "fa-sol-la" && count != 1 {
			t.Fatalf("a appears %d times in %s", count, name)
		}
		if name == "do-re-mi" && count != 0 {
			t.Fatalf("a still listed in %s", name)
		}
	}
	if got := r.Members("do-re-mi"); len(got) != 1 || got[0] != b {
		t.Fatalf("do-re-mi members = %v", ids(got))
	}
}

func TestRoomsLeaveDeletesEmptyRoom(t *testing.T) {
	r := NewRooms()
	a, b := member("a"), member("b")
	r.Join("si-si-si", a)
	r.Join("si-si-si", b)

	name, remaining, ok := r.Leave(a)
	if !ok || name != "si-si-si" || len(remaining) != 1 || remaining[0] != b {
		t.Fatalf("Leave(a) = %q %v %v", name, ids(remaining), ok)
	}
	if _, _, ok := r.Leave(a); ok {
		t.Fatalf("second Leave(a) reported membership")
	}

	r.Leave(b)
	if r.Len() != 0 {
		t.Fatalf("empty room survived, rooms=%v", r.Names())
	}
}

func TestRoomsLookup(t *testing.T) {
	r := NewRooms()
	a, b := member("a"), member("b")
	r.Join("do-do-do", a)
	r.Join("re-re-re", b)

	if got := r.Lookup("do-do-do", "a"); got != a {
		t.Fatalf("Lookup a = %v", got)
	}
	if got := r.Lookup("do-do-do", "b"); got != nil {
		t.Fatalf("Lookup must not cross rooms, got %v", got.ID)
	}
}

func ids(cs []*Client) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
