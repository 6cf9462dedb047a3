package relay

// Room groups at most two peers under a caller-chosen name. Created
// implicitly on first join, deleted when the last member leaves.
type Room struct {
	// Name is the caller-chosen room key.
	Name string

	// Members holds the joined connections in join order. Never more
	// than two.
	Members []*Client

	// Initiator is the member designated to start negotiation. Set
	// exactly once, when the room reaches two members, and never
	// recomputed afterwards.
	Initiator *Client
}

// contains reports whether c is a current member of the room.
func (r *Room) contains(c *Client) bool {
	for _, m := range r.Members {
		if m == c {
			return true
		}
	}
	return false
}

// remove drops c from the member list, preserving order of the rest.
func (r *Room) remove(c *Client) {
	members := r.Members[:0]
	for _, m := range r.Members {
		if m != c {
			members = append(members, m)
		}
	}
	r.Members = members
}
