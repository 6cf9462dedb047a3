package relay

import (
	"encoding/json"
	"log"
)

// Hub is the central brain of the relay. It owns the room table; every
// membership mutation and every forwarded signal passes through its
// single Run goroutine, which is what keeps the room-size checks and
// ready/peer-disconnected notifications atomic under concurrent joins.
type Hub struct {
	// rooms maps room names to Room instances. Run-goroutine only.
	rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries raw frames from client read pumps.
	Inbound chan *inbound

	// queries answers room-count lookups without exposing the table.
	queries chan chan int
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *inbound),
		queries:    make(chan chan int),
	}
}

// Run starts the hub's main processing loop. This is the single
// goroutine that safely manages all state (rooms, clients).
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// Not in a room yet; membership starts with a join message.
			log.Printf("client %s: registered (%s)", client.ID, client.Conn.RemoteAddr())

		case client := <-h.Unregister:
			log.Printf("client %s: unregistered", client.ID)
			h.dropClient(client)

		case in := <-h.Inbound:
			h.dispatch(in)

		case reply := <-h.queries:
			reply <- len(h.rooms)
		}
	}
}

// RoomCount reports the number of live rooms. It round-trips through
// the hub goroutine so callers observe a consistent view.
func (h *Hub) RoomCount() int {
	reply := make(chan int, 1)
	h.queries <- reply
	return <-reply
}

// dispatch parses one frame and routes it.
func (h *Hub) dispatch(in *inbound) {
	c := in.sender

	var msg Message
	if err := json.Unmarshal(in.data, &msg); err != nil {
		// Malformed input gets an error reply but keeps the
		// connection, unlike the room-full rejection below.
		log.Printf("client %s: malformed message: %v", c.ID, err)
		h.send(c, &Message{Type: TypeError, Message: "invalid message format"})
		return
	}

	switch msg.Type {
	case TypeJoin:
		h.handleJoin(c, msg.Room)
	case TypeSignal:
		h.handleSignal(c, &msg)
	default:
		log.Printf("client %s: unknown message type: %q", c.ID, msg.Type)
	}
}

// handleJoin moves the client into the named room, designating the
// initiator on the 1->2 transition and rejecting a third member.
func (h *Hub) handleJoin(c *Client, name string) {
	if name == "" {
		h.send(c, &Message{Type: TypeError, Message: "room name is required"})
		return
	}

	// Rejoining leaves the current room first. The abandoned peer, if
	// any, learns about it only when this connection actually closes.
	h.leaveRoom(c)

	room, ok := h.rooms[name]
	if !ok {
		room = &Room{Name: name}
		h.rooms[name] = room
	}

	if len(room.Members) >= 2 {
		log.Printf("client %s: room %q is full, rejecting", c.ID, name)
		h.send(c, &Message{Type: TypeError, Message: "room is full, maximum 2 participants allowed"})
		h.closeSend(c)
		return
	}

	room.Members = append(room.Members, c)
	c.room = name
	log.Printf("client %s: joined room %q (size %d)", c.ID, name, len(room.Members))

	if len(room.Members) == 2 {
		room.Initiator = room.Members[0]
		log.Printf("room %q is full, notifying %s to initiate", name, room.Initiator.ID)
		h.send(room.Initiator, &Message{Type: TypeReady})
	}
}

// handleSignal forwards the payload verbatim to the other room member.
func (h *Hub) handleSignal(c *Client, msg *Message) {
	room, ok := h.rooms[msg.Room]
	if !ok || !room.contains(c) {
		// Stale or out-of-room signal: drop silently, no reply.
		log.Printf("client %s: signal for room %q dropped, not a member", c.ID, msg.Room)
		return
	}

	for _, m := range room.Members {
		if m == c || m.sendClosed {
			continue
		}
		h.send(m, &Message{Type: TypeSignal, Payload: msg.Payload})
	}
}

// dropClient handles a closed or errored connection.
func (h *Hub) dropClient(c *Client) {
	if c.room != "" {
		if room, ok := h.rooms[c.room]; ok && room.contains(c) {
			room.remove(c)

			switch len(room.Members) {
			case 1:
				log.Printf("client %s: left room %q, notifying survivor", c.ID, room.Name)
				h.send(room.Members[0], &Message{Type: TypePeerDisconnected})
			case 0:
				delete(h.rooms, room.Name)
				log.Printf("room %q deleted (empty)", room.Name)
			}
		}
		c.room = ""
	}

	h.closeSend(c)
}

// leaveRoom silently removes the client from its current room, deleting
// the room if it is now empty. Used on rejoin; disconnects go through
// dropClient instead.
func (h *Hub) leaveRoom(c *Client) {
	if c.room == "" {
		return
	}
	if room, ok := h.rooms[c.room]; ok {
		room.remove(c)
		if len(room.Members) == 0 {
			delete(h.rooms, room.Name)
			log.Printf("room %q deleted (empty)", room.Name)
		}
	}
	c.room = ""
}

// send queues a message for the client unless its channel is gone.
func (h *Hub) send(c *Client, msg *Message) {
	if c.sendClosed {
		return
	}
	c.Send <- msg
}

// closeSend shuts the client's send channel exactly once. The write
// pump drains what is queued, emits a close frame and tears the
// connection down.
func (h *Hub) closeSend(c *Client) {
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}
