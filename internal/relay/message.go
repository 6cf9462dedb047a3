package relay

import "encoding/json"

// Message type constants.
const (
	// client -> server
	TypeJoin   = "join"
	TypeSignal = "signal"

	// server -> client
	TypeReady            = "ready"
	TypePeerDisconnected = "peer-disconnected"
	TypeError            = "error"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
//
// The Payload carries the negotiation envelope (offer, answer or
// candidate). The relay never looks inside it.
type Message struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// inbound is one raw frame read from a connection, handed to the hub
// for parsing and dispatch.
type inbound struct {
	sender *Client
	data   []byte
}
