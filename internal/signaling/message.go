package signaling

import "encoding/json"

// Message represents all websocket messages between the client and the relay.
type Message struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoin   = "join"
	MessageTypeSignal = "signal"

	MessageTypeReady            = "ready"
	MessageTypePeerDisconnected = "peer-disconnected"
	MessageTypeError            = "error"
)

// Envelope kinds carried inside a signal message.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// SignalEnvelope is the negotiation payload relayed between peers: a
// session description or a network candidate. Data stays opaque to the
// relay; only the negotiation client interprets it.
type SignalEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewSignalMessage wraps data in an envelope of the given kind,
// addressed to the other member of room.
func NewSignalMessage(room, kind string, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(SignalEnvelope{Type: kind, Data: raw})
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:    MessageTypeSignal,
		Room:    room,
		Payload: payload,
	}, nil
}
