package signaling

import (
	"encoding/json"
	"log/slog"
)

// Handler routes incoming relay messages to typed channels.
type Handler struct {
	client *Client

	// Ready fires when the relay designates this client the initiator.
	Ready chan struct{}

	// Signal carries forwarded negotiation envelopes.
	Signal chan *SignalEnvelope

	// PeerDisconnected fires when the other room member's transport closed.
	PeerDisconnected chan struct{}

	// Error carries relay error replies (room full, malformed input).
	Error chan string

	// Closed fires when the relay transport itself went away.
	Closed chan struct{}
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:           client,
		Ready:            make(chan struct{}, 1),
		Signal:           make(chan *SignalEnvelope, 32),
		PeerDisconnected: make(chan struct{}, 1),
		Error:            make(chan string, 1),
		Closed:           make(chan struct{}),
	}
}

// Start begins listening to incoming messages and routing them. It
// returns when the transport closes.
func (h *Handler) Start() {
	for msg := range h.client.Incoming() {
		switch msg.Type {

		case MessageTypeReady:
			h.Ready <- struct{}{}

		case MessageTypeSignal:
			h.handleSignal(msg)

		case MessageTypePeerDisconnected:
			h.PeerDisconnected <- struct{}{}

		case MessageTypeError:
			h.Error <- msg.Message

		default:
			slog.Debug("signaling: ignoring unknown message", "type", msg.Type)
		}
	}

	close(h.Closed)
}

// handleSignal parses the negotiation envelope and forwards it. A
// malformed envelope is dropped with a log entry; it never reaches the
// state machine.
func (h *Handler) handleSignal(msg *Message) {
	var envelope SignalEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		slog.Warn("signaling: dropping malformed envelope", "err", err)
		return
	}

	switch envelope.Type {
	case SignalOffer, SignalAnswer, SignalCandidate:
		h.Signal <- &envelope
	default:
		slog.Warn("signaling: dropping envelope of unknown kind", "kind", envelope.Type)
	}
}
