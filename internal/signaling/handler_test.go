package signaling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIncoming builds a client whose Incoming channel is fed by the
// test instead of a websocket.
func fakeIncoming() (*Client, chan *Message) {
	ch := make(chan *Message, 16)
	return &Client{incoming: ch}, ch
}

func recvEnvelope(t *testing.T, h *Handler) *SignalEnvelope {
	t.Helper()
	select {
	case env := <-h.Signal:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

func TestHandlerRoutesMessages(t *testing.T) {
	client, in := fakeIncoming()
	h := NewHandler(client)
	go h.Start()

	in <- &Message{Type: MessageTypeReady}
	select {
	case <-h.Ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ready not delivered")
	}

	in <- &Message{Type: MessageTypeSignal, Payload: json.RawMessage(`{"type":"offer","data":{"sdp":"v=0"}}`)}
	env := recvEnvelope(t, h)
	assert.Equal(t, SignalOffer, env.Type)

	in <- &Message{Type: MessageTypePeerDisconnected}
	select {
	case <-h.PeerDisconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("peer-disconnected not delivered")
	}

	in <- &Message{Type: MessageTypeError, Message: "room is full"}
	select {
	case reason := <-h.Error:
		assert.Equal(t, "room is full", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("error not delivered")
	}

	close(in)
	select {
	case <-h.Closed:
	case <-time.After(2 * time.Second):
		t.Fatal("closed not signalled after transport shutdown")
	}
}

func TestHandlerDropsBadEnvelopes(t *testing.T) {
	client, in := fakeIncoming()
	h := NewHandler(client)
	go h.Start()

	in <- &Message{Type: MessageTypeSignal, Payload: json.RawMessage(`not json`)}
	in <- &Message{Type: MessageTypeSignal, Payload: json.RawMessage(`{"type":"renegotiate"}`)}
	in <- &Message{Type: "shutdown-warning"}

	// Only the well-formed envelope below makes it through, proving
	// the three frames above were dropped rather than queued.
	in <- &Message{Type: MessageTypeSignal, Payload: json.RawMessage(`{"type":"candidate","data":{"candidate":"c1"}}`)}

	env := recvEnvelope(t, h)
	assert.Equal(t, SignalCandidate, env.Type)
	assert.Empty(t, h.Signal)

	close(in)
}

func TestNewSignalMessage(t *testing.T) {
	type candidate struct {
		Candidate string `json:"candidate"`
	}

	msg, err := NewSignalMessage("orbit", SignalCandidate, candidate{Candidate: "c1"})
	require.NoError(t, err)

	assert.Equal(t, MessageTypeSignal, msg.Type)
	assert.Equal(t, "orbit", msg.Room)

	var env SignalEnvelope
	require.NoError(t, json.Unmarshal(msg.Payload, &env))
	assert.Equal(t, SignalCandidate, env.Type)

	var c candidate
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.Equal(t, "c1", c.Candidate)
}