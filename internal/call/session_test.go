package call

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerwave/peerwave/internal/media"
	"github.com/peerwave/peerwave/internal/signaling"
)

const waitFor = 2 * time.Second

type fakeSender struct {
	mu     sync.Mutex
	msgs   []*signaling.Message
	closed bool
}

func (f *fakeSender) SendMessage(msg *signaling.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// envelopes returns the signal envelopes sent so far, in order.
func (f *fakeSender) envelopes() []signaling.SignalEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []signaling.SignalEnvelope
	for _, msg := range f.msgs {
		if msg.Type != signaling.MessageTypeSignal {
			continue
		}
		var env signaling.SignalEnvelope
		if err := json.Unmarshal(msg.Payload, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeSender) countEnvelopes(kind string) int {
	n := 0
	for _, env := range f.envelopes() {
		if env.Type == kind {
			n++
		}
	}
	return n
}

type fakeStream struct{ closed bool }

func (s *fakeStream) Tracks() []webrtc.TrackLocal { return nil }

func (s *fakeStream) ConfigureEngine(_ *webrtc.MediaEngine) error { return nil }

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeSource struct {
	mu  sync.Mutex
	err error
}

func (f *fakeSource) Acquire() (media.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{}, nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeEngine struct {
	mu          sync.Mutex
	remote      []webrtc.SessionDescription
	added       []webrtc.ICECandidateInit
	audio       []bool
	closed      bool
	onCandidate func(webrtc.ICECandidateInit)
	onConnState func(webrtc.PeerConnectionState)
}

func (e *fakeEngine) AddTrack(_ webrtc.TrackLocal) error { return nil }

func (e *fakeEngine) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake-offer"}, nil
}

func (e *fakeEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 fake-answer"}, nil
}

func (e *fakeEngine) SetRemoteDescription(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remote = append(e.remote, desc)
	return nil
}

func (e *fakeEngine) AddCandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added = append(e.added, c)
	return nil
}

func (e *fakeEngine) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = fn
}

func (e *fakeEngine) OnTrack(_ func(*webrtc.TrackRemote)) {}

func (e *fakeEngine) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onConnState = fn
}

func (e *fakeEngine) OpenChat() (*Chat, error) { return nil, errors.New("no chat in fake") }

func (e *fakeEngine) OnChat(_ func(*Chat)) {}

func (e *fakeEngine) SetVideoEnabled(_ bool) error { return nil }

func (e *fakeEngine) SetAudioEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audio = append(e.audio, enabled)
	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) remoteCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.remote)
}

func (e *fakeEngine) addedCandidates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return candidateStrings(e.added)
}

func (e *fakeEngine) reportConnState(state webrtc.PeerConnectionState) {
	e.mu.Lock()
	fn := e.onConnState
	e.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (e *fakeEngine) discoverCandidate(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	fn := e.onCandidate
	e.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

type sessionFixture struct {
	session *Session
	sender  *fakeSender
	source  *fakeSource
	engine  *fakeEngine
	handler *signaling.Handler
	runErr  chan error
	events  *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) collect(ch <-chan Event) {
	for ev := range ch {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	}
}

func (l *eventLog) has(kind EventKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func (l *eventLog) lastState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := State("")
	for _, ev := range l.events {
		if ev.Kind == EventStateChanged {
			state = ev.State
		}
	}
	return state
}

func (l *eventLog) mediaError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Kind == EventMediaError {
			return ev.Err
		}
	}
	return nil
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	sender := &fakeSender{}
	source := &fakeSource{}
	engine := &fakeEngine{}
	handler := signaling.NewHandler(nil)

	session := NewSession("room1", "tester", sender, handler, source, func(_ media.Stream) (Engine, error) {
		return engine, nil
	})

	f := &sessionFixture{
		session: session,
		sender:  sender,
		source:  source,
		engine:  engine,
		handler: handler,
		runErr:  make(chan error, 1),
		events:  &eventLog{},
	}

	go f.events.collect(session.Events())
	go func() { f.runErr <- session.Run() }()

	// The join message goes out first thing.
	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.msgs) > 0 && sender.msgs[0].Type == signaling.MessageTypeJoin
	}, waitFor, 5*time.Millisecond)

	return f
}

func (f *sessionFixture) signal(t *testing.T, kind string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	f.handler.Signal <- &signaling.SignalEnvelope{Type: kind, Data: raw}
}

func (f *sessionFixture) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.runErr:
		return err
	case <-time.After(waitFor):
		t.Fatal("session did not finish")
		return nil
	}
}

func offerSDP() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 remote-offer"}
}

func answerSDP() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 remote-answer"}
}

func TestInitiatorOfferAnswerFlow(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}

	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) == 1
	}, waitFor, 5*time.Millisecond)

	f.signal(t, signaling.SignalAnswer, answerSDP())
	require.Eventually(t, func() bool {
		return f.engine.remoteCount() == 1
	}, waitFor, 5*time.Millisecond)

	// Candidate after the remote description: applied immediately.
	f.signal(t, signaling.SignalCandidate, webrtc.ICECandidateInit{Candidate: "late"})
	require.Eventually(t, func() bool {
		return len(f.engine.addedCandidates()) == 1
	}, waitFor, 5*time.Millisecond)

	f.session.Hangup()
	assert.NoError(t, f.waitDone(t))
	assert.True(t, f.engine.closed)
	assert.True(t, f.sender.isClosed())
	assert.Equal(t, StateEnded, f.events.lastState())
}

func TestResponderQueuesEarlyCandidates(t *testing.T) {
	f := newSessionFixture(t)

	// Candidates before the offer must be buffered, not lost.
	f.signal(t, signaling.SignalCandidate, webrtc.ICECandidateInit{Candidate: "early-1"})
	f.signal(t, signaling.SignalCandidate, webrtc.ICECandidateInit{Candidate: "early-2"})
	f.signal(t, signaling.SignalOffer, offerSDP())

	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalAnswer) == 1
	}, waitFor, 5*time.Millisecond)

	// Drained in arrival order, before anything that comes later.
	f.signal(t, signaling.SignalCandidate, webrtc.ICECandidateInit{Candidate: "late"})
	require.Eventually(t, func() bool {
		return len(f.engine.addedCandidates()) == 3
	}, waitFor, 5*time.Millisecond)

	assert.Equal(t, []string{"early-1", "early-2", "late"}, f.engine.addedCandidates())
	assert.Equal(t, 1, f.engine.remoteCount())
}

func TestDuplicateReadyIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}
	f.handler.Ready <- struct{}{}

	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) >= 1
	}, waitFor, 5*time.Millisecond)

	f.session.Hangup()
	f.waitDone(t)

	assert.Equal(t, 1, f.sender.countEnvelopes(signaling.SignalOffer))
}

func TestDuplicateRemoteDescriptionIgnored(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}
	f.signal(t, signaling.SignalAnswer, answerSDP())
	f.signal(t, signaling.SignalAnswer, answerSDP())

	require.Eventually(t, func() bool {
		return f.engine.remoteCount() >= 1
	}, waitFor, 5*time.Millisecond)

	f.session.Hangup()
	f.waitDone(t)

	assert.Equal(t, 1, f.engine.remoteCount())
}

func TestStaleAnswerDropped(t *testing.T) {
	f := newSessionFixture(t)

	// No ready, no offer: an answer here belongs to no round.
	f.signal(t, signaling.SignalAnswer, answerSDP())

	f.session.Hangup()
	assert.NoError(t, f.waitDone(t))
	assert.Zero(t, f.engine.remoteCount())
}

func TestMediaFailureRevertsToIdleAndAllowsRetry(t *testing.T) {
	f := newSessionFixture(t)
	f.source.setErr(media.ErrPermissionDenied)

	f.handler.Ready <- struct{}{}
	require.Eventually(t, func() bool {
		return f.events.has(EventMediaError)
	}, waitFor, 5*time.Millisecond)

	assert.ErrorIs(t, f.events.mediaError(), media.ErrPermissionDenied)
	assert.Zero(t, f.sender.countEnvelopes(signaling.SignalOffer))

	// Back to idle: a later ready for a fresh attempt succeeds.
	f.source.setErr(nil)
	f.handler.Ready <- struct{}{}
	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) == 1
	}, waitFor, 5*time.Millisecond)

	f.session.Hangup()
	f.waitDone(t)
}

func TestPeerDisconnectedEndsSession(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}
	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) == 1
	}, waitFor, 5*time.Millisecond)

	f.handler.PeerDisconnected <- struct{}{}

	err := f.waitDone(t)
	assert.ErrorIs(t, err, ErrPeerDisconnected)
	assert.True(t, f.engine.closed)
	assert.True(t, f.sender.isClosed())
	assert.Equal(t, StateEnded, f.events.lastState())
}

func TestLocalCandidatesDispatchedOutward(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}
	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) == 1
	}, waitFor, 5*time.Millisecond)

	f.engine.discoverCandidate(webrtc.ICECandidateInit{Candidate: "local-1"})

	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalCandidate) == 1
	}, waitFor, 5*time.Millisecond)

	f.session.Hangup()
	f.waitDone(t)
}

func TestMuteToggleIgnoredBeforeConnected(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}
	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) == 1
	}, waitFor, 5*time.Millisecond)

	// Still negotiating: toggling is not valid yet.
	f.session.ToggleAudio()
	f.session.Hangup()
	f.waitDone(t)

	assert.Empty(t, f.engine.audio)
}

func TestMuteToggleWhenConnected(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}
	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) == 1
	}, waitFor, 5*time.Millisecond)

	f.engine.reportConnState(webrtc.PeerConnectionStateConnected)
	require.Eventually(t, func() bool {
		return f.events.lastState() == StateConnected
	}, waitFor, 5*time.Millisecond)

	f.session.ToggleAudio()
	f.session.Hangup()
	f.waitDone(t)

	f.engine.mu.Lock()
	assert.Equal(t, []bool{false}, f.engine.audio)
	f.engine.mu.Unlock()
}

func TestEngineConnectionFailureEndsCall(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Ready <- struct{}{}
	require.Eventually(t, func() bool {
		return f.sender.countEnvelopes(signaling.SignalOffer) == 1
	}, waitFor, 5*time.Millisecond)

	f.engine.reportConnState(webrtc.PeerConnectionStateFailed)

	err := f.waitDone(t)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, StateEnded, f.events.lastState())
}

func TestRelayErrorEndsSession(t *testing.T) {
	f := newSessionFixture(t)

	f.handler.Error <- "room is full, maximum 2 participants allowed"

	err := f.waitDone(t)
	assert.ErrorIs(t, err, ErrSignaling)
	assert.True(t, f.sender.isClosed())
}
