package call

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/peerwave/peerwave/internal/media"
	"github.com/peerwave/peerwave/internal/signaling"
)

// State of the negotiation.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateNegotiating  State = "negotiating"
	StateConnected    State = "connected"
	StateEnded        State = "ended"
	StateFailed       State = "failed"
)

// Role of this client for the lifetime of one call. Assigned exactly
// once, by the relay's ready notification or by an inbound offer, and
// never renegotiated.
type Role string

const (
	RoleNone      Role = ""
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// EventKind identifies session events surfaced to the UI.
type EventKind string

const (
	EventStateChanged EventKind = "state-changed"
	EventChatMessage  EventKind = "chat-message"
	EventRemoteTrack  EventKind = "remote-track"
	EventMediaError   EventKind = "media-error"
	EventMuteChanged  EventKind = "mute-changed"
)

// Event is a session notification for the UI layer.
type Event struct {
	Kind      EventKind
	State     State
	Chat      ChatMessage
	TrackKind string
	Err       error
	AudioOn   bool
	VideoOn   bool
}

// Sender is the outbound half of the relay transport.
type Sender interface {
	SendMessage(msg *signaling.Message)
	Close()
}

type engineEventKind int

const (
	evCandidate engineEventKind = iota
	evConnState
	evTrack
	evChatOpen
	evChatMessage
)

type engineEvent struct {
	kind      engineEventKind
	candidate webrtc.ICECandidateInit
	connState webrtc.PeerConnectionState
	trackKind string
	chat      *Chat
	chatMsg   ChatMessage
}

type commandKind int

const (
	cmdHangup commandKind = iota
	cmdChat
	cmdToggleAudio
	cmdToggleVideo
)

type command struct {
	kind commandKind
	text string
}

// Session drives one call's negotiation: it reacts to relay messages
// and engine callbacks, one at a time, on a single run-loop goroutine.
// A Session covers exactly one negotiation round; starting over after
// the call ended means constructing a fresh Session, which is what
// guarantees no queue, role or engine state leaks between rounds.
type Session struct {
	room      string
	nick      string
	sender    Sender
	handler   *signaling.Handler
	source    media.Source
	newEngine EngineFactory

	state     State
	role      Role
	engine    Engine
	stream    media.Stream
	chat      *Chat
	pending   *CandidateQueue
	remoteSet bool
	audioOn   bool
	videoOn   bool

	engineEvents chan engineEvent
	commands     chan command
	events       chan Event
	done         chan struct{}
}

// NewSession wires a session for the given room. Run starts it.
func NewSession(room, nick string, sender Sender, handler *signaling.Handler, source media.Source, factory EngineFactory) *Session {
	return &Session{
		room:         room,
		nick:         nick,
		sender:       sender,
		handler:      handler,
		source:       source,
		newEngine:    factory,
		state:        StateIdle,
		pending:      NewCandidateQueue(),
		audioOn:      true,
		videoOn:      true,
		engineEvents: make(chan engineEvent, 64),
		commands:     make(chan command, 8),
		events:       make(chan Event, 64),
		done:         make(chan struct{}),
	}
}

// Events returns the notification channel for the UI layer.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session has torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Hangup asks the session to end the call.
func (s *Session) Hangup() {
	s.command(command{kind: cmdHangup})
}

// SendChat queues one chat line for the peer.
func (s *Session) SendChat(text string) {
	s.command(command{kind: cmdChat, text: text})
}

// ToggleAudio flips the microphone mute.
func (s *Session) ToggleAudio() {
	s.command(command{kind: cmdToggleAudio})
}

// ToggleVideo flips the camera.
func (s *Session) ToggleVideo() {
	s.command(command{kind: cmdToggleVideo})
}

func (s *Session) command(c command) {
	select {
	case s.commands <- c:
	case <-s.done:
	}
}

// Run joins the room and processes messages until the call ends. It
// returns nil on a local hangup, ErrPeerDisconnected when the peer
// left, and a terminal error otherwise.
func (s *Session) Run() error {
	s.sender.SendMessage(&signaling.Message{
		Type: signaling.MessageTypeJoin,
		Room: s.room,
	})

	for {
		select {
		case <-s.handler.Ready:
			if err := s.handleReady(); err != nil {
				return s.finish(err)
			}

		case env := <-s.handler.Signal:
			if err := s.handleEnvelope(env); err != nil {
				return s.finish(err)
			}

		case <-s.handler.PeerDisconnected:
			return s.finish(ErrPeerDisconnected)

		case msg := <-s.handler.Error:
			return s.finish(WrapError("relay", ErrSignaling, msg))

		case <-s.handler.Closed:
			return s.finish(WrapError("relay", ErrSignaling, "connection to relay lost"))

		case ev := <-s.engineEvents:
			if err := s.handleEngineEvent(ev); err != nil {
				return s.finish(err)
			}

		case c := <-s.commands:
			if s.handleCommand(c) {
				return s.finish(nil)
			}
		}
	}
}

// finish tears the session down and maps the cause to a final state.
func (s *Session) finish(cause error) error {
	final := StateEnded
	if cause != nil &&
		!errors.Is(cause, ErrPeerDisconnected) &&
		!errors.Is(cause, ErrSignaling) &&
		!errors.Is(cause, ErrConnectionFailed) {
		final = StateFailed
	}
	s.teardown(final)
	return cause
}

// handleReady reacts to the relay designating us initiator: bring the
// engine up, send the offer. Duplicate ready deliveries no-op.
func (s *Session) handleReady() error {
	if s.state != StateIdle {
		slog.Debug("call: duplicate ready ignored", "state", s.state)
		return nil
	}

	if err := s.initialize(RoleInitiator); err != nil {
		return err
	}
	if s.state != StateInitializing {
		// Media acquisition failed and we reverted to idle.
		return nil
	}

	offer, err := s.engine.CreateOffer()
	if err != nil {
		return NewError("offer", err)
	}
	s.sendEnvelope(signaling.SignalOffer, offer)
	s.setState(StateNegotiating)
	return nil
}

// initialize brings up media and the engine for one round. Idempotent:
// a no-op unless the session is idle. Media failure reverts to idle so
// a fresh join can retry; engine construction failure is terminal.
func (s *Session) initialize(role Role) error {
	if s.state != StateIdle {
		return nil
	}
	s.setState(StateInitializing)

	stream, err := s.source.Acquire()
	if err != nil {
		slog.Warn("call: media acquisition failed", "err", err)
		s.setState(StateIdle)
		s.emit(Event{Kind: EventMediaError, Err: err})
		return nil
	}

	engine, err := s.newEngine(stream)
	if err != nil {
		stream.Close()
		return WrapError("engine", ErrEngineFailed, err.Error())
	}

	for _, track := range stream.Tracks() {
		if err := engine.AddTrack(track); err != nil {
			engine.Close()
			stream.Close()
			return WrapError("engine", ErrEngineFailed, err.Error())
		}
	}

	engine.OnCandidate(func(c webrtc.ICECandidateInit) {
		s.pushEngineEvent(engineEvent{kind: evCandidate, candidate: c})
	})
	engine.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.pushEngineEvent(engineEvent{kind: evConnState, connState: state})
	})
	engine.OnTrack(func(track *webrtc.TrackRemote) {
		s.pushEngineEvent(engineEvent{kind: evTrack, trackKind: track.Kind().String()})
	})

	if role == RoleInitiator {
		chat, err := engine.OpenChat()
		if err != nil {
			slog.Warn("call: chat channel unavailable", "err", err)
		} else {
			s.attachChat(chat)
		}
	} else {
		engine.OnChat(func(chat *Chat) {
			s.pushEngineEvent(engineEvent{kind: evChatOpen, chat: chat})
		})
	}

	s.engine = engine
	s.stream = stream
	s.role = role
	s.remoteSet = false
	return nil
}

func (s *Session) handleEnvelope(env *signaling.SignalEnvelope) error {
	switch env.Type {
	case signaling.SignalOffer:
		return s.handleOffer(env.Data)
	case signaling.SignalAnswer:
		s.handleAnswer(env.Data)
	case signaling.SignalCandidate:
		s.handleCandidate(env.Data)
	}
	return nil
}

// handleOffer is the responder entry into negotiation: apply the remote
// description, answer, drain queued candidates.
func (s *Session) handleOffer(data json.RawMessage) error {
	if s.role == RoleInitiator {
		slog.Warn("call: offer received while initiating, dropped")
		return nil
	}

	if s.state == StateIdle {
		if err := s.initialize(RoleResponder); err != nil {
			return err
		}
		if s.state != StateInitializing {
			return nil
		}
	}

	if s.remoteSet {
		// A remote description is applied at most once per round.
		slog.Warn("call: duplicate offer ignored")
		return nil
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(data, &offer); err != nil {
		slog.Warn("call: dropping unparseable offer", "err", err)
		return nil
	}

	if err := s.engine.SetRemoteDescription(offer); err != nil {
		slog.Warn("call: remote offer rejected by engine", "err", err)
		return nil
	}
	s.remoteSet = true
	s.drainCandidates()

	answer, err := s.engine.CreateAnswer()
	if err != nil {
		return NewError("answer", err)
	}
	s.sendEnvelope(signaling.SignalAnswer, answer)
	s.setState(StateNegotiating)
	return nil
}

// handleAnswer completes the initiator's half of the handshake. An
// answer without a matching offer in flight is stale and dropped.
func (s *Session) handleAnswer(data json.RawMessage) {
	if s.role != RoleInitiator || s.engine == nil {
		slog.Warn("call: stale answer dropped")
		return
	}
	if s.remoteSet {
		slog.Warn("call: duplicate answer ignored")
		return
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(data, &answer); err != nil {
		slog.Warn("call: dropping unparseable answer", "err", err)
		return
	}

	if err := s.engine.SetRemoteDescription(answer); err != nil {
		slog.Warn("call: remote answer rejected by engine", "err", err)
		return
	}
	s.remoteSet = true
	s.drainCandidates()
}

// handleCandidate applies a remote candidate, or queues it while no
// remote description exists yet.
func (s *Session) handleCandidate(data json.RawMessage) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(data, &candidate); err != nil {
		slog.Warn("call: dropping unparseable candidate", "err", err)
		return
	}

	if s.engine == nil || !s.remoteSet {
		s.pending.Push(candidate)
		slog.Debug("call: candidate queued", "queued", s.pending.Len())
		return
	}

	if err := s.engine.AddCandidate(candidate); err != nil {
		slog.Warn("call: candidate rejected by engine", "err", err)
	}
}

// drainCandidates flushes the queue in arrival order, exactly once per
// applied remote description.
func (s *Session) drainCandidates() {
	for _, candidate := range s.pending.Drain() {
		if err := s.engine.AddCandidate(candidate); err != nil {
			slog.Warn("call: queued candidate rejected by engine", "err", err)
		}
	}
}

func (s *Session) handleEngineEvent(ev engineEvent) error {
	if s.engine == nil {
		return nil
	}

	switch ev.kind {
	case evCandidate:
		s.sendEnvelope(signaling.SignalCandidate, ev.candidate)

	case evConnState:
		switch ev.connState {
		case webrtc.PeerConnectionStateConnected:
			s.setState(StateConnected)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			return NewError("transport", ErrConnectionFailed)
		}

	case evTrack:
		s.emit(Event{Kind: EventRemoteTrack, TrackKind: ev.trackKind})

	case evChatOpen:
		s.attachChat(ev.chat)

	case evChatMessage:
		s.emit(Event{Kind: EventChatMessage, Chat: ev.chatMsg})
	}
	return nil
}

// handleCommand reports true when the session should end.
func (s *Session) handleCommand(c command) bool {
	switch c.kind {
	case cmdHangup:
		return true

	case cmdChat:
		if s.chat == nil {
			return false
		}
		if err := s.chat.Send(s.nick, c.text); err != nil {
			slog.Warn("call: chat send failed", "err", err)
		}

	case cmdToggleAudio:
		if s.state != StateConnected {
			return false
		}
		s.audioOn = !s.audioOn
		if err := s.engine.SetAudioEnabled(s.audioOn); err != nil {
			slog.Warn("call: audio toggle failed", "err", err)
			s.audioOn = !s.audioOn
		}
		s.emit(Event{Kind: EventMuteChanged, AudioOn: s.audioOn, VideoOn: s.videoOn})

	case cmdToggleVideo:
		if s.state != StateConnected {
			return false
		}
		s.videoOn = !s.videoOn
		if err := s.engine.SetVideoEnabled(s.videoOn); err != nil {
			slog.Warn("call: video toggle failed", "err", err)
			s.videoOn = !s.videoOn
		}
		s.emit(Event{Kind: EventMuteChanged, AudioOn: s.audioOn, VideoOn: s.videoOn})
	}
	return false
}

func (s *Session) attachChat(chat *Chat) {
	chat.OnMessage(func(m ChatMessage) {
		s.pushEngineEvent(engineEvent{kind: evChatMessage, chatMsg: m})
	})
	s.chat = chat
}

// teardown releases everything from the current round and closes the
// relay transport.
func (s *Session) teardown(final State) {
	if s.engine != nil {
		s.engine.Close()
		s.engine = nil
	}
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	s.chat = nil
	s.pending.Clear()
	s.role = RoleNone
	s.remoteSet = false
	s.setState(final)
	s.sender.Close()
	close(s.done)
}

func (s *Session) sendEnvelope(kind string, data any) {
	msg, err := signaling.NewSignalMessage(s.room, kind, data)
	if err != nil {
		slog.Error("call: failed to encode envelope", "kind", kind, "err", err)
		return
	}
	s.sender.SendMessage(msg)
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	slog.Debug("call: state change", "from", s.state, "to", state)
	s.state = state
	s.emit(Event{Kind: EventStateChanged, State: state})
}

// pushEngineEvent hands an engine callback to the run loop. Callbacks
// fire on pion goroutines; the channel is what serializes them.
func (s *Session) pushEngineEvent(ev engineEvent) {
	select {
	case s.engineEvents <- ev:
	case <-s.done:
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// UI is behind; notifications are best-effort.
	}
}
