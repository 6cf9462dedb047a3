package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/peerwave/peerwave/internal/config"
	"github.com/peerwave/peerwave/internal/media"
)

// Engine is the peer-connection collaborator: it performs the actual
// media/network negotiation. The session state machine only feeds it
// descriptions and candidates and listens to its callbacks.
type Engine interface {
	AddTrack(track webrtc.TrackLocal) error

	// CreateOffer generates a local offer and installs it as the local
	// description.
	CreateOffer() (webrtc.SessionDescription, error)

	// CreateAnswer generates a local answer to the current remote
	// description and installs it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)

	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddCandidate(c webrtc.ICECandidateInit) error

	OnCandidate(fn func(webrtc.ICECandidateInit))
	OnTrack(fn func(track *webrtc.TrackRemote))
	OnConnectionStateChange(fn func(state webrtc.PeerConnectionState))

	// OpenChat creates the chat data channel (initiator side, before
	// the offer so it rides the initial negotiation).
	OpenChat() (*Chat, error)

	// OnChat fires when the peer's chat channel arrives (responder side).
	OnChat(fn func(*Chat))

	// SetAudioEnabled / SetVideoEnabled pause or resume the outgoing
	// tracks. Valid to attempt once the call is connected.
	SetAudioEnabled(enabled bool) error
	SetVideoEnabled(enabled bool) error

	Close() error
}

// EngineFactory builds an engine around freshly acquired local media.
type EngineFactory func(stream media.Stream) (Engine, error)

// NewPionFactory returns an EngineFactory backed by pion/webrtc with
// ICE servers from cfg.
func NewPionFactory(cfg *config.Config) EngineFactory {
	return func(stream media.Stream) (Engine, error) {
		return newPionEngine(cfg, stream)
	}
}

type pionEngine struct {
	pc *webrtc.PeerConnection

	// original senders/tracks, kept for ReplaceTrack-based mute.
	audioSender *webrtc.RTPSender
	audioTrack  webrtc.TrackLocal
	videoSender *webrtc.RTPSender
	videoTrack  webrtc.TrackLocal
}

func newPionEngine(cfg *config.Config, stream media.Stream) (*pionEngine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if stream != nil {
		if err := stream.ConfigureEngine(mediaEngine); err != nil {
			return nil, NewError("configure codecs", err)
		}
	} else {
		if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
			return nil, NewError("register codecs", err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && cfg.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	return &pionEngine{pc: pc}, nil
}

func (e *pionEngine) AddTrack(track webrtc.TrackLocal) error {
	sender, err := e.pc.AddTrack(track)
	if err != nil {
		return NewError("add track", err)
	}

	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		e.audioSender, e.audioTrack = sender, track
	case webrtc.RTPCodecTypeVideo:
		e.videoSender, e.videoTrack = sender, track
	}
	return nil
}

func (e *pionEngine) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create offer", err)
	}

	if err = e.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", err)
	}

	// Candidates trickle separately, no need to wait for gathering.
	return *e.pc.LocalDescription(), nil
}

func (e *pionEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, NewError("create answer", err)
	}

	if err = e.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, NewError("set local description", err)
	}

	return *e.pc.LocalDescription(), nil
}

func (e *pionEngine) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetRemoteDescription(desc)
}

func (e *pionEngine) AddCandidate(c webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(c)
}

func (e *pionEngine) OnCandidate(fn func(webrtc.ICECandidateInit)) {
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// Gathering finished; local-only event, nothing to send.
			return
		}
		fn(c.ToJSON())
	})
}

func (e *pionEngine) OnTrack(fn func(track *webrtc.TrackRemote)) {
	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (e *pionEngine) OnConnectionStateChange(fn func(state webrtc.PeerConnectionState)) {
	e.pc.OnConnectionStateChange(fn)
}

func (e *pionEngine) OpenChat() (*Chat, error) {
	dc, err := e.pc.CreateDataChannel("chat", nil)
	if err != nil {
		return nil, NewError("create chat channel", err)
	}
	return newChat(dc), nil
}

func (e *pionEngine) OnChat(fn func(*Chat)) {
	e.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == "chat" {
			fn(newChat(dc))
		}
	})
}

func (e *pionEngine) SetAudioEnabled(enabled bool) error {
	return replaceTrack(e.audioSender, e.audioTrack, enabled)
}

func (e *pionEngine) SetVideoEnabled(enabled bool) error {
	return replaceTrack(e.videoSender, e.videoTrack, enabled)
}

// replaceTrack swaps the outgoing track with nil (pause) or the original
// capture track (resume) without renegotiating.
func replaceTrack(sender *webrtc.RTPSender, track webrtc.TrackLocal, enabled bool) error {
	if sender == nil {
		return NewError("toggle track", ErrEngineFailed)
	}
	if enabled {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

func (e *pionEngine) Close() error {
	return e.pc.Close()
}
