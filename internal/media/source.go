package media

import (
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	_ "github.com/pion/mediadevices/pkg/driver/camera"     // register camera adapter
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // register microphone adapter
)

// Stream is a set of live local tracks ready to attach to a peer
// connection.
type Stream interface {
	// Tracks returns the acquired audio/video tracks.
	Tracks() []webrtc.TrackLocal

	// ConfigureEngine registers the codecs backing the tracks.
	ConfigureEngine(engine *webrtc.MediaEngine) error

	// Close stops the underlying capture devices.
	Close() error
}

// Source acquires local media. Acquisition can fail with
// ErrPermissionDenied or ErrDeviceNotFound, which callers surface
// to the user distinctly.
type Source interface {
	Acquire() (Stream, error)
}

// DeviceSource captures from the system camera and microphone via
// pion/mediadevices.
type DeviceSource struct {
	// VideoBitrate in bits per second. Zero selects the default.
	VideoBitrate int
}

// NewDeviceSource returns a source using the default capture settings.
func NewDeviceSource() *DeviceSource {
	return &DeviceSource{}
}

// Acquire opens the camera and microphone and returns their tracks.
func (d *DeviceSource) Acquire() (Stream, error) {
	bitrate := d.VideoBitrate
	if bitrate == 0 {
		bitrate = 1_000_000 // 1mbps
	}

	vp8Params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, classify(err)
	}
	vp8Params.BitRate = bitrate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, classify(err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vp8Params),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(640)
			c.Height = prop.Int(480)
		},
		Audio: func(c *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	})
	if err != nil {
		return nil, classify(err)
	}

	return &deviceStream{stream: stream, selector: selector}, nil
}

type deviceStream struct {
	stream   mediadevices.MediaStream
	selector *mediadevices.CodecSelector
}

func (s *deviceStream) Tracks() []webrtc.TrackLocal {
	mdTracks := s.stream.GetTracks()
	tracks := make([]webrtc.TrackLocal, 0, len(mdTracks))
	for _, t := range mdTracks {
		tracks = append(tracks, t)
	}
	return tracks
}

func (s *deviceStream) ConfigureEngine(engine *webrtc.MediaEngine) error {
	s.selector.Populate(engine)
	return nil
}

func (s *deviceStream) Close() error {
	for _, t := range s.stream.GetTracks() {
		t.Close()
	}
	return nil
}
