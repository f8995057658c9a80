package capture

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/collabkit/meet/internal/domain"
)

// sampleTrack wraps a pion sample track with an enablement flag. Enabled
// is consulted by whoever pumps samples; disabling does not stop the
// track.
type sampleTrack struct {
	local *webrtc.TrackLocalStaticSample
	kind  webrtc.RTPCodecType

	mu      sync.Mutex
	enabled bool
	stopped bool
	onEnded func()
}

func newSampleTrack(kind webrtc.RTPCodecType, codec webrtc.RTPCodecCapability, id, streamID string) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	return &sampleTrack{local: local, kind: kind, enabled: true}, nil
}

func (t *sampleTrack) ID() string                { return t.local.ID() }
func (t *sampleTrack) Kind() webrtc.RTPCodecType { return t.kind }
func (t *sampleTrack) Local() webrtc.TrackLocal  { return t.local }

func (t *sampleTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.stopped
}

func (t *sampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *sampleTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	ended := t.onEnded
	t.mu.Unlock()
	if ended != nil {
		ended()
	}
}

func (t *sampleTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// SyntheticProvider produces silent/blank pion tracks. It stands in for
// real devices on hosts without capture hardware and in tests.
type SyntheticProvider struct{}

func (SyntheticProvider) open(streamID string, withAudio, withVideo bool) (*Stream, error) {
	var tracks []Track
	if withAudio {
		audio, err := newSampleTrack(
			webrtc.RTPCodecTypeAudio,
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio-"+streamID, streamID,
		)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, audio)
	}
	if withVideo {
		video, err := newSampleTrack(
			webrtc.RTPCodecTypeVideo,
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video-"+streamID, streamID,
		)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, video)
	}
	return NewStream(streamID, tracks...), nil
}

// OpenUserMedia returns a synthetic camera+microphone stream.
func (p SyntheticProvider) OpenUserMedia(_ context.Context) (*Stream, error) {
	return p.open("cam-"+domain.NewID(), true, true)
}

// OpenDisplay returns a synthetic screen-capture stream. Screen capture
// has no microphone leg.
func (p SyntheticProvider) OpenDisplay(_ context.Context) (*Stream, error) {
	return p.open("screen-"+domain.NewID(), false, true)
}
