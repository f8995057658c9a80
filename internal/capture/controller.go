// Package capture owns local hardware stream lifetimes: camera+microphone,
// screen capture, and the recording sink. No other component may stop
// tracks or mutate track enablement.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotAcquired is returned for toggles on a stream that was never
	// acquired.
	ErrNotAcquired = errors.New("capture: stream not acquired")
	// ErrNoLocalStream is returned when recording is started without an
	// active camera+microphone stream.
	ErrNoLocalStream = errors.New("capture: no local stream to record")
	// ErrNotRecording is returned by StopRecording when no recording is
	// active; a finished recording flushes exactly once.
	ErrNotRecording = errors.New("capture: not recording")
)

// Track is one enableable media track inside an acquired stream.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Enabled() bool
	SetEnabled(bool)
	Stop()
	// OnEnded sets a callback fired when the track stops delivering media,
	// whether through Stop or through the device going away underneath it.
	OnEnded(func())
	// Local exposes the track for attachment to a peer connection. The
	// peer link reads it; it never mutates enablement.
	Local() webrtc.TrackLocal
}

// Stream is one acquired hardware stream. It satisfies core.MediaHandle.
type Stream struct {
	id     string
	tracks []Track
}

func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns all tracks of the stream.
func (s *Stream) Tracks() []Track { return append([]Track(nil), s.tracks...) }

func (s *Stream) tracksOf(kind webrtc.RTPCodecType) []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// AudioTracks returns the audio tracks of the stream.
func (s *Stream) AudioTracks() []Track { return s.tracksOf(webrtc.RTPCodecTypeAudio) }

// VideoTracks returns the video tracks of the stream.
func (s *Stream) VideoTracks() []Track { return s.tracksOf(webrtc.RTPCodecTypeVideo) }

// OnEnded registers fn to run once, when the first track of the stream
// ends. This is how the session observes the user stopping a screen
// share at the OS level rather than through the in-app toggle.
func (s *Stream) OnEnded(fn func()) {
	var once sync.Once
	for _, t := range s.tracks {
		t.OnEnded(func() { once.Do(fn) })
	}
}

// Close stops every track. Safe to call more than once.
func (s *Stream) Close() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Provider acquires hardware streams. Acquisition may fail (permission
// denied, device busy); a failed acquire must leave no live resources
// behind.
type Provider interface {
	OpenUserMedia(ctx context.Context) (*Stream, error)
	OpenDisplay(ctx context.Context) (*Stream, error)
}

// Artifact is one finished recording, flushed to disk.
type Artifact struct {
	Path string
	Size int64
}

type recording struct {
	chunks [][]byte
}

// Controller manages the three independent resource lifetimes. Each
// release path is idempotent and runs on every session exit.
type Controller struct {
	provider Provider
	outDir   string

	mu      sync.Mutex
	local   *Stream
	display *Stream
	rec     *recording
}

// NewController creates a controller acquiring through provider and
// writing recording artifacts into outDir.
func NewController(provider Provider, outDir string) *Controller {
	return &Controller{provider: provider, outDir: outDir}
}

// AcquireUserMedia opens the camera+microphone stream. Repeated calls
// return the already-acquired stream. On failure state is unchanged.
func (c *Controller) AcquireUserMedia(ctx context.Context) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local != nil {
		return c.local, nil
	}
	s, err := c.provider.OpenUserMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: user media: %w", err)
	}
	c.local = s
	log.Info().Str("module", "capture").Str("stream", s.ID()).Msg("user media acquired")
	return s, nil
}

// AcquireDisplay opens the screen-capture stream. Repeated calls return
// the already-acquired stream. On failure state is unchanged.
func (c *Controller) AcquireDisplay(ctx context.Context) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.display != nil {
		return c.display, nil
	}
	s, err := c.provider.OpenDisplay(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: display: %w", err)
	}
	c.display = s
	log.Info().Str("module", "capture").Str("stream", s.ID()).Msg("display acquired")
	return s, nil
}

// LocalStream returns the acquired camera+microphone stream, if any.
func (c *Controller) LocalStream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// DisplayStream returns the acquired screen-capture stream, if any.
func (c *Controller) DisplayStream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}

// SetAudioEnabled toggles microphone track enablement on the acquired
// stream. Mute is not re-acquisition.
func (c *Controller) SetAudioEnabled(enabled bool) error {
	return c.setEnabled(webrtc.RTPCodecTypeAudio, enabled)
}

// SetVideoEnabled toggles camera track enablement on the acquired stream.
func (c *Controller) SetVideoEnabled(enabled bool) error {
	return c.setEnabled(webrtc.RTPCodecTypeVideo, enabled)
}

func (c *Controller) setEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return ErrNotAcquired
	}
	for _, t := range c.local.tracksOf(kind) {
		t.SetEnabled(enabled)
	}
	return nil
}

// StartRecording begins accumulating chunks. Requires an active local
// stream.
func (c *Controller) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return ErrNoLocalStream
	}
	if c.rec != nil {
		return nil
	}
	c.rec = &recording{}
	log.Info().Str("module", "capture").Msg("recording started")
	return nil
}

// Recording reports whether a recording is active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil
}

// AppendRecordingChunk adds one media chunk to the active recording.
// Chunks arriving while no recording is active are dropped.
func (c *Controller) AppendRecordingChunk(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil || len(chunk) == 0 {
		return
	}
	c.rec.chunks = append(c.rec.chunks, chunk)
}

// StopRecording flushes the accumulated chunks into one downloadable
// artifact, exactly once per recording session.
func (c *Controller) StopRecording(name string) (Artifact, error) {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()
	if rec == nil {
		return Artifact{}, ErrNotRecording
	}

	var buf []byte
	for _, chunk := range rec.chunks {
		buf = append(buf, chunk...)
	}
	path := filepath.Join(c.outDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("capture: flush recording: %w", err)
	}
	log.Info().Str("module", "capture").Str("path", path).Int("size", len(buf)).Msg("recording flushed")
	return Artifact{Path: path, Size: int64(len(buf))}, nil
}

// ReleaseDisplay stops the screen-capture stream. Safe to call even if
// never acquired.
func (c *Controller) ReleaseDisplay() {
	c.mu.Lock()
	s := c.display
	c.display = nil
	c.mu.Unlock()
	if s != nil {
		s.Close()
		log.Info().Str("module", "capture").Str("stream", s.ID()).Msg("display released")
	}
}

// ReleaseAll stops every acquired stream and aborts any active recording
// without flushing. Idempotent; runs on every session exit path.
func (c *Controller) ReleaseAll() {
	c.mu.Lock()
	local, display := c.local, c.display
	c.local, c.display, c.rec = nil, nil, nil
	c.mu.Unlock()
	if local != nil {
		local.Close()
	}
	if display != nil {
		display.Close()
	}
	if local != nil || display != nil {
		log.Info().Str("module", "capture").Msg("hardware released")
	}
}
