package capture

import (
	"context"
	"testing"
)

func TestSyntheticUserMediaHasBothKinds(t *testing.T) {
	s, err := SyntheticProvider{}.OpenUserMedia(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if len(s.AudioTracks()) != 1 || len(s.VideoTracks()) != 1 {
		t.Fatalf("expected one audio and one video track, got %d/%d",
			len(s.AudioTracks()), len(s.VideoTracks()))
	}
}

func TestSyntheticDisplayHasNoAudioTrack(t *testing.T) {
	s, err := SyntheticProvider{}.OpenDisplay(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if len(s.AudioTracks()) != 0 {
		t.Fatalf("screen capture must not open a microphone, got %d audio tracks", len(s.AudioTracks()))
	}
	if len(s.VideoTracks()) != 1 {
		t.Fatalf("expected one video track, got %d", len(s.VideoTracks()))
	}
}

func TestStreamOnEndedFiresOnce(t *testing.T) {
	s, err := SyntheticProvider{}.OpenUserMedia(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fired := 0
	s.OnEnded(func() { fired++ })

	// Both tracks end on close, but the stream reports it once.
	s.Close()
	s.Close()

	if fired != 1 {
		t.Fatalf("ended must fire exactly once per stream, got %d", fired)
	}
}

func TestTrackStopFiresEnded(t *testing.T) {
	s, err := SyntheticProvider{}.OpenDisplay(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fired := 0
	s.OnEnded(func() { fired++ })

	s.VideoTracks()[0].Stop()
	if fired != 1 {
		t.Fatalf("stopping the only track must end the stream, got %d", fired)
	}
	if s.VideoTracks()[0].Enabled() {
		t.Fatal("a stopped track must not read as enabled")
	}
}
