package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/collabkit/meet/internal/capture"
	"github.com/collabkit/meet/internal/chat"
	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
	"github.com/collabkit/meet/internal/state"
)

type fakeChannel struct {
	mu        sync.Mutex
	sent      []core.Envelope
	closed    int
	envelopes chan core.Envelope
	states    chan core.ConnectionState
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		envelopes: make(chan core.Envelope, 32),
		states:    make(chan core.ConnectionState, 8),
	}
}

func (c *fakeChannel) Connect(context.Context, string) error { return nil }

func (c *fakeChannel) Send(env core.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeChannel) Envelopes() <-chan core.Envelope     { return c.envelopes }
func (c *fakeChannel) States() <-chan core.ConnectionState { return c.states }

func (c *fakeChannel) Close() {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
}

func (c *fakeChannel) sentOfType(typ string) []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []core.Envelope{}
	for _, e := range c.sent {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func startSession(t *testing.T, ch *fakeChannel) *Session {
	t.Helper()
	s := NewSession(Options{
		MeetingID: "m1",
		LocalName: "Me",
		Channel:   ch,
		Capture:   capture.NewController(capture.SyntheticProvider{}, t.TempDir()),
		NewLink:   func() (core.MediaConnection, error) { return &fakeLink{}, nil },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(s.Teardown)
	return s
}

// waitFor polls the session until cond observes the expected state.
func waitFor(t *testing.T, s *Session, what string, cond func(m state.MeetingState, c state.ChatState, sh state.ScreenShareState) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		s.Inspect(func(m state.MeetingState, c state.ChatState, sh state.ScreenShareState) {
			ok = cond(m, c, sh)
		})
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMeetingStateReplacementKeepsLocalParticipant(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	waitFor(t, s, "local participant", func(m state.MeetingState, _ state.ChatState, _ state.ScreenShareState) bool {
		_, ok := m.Participant(domain.LocalParticipantID)
		return ok
	})

	ch.envelopes <- envOf(t, core.TypeMeetingState, map[string]any{
		"id":           "m1",
		"topic":        "kickoff",
		"participants": []map[string]any{{"id": "u1", "name": "Alice"}, {"id": "u2", "name": "Bob"}},
	})

	waitFor(t, s, "server participant set", func(m state.MeetingState, _ state.ChatState, _ state.ScreenShareState) bool {
		if len(m.Participants) != 3 {
			return false
		}
		_, hasLocal := m.Participant(domain.LocalParticipantID)
		_, hasAlice := m.Participant("u1")
		return hasLocal && hasAlice && m.Meeting != nil && m.Meeting.Topic == "kickoff"
	})
}

func TestChatEchoIsDeduplicated(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	if err := s.SendChat(chat.SendParams{Kind: domain.MessageKindText, Text: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, s, "optimistic append", func(_ state.MeetingState, c state.ChatState, _ state.ScreenShareState) bool {
		return len(c.Messages) == 1
	})

	outbound := ch.sentOfType(core.TypeChatMessage)
	if len(outbound) != 1 {
		t.Fatalf("expected one outbound chat envelope, got %d", len(outbound))
	}

	// The relay echoes our own envelope back; it must not double-append.
	ch.envelopes <- outbound[0]
	// A genuinely new message still lands.
	ch.envelopes <- envOf(t, core.TypeChatMessage, map[string]any{
		"clientMessageId": "other-1",
		"kind":            "text",
		"payload":         map[string]any{"text": "hi back"},
		"userId":          "u2",
	})

	waitFor(t, s, "remote message", func(_ state.MeetingState, c state.ChatState, _ state.ScreenShareState) bool {
		return len(c.Messages) == 2 && c.Messages[1].UserID == "u2"
	})
}

func TestSendChatValidationFailsBeforeAnyEffect(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	err := s.SendChat(chat.SendParams{Kind: domain.MessageKindText, Text: "   "})
	if err == nil {
		t.Fatal("expected validation error")
	}

	s.Inspect(func(_ state.MeetingState, c state.ChatState, _ state.ScreenShareState) {
		if len(c.Messages) != 0 {
			t.Fatalf("rejected send must not touch state: %+v", c.Messages)
		}
	})
	if len(ch.sentOfType(core.TypeChatMessage)) != 0 {
		t.Fatal("rejected send must not hit the wire")
	}
}

func TestParticipantLeaveClearsRemoteBinding(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	s.post(func() {
		s.meeting = state.ReduceMeeting(s.meeting, state.UpsertParticipant{Participant: domain.Participant{ID: "u1", Name: "Alice"}})
		s.meeting = state.ReduceMeeting(s.meeting, state.SetRemoteStream{UserID: "u1", Stream: remoteStream{id: "rs-1"}})
	})
	waitFor(t, s, "remote binding", func(m state.MeetingState, _ state.ChatState, _ state.ScreenShareState) bool {
		_, ok := m.RemoteStreams["u1"]
		return ok
	})

	ch.envelopes <- envOf(t, core.TypeParticipantLeave, map[string]string{"id": "u1"})

	waitFor(t, s, "binding removed", func(m state.MeetingState, _ state.ChatState, _ state.ScreenShareState) bool {
		_, hasStream := m.RemoteStreams["u1"]
		_, hasParticipant := m.Participant("u1")
		return !hasStream && !hasParticipant
	})
}

func TestScreenShareToggleRoundTrip(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	s.ToggleScreenShare()
	waitFor(t, s, "sharing", func(_ state.MeetingState, _ state.ChatState, sh state.ScreenShareState) bool {
		return sh.Status == domain.ScreenShareSharing && sh.Stream != nil
	})

	s.ToggleScreenShare()
	waitFor(t, s, "idle again", func(_ state.MeetingState, _ state.ChatState, sh state.ScreenShareState) bool {
		return sh.Status == domain.ScreenShareIdle && sh.Stream == nil
	})

	if got := len(ch.sentOfType(core.TypeScreenShare)); got != 2 {
		t.Fatalf("expected start+stop announcements, got %d", got)
	}
}

func TestShareEndedByDeviceReturnsToIdle(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	s.ToggleScreenShare()
	var display *capture.Stream
	waitFor(t, s, "sharing", func(_ state.MeetingState, _ state.ChatState, sh state.ScreenShareState) bool {
		if sh.Status != domain.ScreenShareSharing {
			return false
		}
		display, _ = sh.Stream.(*capture.Stream)
		return display != nil
	})

	// The user stops the share at the OS level: the track ends underneath
	// the session without the toggle being touched.
	display.VideoTracks()[0].Stop()

	waitFor(t, s, "idle after device stop", func(_ state.MeetingState, _ state.ChatState, sh state.ScreenShareState) bool {
		return sh.Status == domain.ScreenShareIdle && sh.Stream == nil
	})

	sent := ch.sentOfType(core.TypeScreenShare)
	if len(sent) != 2 {
		t.Fatalf("expected sharing+idle announcements, got %d", len(sent))
	}
	var w struct {
		Status domain.ScreenShareStatus `json:"status"`
	}
	if err := sent[1].Decode(&w); err != nil || w.Status != domain.ScreenShareIdle {
		t.Fatalf("idle not announced: %+v err=%v", w, err)
	}

	// A later toggle starts a fresh share rather than tripping on the
	// released one.
	s.ToggleScreenShare()
	waitFor(t, s, "sharing again", func(_ state.MeetingState, _ state.ChatState, sh state.ScreenShareState) bool {
		return sh.Status == domain.ScreenShareSharing
	})
}

func TestWhiteboardReadsDoNotRaceWithDrawing(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	const strokes = 20
	drawn := make(chan struct{})
	go func() {
		defer close(drawn)
		for i := 0; i < strokes; i++ {
			s.PointerDown(domain.Point{X: float64(i), Y: 0})
			s.PointerMove(domain.Point{X: float64(i), Y: 1})
			s.PointerUp()
		}
	}()

	// Concurrent reads while the loop applies pointer input.
	for i := 0; i < strokes; i++ {
		_ = s.WhiteboardStrokes()
	}
	<-drawn

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.WhiteboardStrokes()) == strokes {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d strokes, got %d", strokes, len(s.WhiteboardStrokes()))
}

func TestToggleMuteAnnouncesAndPatchesLocal(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	waitFor(t, s, "local media", func(m state.MeetingState, _ state.ChatState, _ state.ScreenShareState) bool {
		return m.LocalStream != nil
	})

	s.ToggleMute()
	waitFor(t, s, "muted", func(m state.MeetingState, _ state.ChatState, _ state.ScreenShareState) bool {
		p, ok := m.Participant(domain.LocalParticipantID)
		return ok && p.IsMuted()
	})
	if len(ch.sentOfType(core.TypeMute)) != 1 {
		t.Fatal("mute not announced")
	}
}

func TestTeardownIsIdempotentAndOrdered(t *testing.T) {
	ch := newFakeChannel()
	s := startSession(t, ch)

	s.Teardown()
	s.Teardown()
	s.Leave()

	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed != 1 {
		t.Fatalf("channel must close exactly once, got %d", closed)
	}

	select {
	case <-s.done:
	default:
		t.Fatal("done not closed after teardown")
	}
}

func TestMeetingEndTearsDownAndNotifies(t *testing.T) {
	ch := newFakeChannel()
	ended := make(chan struct{})
	s := NewSession(Options{
		MeetingID:    "m1",
		Channel:      ch,
		Capture:      capture.NewController(capture.SyntheticProvider{}, t.TempDir()),
		NewLink:      func() (core.MediaConnection, error) { return &fakeLink{}, nil },
		OnMeetingEnd: func() { close(ended) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	ch.envelopes <- core.Envelope{Type: core.TypeMeetingEnd}

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("meeting end callback not invoked")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run should return nil after server-side end, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not exit after meeting end")
	}
}
