// Package app hosts the session orchestrator: one event loop that owns
// the state slices, the envelope router, and the media negotiation
// engine for a meeting.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/capture"
	"github.com/collabkit/meet/internal/chat"
	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
	"github.com/collabkit/meet/internal/meetapi"
	"github.com/collabkit/meet/internal/state"
	"github.com/collabkit/meet/internal/whiteboard"
)

// Options wires a session to its collaborators. Channel and Capture are
// required; the rest are optional.
type Options struct {
	MeetingID string
	LocalName string
	Channel   core.SignalChannel
	Capture   *capture.Controller
	// NewLink creates the peer connection for media negotiation.
	NewLink func() (core.MediaConnection, error)
	// API seeds MeetingInfo independently of the channel when set.
	API *meetapi.Client
	// Surface receives whiteboard replays when set.
	Surface whiteboard.Surface
	// OnMeetingEnd is invoked when the server ends the meeting; exit
	// handling (navigation) belongs to the host application.
	OnMeetingEnd func()
}

// Session is the meeting orchestrator. All state mutation happens on one
// event loop: reducers, router dispatch, and negotiation transitions run
// to completion per event, so the slices need no locking. Suspension
// points are channel I/O, hardware acquisition, and description/candidate
// generation.
type Session struct {
	meetingID    string
	localName    string
	channel      core.SignalChannel
	capture      *capture.Controller
	api          *meetapi.Client
	surface      whiteboard.Surface
	onMeetingEnd func()

	builder *chat.Builder
	neg     *Negotiator
	router  *Router
	board   *whiteboard.Log
	pen     *whiteboard.Capturer

	meeting   state.MeetingState
	chatState state.ChatState
	share     state.ScreenShareState

	ctx      context.Context
	cmds     chan func()
	done     chan struct{}
	teardown sync.Once
}

// NewSession builds a session. Run must be called to start processing.
func NewSession(opts Options) *Session {
	name := opts.LocalName
	if name == "" {
		name = "Me"
	}
	s := &Session{
		meetingID:    opts.MeetingID,
		localName:    name,
		channel:      opts.Channel,
		capture:      opts.Capture,
		api:          opts.API,
		surface:      opts.Surface,
		onMeetingEnd: opts.OnMeetingEnd,
		builder:      chat.NewBuilder(),
		meeting:      state.NewMeetingState(),
		share:        state.NewScreenShareState(),
		ctx:          context.Background(),
		cmds:         make(chan func(), 64),
		done:         make(chan struct{}),
	}
	s.pen = whiteboard.NewCapturer(domain.LocalParticipantID)
	s.board = whiteboard.NewLog(s.emitStroke)
	s.neg = NewNegotiator(
		opts.NewLink,
		func(p SignalPayload) { s.post(func() { s.sendEnvelope(core.TypeSignal, p) }) },
		func(userID string, stream core.MediaHandle) {
			s.post(func() {
				s.meeting = state.ReduceMeeting(s.meeting, state.SetRemoteStream{UserID: userID, Stream: stream})
			})
		},
	)
	s.router = &Router{
		OnMeetingState:     s.applyMeetingState,
		OnParticipantJoin:  s.upsertParticipant,
		OnParticipantLeave: s.removeParticipant,
		OnChatMessage:      s.applyChatMessage,
		OnStroke:           s.applyStroke,
		OnScreenShare:      s.applyShareStatus,
		OnMeetingEnd:       s.applyMeetingEnd,
		OnSignal:           s.applySignal,
		OnParticipantPatch: s.upsertParticipant,
	}
	return s
}

// Run connects, acquires local media, and drains the event queue until
// the context is canceled or the session is torn down.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx

	s.seedMeetingInfo(ctx)

	if err := s.channel.Connect(ctx, s.meetingID); err != nil {
		// Degraded session: local features keep working, sends are no-ops.
		log.Error().Err(err).Str("module", "session").Msg("signaling connect failed")
	}
	s.setupLocalMedia(ctx)

	envelopes := s.channel.Envelopes()
	states := s.channel.States()
	for {
		select {
		case <-ctx.Done():
			s.Teardown()
			return ctx.Err()
		case <-s.done:
			return nil
		case cmd := <-s.cmds:
			cmd()
		case st := <-states:
			s.meeting = state.ReduceMeeting(s.meeting, state.SetConnection{State: st})
		case env, ok := <-envelopes:
			if !ok {
				// Transport gone; keep serving local commands.
				envelopes = nil
				continue
			}
			s.router.Route(env)
		}
	}
}

func (s *Session) seedMeetingInfo(ctx context.Context) {
	if s.api == nil {
		return
	}
	info, err := s.api.GetMeeting(ctx, s.meetingID)
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Str("meeting", s.meetingID).Msg("meeting info fetch failed")
		return
	}
	s.meeting = state.ReduceMeeting(s.meeting, state.SetMeeting{Meeting: info})
}

func (s *Session) setupLocalMedia(ctx context.Context) {
	s.upsertParticipant(domain.Participant{
		ID:           domain.LocalParticipantID,
		Name:         s.localName,
		Muted:        domain.Bool(false),
		VideoEnabled: domain.Bool(true),
	})

	stream, err := s.capture.AcquireUserMedia(ctx)
	if err != nil {
		// Camera/mic stay unavailable until the user retries.
		log.Error().Err(err).Str("module", "session").Msg("user media unavailable")
		return
	}
	s.meeting = state.ReduceMeeting(s.meeting, state.SetLocalStream{Stream: stream})

	tracks := make([]webrtc.TrackLocal, 0, len(stream.Tracks()))
	for _, t := range stream.Tracks() {
		tracks = append(tracks, t.Local())
	}
	if err := s.neg.Initiate(ctx, tracks); err != nil {
		log.Error().Err(err).Str("module", "session").Msg("media negotiation failed to start")
	}
}

// post schedules a command onto the event loop.
func (s *Session) post(cmd func()) {
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

// Inspect runs fn on the event loop against the current slices and waits
// for it. After teardown it runs fn inline; the loop is gone and nothing
// mutates anymore.
func (s *Session) Inspect(fn func(m state.MeetingState, c state.ChatState, sh state.ScreenShareState)) {
	ran := make(chan struct{})
	select {
	case s.cmds <- func() { fn(s.meeting, s.chatState, s.share); close(ran) }:
		select {
		case <-ran:
		case <-s.done:
		}
	case <-s.done:
		fn(s.meeting, s.chatState, s.share)
	}
}

// WhiteboardStrokes returns a copy of the stroke log. The read runs on
// the event loop so it never races with pointer input being applied.
func (s *Session) WhiteboardStrokes() []domain.Stroke {
	var out []domain.Stroke
	ran := make(chan struct{})
	select {
	case s.cmds <- func() { out = s.board.Strokes(); close(ran) }:
		select {
		case <-ran:
		case <-s.done:
		}
	case <-s.done:
		out = s.board.Strokes()
	}
	return out
}

func (s *Session) sendEnvelope(typ string, data any) {
	env, err := core.NewEnvelope(typ, data)
	if err != nil {
		log.Error().Err(err).Str("module", "session").Str("type", typ).Msg("encode envelope")
		return
	}
	if err := s.channel.Send(env); err != nil {
		// At-most-once: a send on a dead or saturated channel is dropped.
		log.Debug().Err(err).Str("module", "session").Str("type", typ).Msg("send dropped")
	}
}

// --- router handlers; each touches exactly one slice ---

func (s *Session) applyMeetingState(info domain.MeetingInfo, participants []domain.Participant, hasParticipants bool) {
	s.meeting = state.ReduceMeeting(s.meeting, state.SetMeeting{Meeting: info})
	if !hasParticipants {
		return
	}
	local, hadLocal := s.meeting.Participant(domain.LocalParticipantID)
	s.meeting = state.ReduceMeeting(s.meeting, state.SetParticipants{Participants: participants})
	if hadLocal {
		// The local participant is synthesized here and survives any
		// server-driven replacement of the set.
		s.meeting = state.ReduceMeeting(s.meeting, state.UpsertParticipant{Participant: local})
	}
}

func (s *Session) upsertParticipant(p domain.Participant) {
	s.meeting = state.ReduceMeeting(s.meeting, state.UpsertParticipant{Participant: p})
}

func (s *Session) removeParticipant(id string) {
	s.meeting = state.ReduceMeeting(s.meeting, state.RemoveParticipant{ID: id})
	s.meeting = state.ReduceMeeting(s.meeting, state.SetRemoteStream{UserID: id, Stream: nil})
}

func (s *Session) applyChatMessage(msg domain.ChatMessage) {
	if msg.ID != "" && s.chatState.HasMessage(msg.ID) {
		// Relay echo of our own optimistic append.
		return
	}
	s.chatState = state.ReduceChat(s.chatState, state.PushMessage{Message: msg})
}

func (s *Session) applyStroke(stroke domain.Stroke) {
	s.board.Apply(stroke)
	s.replay()
}

func (s *Session) applyShareStatus(status domain.ScreenShareStatus) {
	s.share = state.ReduceScreenShare(s.share, state.SetShareStatus{Status: status})
}

func (s *Session) applyMeetingEnd() {
	log.Info().Str("module", "session").Str("meeting", s.meetingID).Msg("meeting ended by server")
	if s.onMeetingEnd != nil {
		s.onMeetingEnd()
	}
	s.Teardown()
}

func (s *Session) applySignal(p SignalPayload) {
	if err := s.neg.HandleSignal(p); err != nil {
		// Negotiation may stall; observable through its state, no retry.
		log.Warn().Err(err).Str("module", "session").Msg("signal handling failed")
	}
}

// --- user-driven operations ---

// SendChat validates, applies optimistically, and sends. Validation
// failures surface before any network or state effect.
func (s *Session) SendChat(params chat.SendParams) error {
	if params.ConversationID == "" {
		params.ConversationID = s.meetingID
	}
	env, err := s.builder.Build(params)
	if err != nil {
		return err
	}
	s.post(func() {
		wire := s.enrichEnvelope(env)
		s.chatState = state.ReduceChat(s.chatState, state.PushMessage{Message: wire.Message()})
		s.sendEnvelope(core.TypeChatMessage, wire)
	})
	return nil
}

func (s *Session) enrichEnvelope(env domain.ChatMessageEnvelope) chatWire {
	local, _ := s.meeting.Participant(domain.LocalParticipantID)
	w := chatWire{
		ConversationID:  env.ConversationID,
		ClientMessageID: env.ClientMessageID,
		Kind:            env.Kind,
		Metadata:        env.Metadata,
		Timestamp:       env.Timestamp,
		UserID:          domain.LocalParticipantID,
		UserName:        local.Name,
	}
	switch p := env.Payload.(type) {
	case domain.TextPayload:
		w.Payload.Text = p.Text
	case domain.ImagePayload:
		img := p.Image
		w.Payload.Image = &img
		w.Payload.Caption = p.Caption
	}
	return w
}

// ToggleMute flips microphone enablement and announces the new state.
func (s *Session) ToggleMute() {
	s.post(func() {
		local, ok := s.meeting.Participant(domain.LocalParticipantID)
		if !ok {
			return
		}
		muted := !local.IsMuted()
		if err := s.capture.SetAudioEnabled(!muted); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("mute toggle without local stream")
			return
		}
		s.upsertParticipant(domain.Participant{ID: domain.LocalParticipantID, Muted: domain.Bool(muted)})
		s.sendEnvelope(core.TypeMute, map[string]any{"id": domain.LocalParticipantID, "muted": muted})
	})
}

// ToggleCamera flips camera enablement and announces the new state.
func (s *Session) ToggleCamera() {
	s.post(func() {
		local, ok := s.meeting.Participant(domain.LocalParticipantID)
		if !ok {
			return
		}
		enabled := !local.HasVideo()
		if err := s.capture.SetVideoEnabled(enabled); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("camera toggle without local stream")
			return
		}
		s.upsertParticipant(domain.Participant{ID: domain.LocalParticipantID, VideoEnabled: domain.Bool(enabled)})
		s.sendEnvelope(core.TypeCamera, map[string]any{"id": domain.LocalParticipantID, "enabled": enabled})
	})
}

// ToggleScreenShare starts or stops the single local screen share.
func (s *Session) ToggleScreenShare() {
	s.post(func() { s.toggleScreenShare() })
}

func (s *Session) toggleScreenShare() {
	switch s.share.Status {
	case domain.ScreenShareSharing:
		s.capture.ReleaseDisplay()
		s.share = state.ReduceScreenShare(s.share, state.SetShareStream{Stream: nil})
		s.share = state.ReduceScreenShare(s.share, state.SetShareStatus{Status: domain.ScreenShareIdle})
		s.sendEnvelope(core.TypeScreenShare, screenShareWire{Status: domain.ScreenShareIdle})
	case domain.ScreenShareStarting:
		// Attempt in flight.
	default:
		// idle or error: a new attempt resets the machine.
		s.share = state.ReduceScreenShare(s.share, state.SetShareStatus{Status: domain.ScreenShareStarting})
		stream, err := s.capture.AcquireDisplay(s.ctx)
		if err != nil {
			log.Error().Err(err).Str("module", "session").Msg("screen capture failed")
			s.share = state.ReduceScreenShare(s.share, state.SetShareStatus{Status: domain.ScreenShareError})
			return
		}
		stream.OnEnded(func() { s.post(s.shareEnded) })
		s.share = state.ReduceScreenShare(s.share, state.SetShareStream{Stream: stream})
		s.share = state.ReduceScreenShare(s.share, state.SetShareStatus{Status: domain.ScreenShareSharing})
		s.sendEnvelope(core.TypeScreenShare, screenShareWire{Status: domain.ScreenShareSharing})
	}
}

// shareEnded handles the captured track ending underneath the session:
// the user stopped the share at the OS level rather than through the
// toggle. An explicit stop reaches idle first and makes this a no-op.
func (s *Session) shareEnded() {
	if s.share.Status != domain.ScreenShareSharing {
		return
	}
	log.Info().Str("module", "session").Msg("screen share ended by device")
	s.capture.ReleaseDisplay()
	s.share = state.ReduceScreenShare(s.share, state.SetShareStream{Stream: nil})
	s.share = state.ReduceScreenShare(s.share, state.SetShareStatus{Status: domain.ScreenShareIdle})
	s.sendEnvelope(core.TypeScreenShare, screenShareWire{Status: domain.ScreenShareIdle})
}

// ToggleRecording starts the recorder or flushes it into one artifact.
func (s *Session) ToggleRecording() {
	s.post(func() {
		if s.meeting.Recording {
			name := fmt.Sprintf("meeting-%s.webm", s.meetingID)
			if art, err := s.capture.StopRecording(name); err != nil {
				if !errors.Is(err, capture.ErrNotRecording) {
					log.Error().Err(err).Str("module", "session").Msg("recording flush failed")
				}
			} else {
				log.Info().Str("module", "session").Str("path", art.Path).Int64("size", art.Size).Msg("recording saved")
			}
			s.meeting = state.ReduceMeeting(s.meeting, state.SetRecording{Recording: false})
			return
		}
		if err := s.capture.StartRecording(); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("recording unavailable")
			return
		}
		s.meeting = state.ReduceMeeting(s.meeting, state.SetRecording{Recording: true})
	})
}

// --- whiteboard input ---

// SetPenStyle updates the local pen.
func (s *Session) SetPenStyle(color string, size int) {
	s.post(func() { s.pen.SetStyle(color, size) })
}

// PointerDown starts a stroke capture.
func (s *Session) PointerDown(p domain.Point) {
	s.post(func() { s.pen.PointerDown(p) })
}

// PointerMove extends the active capture and refreshes the overlay.
func (s *Session) PointerMove(p domain.Point) {
	s.post(func() {
		s.pen.PointerMove(p)
		s.replay()
	})
}

// PointerUp finalizes the capture; a real stroke is appended and emitted.
func (s *Session) PointerUp() {
	s.post(func() {
		if stroke, ok := s.pen.PointerUp(); ok {
			s.board.Append(stroke)
		}
		s.replay()
	})
}

// PointerLeave cancels the capture.
func (s *Session) PointerLeave() {
	s.post(func() {
		s.pen.Leave()
		s.replay()
	})
}

func (s *Session) emitStroke(stroke domain.Stroke) {
	s.sendEnvelope(core.TypeWhiteboardEvent, stroke)
}

func (s *Session) replay() {
	if s.surface == nil {
		return
	}
	var inProgress *domain.Stroke
	if cur, ok := s.pen.Current(); ok {
		inProgress = &cur
	}
	s.board.Replay(s.surface, inProgress)
}

// --- lifecycle ---

// Leave tears the session down on user request.
func (s *Session) Leave() { s.Teardown() }

// Teardown closes the channel, then the peer link, then releases all
// locally held hardware. Every step runs regardless of earlier ones, and
// calling it again is a no-op.
func (s *Session) Teardown() {
	s.teardown.Do(func() {
		s.channel.Close()
		s.neg.Close()
		s.capture.ReleaseAll()
		close(s.done)
		log.Info().Str("module", "session").Str("meeting", s.meetingID).Msg("session torn down")
	})
}
