package app

import (
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
)

// meetingStateWire is the meeting_state payload: a MeetingInfo snapshot
// that may carry the full participant set.
type meetingStateWire struct {
	domain.MeetingInfo
	Participants []domain.Participant `json:"participants,omitempty"`
}

// chatWire is the chat_message payload: a ChatMessageEnvelope enriched
// with the sender identity by the relay.
type chatWire struct {
	ConversationID  string             `json:"conversationId"`
	ClientMessageID string             `json:"clientMessageId"`
	Kind            domain.MessageKind `json:"kind"`
	Payload         struct {
		Text    string            `json:"text,omitempty"`
		Image   *domain.ImageInfo `json:"image,omitempty"`
		Caption string            `json:"caption,omitempty"`
	} `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp int64          `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
	UserName  string         `json:"userName,omitempty"`
}

// Message converts the wire shape into the chat slice model.
func (w chatWire) Message() domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:        w.ClientMessageID,
		UserID:    w.UserID,
		UserName:  w.UserName,
		Content:   w.Payload.Text,
		Timestamp: w.Timestamp,
	}
	if w.Kind == domain.MessageKindImage && w.Payload.Image != nil {
		msg.Content = w.Payload.Caption
		msg.AttachmentURL = w.Payload.Image.Url
		msg.AttachmentName = w.Payload.Image.Name
	}
	return msg
}

type screenShareWire struct {
	Status domain.ScreenShareStatus `json:"status"`
}

type trackToggleWire struct {
	ID      string `json:"id"`
	Muted   *bool  `json:"muted,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Router dispatches one inbound envelope to exactly one handler. Each
// branch touches a single state slice, which keeps them independently
// testable. Unknown types are a no-op; malformed payloads are logged and
// dropped.
type Router struct {
	OnMeetingState     func(info domain.MeetingInfo, participants []domain.Participant, hasParticipants bool)
	OnParticipantJoin  func(p domain.Participant)
	OnParticipantLeave func(id string)
	OnChatMessage      func(msg domain.ChatMessage)
	OnStroke           func(s domain.Stroke)
	OnScreenShare      func(status domain.ScreenShareStatus)
	OnMeetingEnd       func()
	OnSignal           func(p SignalPayload)
	// OnParticipantPatch applies remote mute/camera toggles.
	OnParticipantPatch func(p domain.Participant)
}

// Route handles one envelope. Routing is total over the defined types.
func (r *Router) Route(env core.Envelope) {
	switch env.Type {
	case core.TypeMeetingState:
		var w meetingStateWire
		if !decode(env, &w) {
			return
		}
		r.OnMeetingState(w.MeetingInfo, w.Participants, w.Participants != nil)
	case core.TypeParticipantJoin:
		var p domain.Participant
		if !decode(env, &p) || p.ID == "" {
			return
		}
		r.OnParticipantJoin(p)
	case core.TypeParticipantLeave:
		var w struct {
			ID string `json:"id"`
		}
		if !decode(env, &w) || w.ID == "" {
			return
		}
		r.OnParticipantLeave(w.ID)
	case core.TypeChatMessage:
		var w chatWire
		if !decode(env, &w) {
			return
		}
		r.OnChatMessage(w.Message())
	case core.TypeWhiteboardEvent:
		var s domain.Stroke
		if !decode(env, &s) {
			return
		}
		r.OnStroke(s)
	case core.TypeScreenShare:
		var w screenShareWire
		if !decode(env, &w) {
			return
		}
		// Remote-driven status only; the local stream handle stays as is.
		r.OnScreenShare(w.Status)
	case core.TypeMeetingEnd:
		r.OnMeetingEnd()
	case core.TypeSignal:
		var p SignalPayload
		if !decode(env, &p) {
			return
		}
		r.OnSignal(p)
	case core.TypeMute:
		var w trackToggleWire
		if !decode(env, &w) || w.ID == "" || w.Muted == nil {
			return
		}
		r.OnParticipantPatch(domain.Participant{ID: w.ID, Muted: w.Muted})
	case core.TypeCamera:
		var w trackToggleWire
		if !decode(env, &w) || w.ID == "" || w.Enabled == nil {
			return
		}
		r.OnParticipantPatch(domain.Participant{ID: w.ID, VideoEnabled: w.Enabled})
	case core.TypeJoin:
		// Client-to-server only; nothing to do on receipt.
	default:
		log.Debug().Str("module", "router").Str("type", env.Type).Msg("unknown envelope type ignored")
	}
}

func decode(env core.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		log.Error().Err(err).Str("module", "router").Str("type", env.Type).Msg("bad payload, dropped")
		return false
	}
	return true
}
