package core

import "encoding/json"

// Envelope is one discrete message unit on the signaling channel: a type
// tag plus an opaque data payload. The same shape is used in both
// directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Envelope types understood by the session. Unknown types are a
// forward-compatible no-op, never fatal.
const (
	TypeJoin             = "join"
	TypeSignal           = "signal"
	TypeChatMessage      = "chat_message"
	TypeWhiteboardEvent  = "whiteboard_event"
	TypeScreenShare      = "screen_share"
	TypeMute             = "mute"
	TypeCamera           = "camera"
	TypeMeetingState     = "meeting_state"
	TypeParticipantJoin  = "participant_join"
	TypeParticipantLeave = "participant_leave"
	TypeMeetingEnd       = "meeting_end"
)

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(typ string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Data: raw}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
