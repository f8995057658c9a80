// Package state holds the session state store: three independently reduced
// slices, each a pure function of (state, action). Reducers never touch
// transport or hardware resources, which keeps replay deterministic.
package state

import (
	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
)

// MeetingState is the meeting/participants/connection slice.
type MeetingState struct {
	Meeting       *domain.MeetingInfo
	Participants  []domain.Participant
	LocalStream   core.MediaHandle
	RemoteStreams map[string]core.MediaHandle
	Recording     bool
	Connection    core.ConnectionState
}

// NewMeetingState returns the initial slice value.
func NewMeetingState() MeetingState {
	return MeetingState{
		RemoteStreams: map[string]core.MediaHandle{},
		Connection:    core.StateIdle,
	}
}

// MeetingAction is the tagged union consumed by ReduceMeeting.
type MeetingAction interface{ isMeetingAction() }

type SetMeeting struct{ Meeting domain.MeetingInfo }

// SetParticipants replaces the whole participant set.
type SetParticipants struct{ Participants []domain.Participant }

// UpsertParticipant merges the patch onto an existing entry by id, or
// inserts it.
type UpsertParticipant struct{ Participant domain.Participant }

// RemoveParticipant removes by id. The local participant is never removed.
type RemoveParticipant struct{ ID string }

type SetLocalStream struct{ Stream core.MediaHandle }

// SetRemoteStream binds an inbound stream to a participant id. A nil stream
// removes the binding entirely.
type SetRemoteStream struct {
	UserID string
	Stream core.MediaHandle
}

type SetRecording struct{ Recording bool }

type SetConnection struct{ State core.ConnectionState }

func (SetMeeting) isMeetingAction()        {}
func (SetParticipants) isMeetingAction()   {}
func (UpsertParticipant) isMeetingAction() {}
func (RemoveParticipant) isMeetingAction() {}
func (SetLocalStream) isMeetingAction()    {}
func (SetRemoteStream) isMeetingAction()   {}
func (SetRecording) isMeetingAction()      {}
func (SetConnection) isMeetingAction()     {}

// ReduceMeeting applies one action. Unknown actions return the state
// unchanged.
func ReduceMeeting(s MeetingState, a MeetingAction) MeetingState {
	switch act := a.(type) {
	case SetMeeting:
		m := act.Meeting
		s.Meeting = &m
		return s
	case SetParticipants:
		s.Participants = append([]domain.Participant(nil), act.Participants...)
		return s
	case UpsertParticipant:
		out := make([]domain.Participant, len(s.Participants))
		found := false
		for i, p := range s.Participants {
			if p.ID == act.Participant.ID {
				out[i] = p.Merge(act.Participant)
				found = true
			} else {
				out[i] = p
			}
		}
		if !found {
			out = append(out, act.Participant)
		}
		s.Participants = out
		return s
	case RemoveParticipant:
		if act.ID == domain.LocalParticipantID {
			return s
		}
		out := make([]domain.Participant, 0, len(s.Participants))
		for _, p := range s.Participants {
			if p.ID != act.ID {
				out = append(out, p)
			}
		}
		s.Participants = out
		return s
	case SetLocalStream:
		s.LocalStream = act.Stream
		return s
	case SetRemoteStream:
		out := make(map[string]core.MediaHandle, len(s.RemoteStreams))
		for k, v := range s.RemoteStreams {
			out[k] = v
		}
		if act.Stream != nil {
			out[act.UserID] = act.Stream
		} else {
			delete(out, act.UserID)
		}
		s.RemoteStreams = out
		return s
	case SetRecording:
		s.Recording = act.Recording
		return s
	case SetConnection:
		s.Connection = act.State
		return s
	default:
		return s
	}
}

// Participant returns the entry for id, if present.
func (s MeetingState) Participant(id string) (domain.Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Participant{}, false
}
