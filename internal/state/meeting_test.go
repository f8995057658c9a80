package state

import (
	"reflect"
	"testing"

	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
)

type fakeHandle struct{ id string }

func (h fakeHandle) ID() string { return h.id }

func TestReduceMeetingReplacesMeetingWholesale(t *testing.T) {
	s := NewMeetingState()
	s = ReduceMeeting(s, SetMeeting{Meeting: domain.MeetingInfo{ID: "m1", Topic: "standup", Agenda: "yesterday/today"}})
	s = ReduceMeeting(s, SetMeeting{Meeting: domain.MeetingInfo{ID: "m1", Topic: "retro"}})

	if s.Meeting == nil || s.Meeting.Topic != "retro" {
		t.Fatalf("expected topic retro, got %+v", s.Meeting)
	}
	if s.Meeting.Agenda != "" {
		t.Fatalf("meeting info must be replaced, not merged: agenda = %q", s.Meeting.Agenda)
	}
}

func TestUpsertParticipantMergesByID(t *testing.T) {
	s := NewMeetingState()
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u2", Name: "Bob", Muted: domain.Bool(false)}})
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u2", Muted: domain.Bool(true)}})

	if len(s.Participants) != 1 {
		t.Fatalf("expected one entry, got %d", len(s.Participants))
	}
	p := s.Participants[0]
	if p.Name != "Bob" {
		t.Fatalf("name must survive a patch without name, got %q", p.Name)
	}
	if !p.IsMuted() {
		t.Fatal("muted patch not applied")
	}
}

func TestUpsertParticipantInsertsUnknownID(t *testing.T) {
	s := NewMeetingState()
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u1", Name: "Alice"}})
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u2", Name: "Bob"}})

	if len(s.Participants) != 2 {
		t.Fatalf("expected two entries, got %d", len(s.Participants))
	}
	if s.Participants[0].ID != "u1" || s.Participants[1].ID != "u2" {
		t.Fatalf("insertion order lost: %+v", s.Participants)
	}
}

func TestRemoveParticipantNeverRemovesLocal(t *testing.T) {
	s := NewMeetingState()
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: domain.LocalParticipantID, Name: "Me"}})
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u1"}})

	s = ReduceMeeting(s, RemoveParticipant{ID: domain.LocalParticipantID})
	if _, ok := s.Participant(domain.LocalParticipantID); !ok {
		t.Fatal("local participant must never be removed")
	}

	s = ReduceMeeting(s, RemoveParticipant{ID: "u1"})
	if _, ok := s.Participant("u1"); ok {
		t.Fatal("u1 should be gone")
	}
}

func TestRemoveUnknownParticipantIsNoop(t *testing.T) {
	s := NewMeetingState()
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u1"}})
	before := append([]domain.Participant(nil), s.Participants...)

	s = ReduceMeeting(s, RemoveParticipant{ID: "ghost"})
	if !reflect.DeepEqual(before, s.Participants) {
		t.Fatalf("removing an unknown id changed the set: %+v", s.Participants)
	}
}

func TestSetRemoteStreamNilRemovesBinding(t *testing.T) {
	s := NewMeetingState()
	s = ReduceMeeting(s, SetRemoteStream{UserID: "u1", Stream: fakeHandle{id: "s1"}})
	if _, ok := s.RemoteStreams["u1"]; !ok {
		t.Fatal("binding not set")
	}

	s = ReduceMeeting(s, SetRemoteStream{UserID: "u1", Stream: nil})
	if _, ok := s.RemoteStreams["u1"]; ok {
		t.Fatal("nil stream must remove the key, not bind nil")
	}
}

func TestReduceMeetingDoesNotMutateInput(t *testing.T) {
	s := NewMeetingState()
	s = ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u1", Name: "Alice"}})
	s = ReduceMeeting(s, SetRemoteStream{UserID: "u1", Stream: fakeHandle{id: "s1"}})

	next := ReduceMeeting(s, UpsertParticipant{Participant: domain.Participant{ID: "u1", Name: "Eve"}})
	next = ReduceMeeting(next, SetRemoteStream{UserID: "u1", Stream: nil})

	if s.Participants[0].Name != "Alice" {
		t.Fatalf("previous state mutated: %+v", s.Participants)
	}
	if _, ok := s.RemoteStreams["u1"]; !ok {
		t.Fatal("previous remote stream map mutated")
	}
	if next.Participants[0].Name != "Eve" {
		t.Fatalf("new state missing update: %+v", next.Participants)
	}
}

func TestSetConnectionAndRecording(t *testing.T) {
	s := NewMeetingState()
	if s.Connection != core.StateIdle {
		t.Fatalf("initial connection state should be idle, got %v", s.Connection)
	}
	s = ReduceMeeting(s, SetConnection{State: core.StateConnected})
	if s.Connection != core.StateConnected {
		t.Fatalf("connection not updated: %v", s.Connection)
	}
	s = ReduceMeeting(s, SetRecording{Recording: true})
	if !s.Recording {
		t.Fatal("recording flag not set")
	}
}
