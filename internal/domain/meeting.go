// Package domain contains entity without logic, just meta-data
package domain

// LocalParticipantID is the reserved id of the synthesized local participant.
// It is always present in the participant set and never removed by remote
// events.
const LocalParticipantID = "local"

// MeetingInfo is an immutable snapshot of meeting metadata. The server is
// authoritative for it, so it is replaced wholesale, never merged.
type MeetingInfo struct {
	ID               string `json:"id"`
	Topic            string `json:"topic"`
	HostName         string `json:"hostName"`
	StartedAt        string `json:"startedAt"`
	Agenda           string `json:"agenda,omitempty"`
	RecordingEnabled bool   `json:"recordingEnabled,omitempty"`
}

// Participant is one meeting member as the local client sees it.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Muted        *bool  `json:"muted,omitempty"`
	VideoEnabled *bool  `json:"videoEnabled,omitempty"`
	IsPresenter  *bool  `json:"isPresenter,omitempty"`
}

// Merge overlays the fields present in patch onto p. Absent fields keep
// their previous value; this is what lets local toggles and remote join
// events cooperate in one entry.
func (p Participant) Merge(patch Participant) Participant {
	out := p
	if patch.Name != "" {
		out.Name = patch.Name
	}
	if patch.Muted != nil {
		out.Muted = patch.Muted
	}
	if patch.VideoEnabled != nil {
		out.VideoEnabled = patch.VideoEnabled
	}
	if patch.IsPresenter != nil {
		out.IsPresenter = patch.IsPresenter
	}
	return out
}

// IsMuted resolves the optional flag; an unset flag reads as unmuted.
func (p Participant) IsMuted() bool {
	return p.Muted != nil && *p.Muted
}

// HasVideo resolves the optional flag; an unset flag reads as video on.
func (p Participant) HasVideo() bool {
	return p.VideoEnabled == nil || *p.VideoEnabled
}

// Bool is a tiny helper for building participant patches.
func Bool(v bool) *bool { return &v }

// ScreenShareStatus is the local screen-share machine state.
type ScreenShareStatus string

const (
	ScreenShareIdle     ScreenShareStatus = "idle"
	ScreenShareStarting ScreenShareStatus = "starting"
	ScreenShareSharing  ScreenShareStatus = "sharing"
	ScreenShareError    ScreenShareStatus = "error"
)
