package state

import (
	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
)

// ScreenShareState is the screen-share slice. At most one local share is
// active at a time.
type ScreenShareState struct {
	Status domain.ScreenShareStatus
	Stream core.MediaHandle
}

// NewScreenShareState returns the initial slice value.
func NewScreenShareState() ScreenShareState {
	return ScreenShareState{Status: domain.ScreenShareIdle}
}

// ScreenShareAction is the tagged union consumed by ReduceScreenShare.
type ScreenShareAction interface{ isScreenShareAction() }

type SetShareStatus struct{ Status domain.ScreenShareStatus }

type SetShareStream struct{ Stream core.MediaHandle }

func (SetShareStatus) isScreenShareAction() {}
func (SetShareStream) isScreenShareAction() {}

// ReduceScreenShare applies one action. Unknown actions return the state
// unchanged.
func ReduceScreenShare(s ScreenShareState, a ScreenShareAction) ScreenShareState {
	switch act := a.(type) {
	case SetShareStatus:
		s.Status = act.Status
		return s
	case SetShareStream:
		s.Stream = act.Stream
		return s
	default:
		return s
	}
}
