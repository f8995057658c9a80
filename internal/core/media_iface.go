package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaHandle identifies one live media stream. The handle is owned by
// whichever component acquired it; state slices only reference it.
type MediaHandle interface {
	ID() string
}

// MediaConnection is one peer-to-peer media link. The session owns exactly
// one and drives both the initiator and the responder role through it.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate. Safe to call before
	// or after description exchange; the transport buffers early ones.
	AddICECandidate(webrtc.ICECandidateInit) error
	// CreateAndSetOffer produces the local offer (initiator role).
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer completes negotiation with the remote answer (initiator role).
	ApplyAnswer(webrtc.SessionDescription) error
	// ApplyOfferAndCreateAnswer applies a remote offer and produces the
	// local answer (responder role).
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}
