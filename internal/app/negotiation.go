package app

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/core"
)

// NegotiationState is the explicit peer-link state machine. Illegal
// transitions (re-initiating an existing link) are no-ops, not errors.
type NegotiationState string

const (
	NegotiationUninitialized NegotiationState = "uninitialized"
	NegotiationOfferSent     NegotiationState = "offer-sent"
	NegotiationNegotiating   NegotiationState = "negotiating"
	NegotiationEstablished   NegotiationState = "established"
)

// SignalPayload is the data field of a signal envelope: a session
// description or a connectivity candidate, never both.
type SignalPayload struct {
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// remoteStream references one inbound media stream by id.
type remoteStream struct{ id string }

func (r remoteStream) ID() string { return r.id }

// Negotiator drives one peer-to-peer media session. Candidate exchange
// runs concurrently with description exchange; candidates are buffered by
// the transport, not here. Fan-out to N peers is N independent
// negotiators.
type Negotiator struct {
	newLink       func() (core.MediaConnection, error)
	sendSignal    func(SignalPayload)
	onRemoteTrack func(userID string, stream core.MediaHandle)

	state NegotiationState
	link  core.MediaConnection
}

// NewNegotiator wires a negotiator to its link factory and outbound
// signal sink. Callbacks may fire from transport goroutines; the session
// re-posts them onto its event queue.
func NewNegotiator(
	newLink func() (core.MediaConnection, error),
	sendSignal func(SignalPayload),
	onRemoteTrack func(userID string, stream core.MediaHandle),
) *Negotiator {
	return &Negotiator{
		newLink:       newLink,
		sendSignal:    sendSignal,
		onRemoteTrack: onRemoteTrack,
		state:         NegotiationUninitialized,
	}
}

// State returns the current negotiation state.
func (n *Negotiator) State() NegotiationState { return n.state }

// Initiate creates the peer link, attaches the local tracks, and emits
// the offer. At most once per session: re-entrant calls while a link
// exists are no-ops.
func (n *Negotiator) Initiate(ctx context.Context, tracks []webrtc.TrackLocal) error {
	if n.state != NegotiationUninitialized {
		log.Debug().Str("module", "negotiation").Str("state", string(n.state)).Msg("initiate ignored, link exists")
		return nil
	}

	link, err := n.newLink()
	if err != nil {
		return fmt.Errorf("negotiation: create link: %w", err)
	}

	link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		// Every discovered candidate goes out immediately, unbatched.
		n.sendSignal(SignalPayload{Candidate: &ci})
	})
	link.OnTrack(func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		userID := track.ID()
		if userID == "" {
			userID = "remote-" + track.StreamID()
		}
		n.onRemoteTrack(userID, remoteStream{id: track.StreamID()})
	})

	if err := link.Start(ctx); err != nil {
		link.Close()
		return fmt.Errorf("negotiation: start link: %w", err)
	}
	for _, t := range tracks {
		if _, err := link.AddLocalTrack(t); err != nil {
			link.Close()
			return fmt.Errorf("negotiation: add local track: %w", err)
		}
	}

	offer, err := link.CreateAndSetOffer()
	if err != nil {
		link.Close()
		return fmt.Errorf("negotiation: create offer: %w", err)
	}

	n.link = link
	n.state = NegotiationOfferSent
	n.sendSignal(SignalPayload{SDP: offer})
	log.Info().Str("module", "negotiation").Msg("offer sent")
	return nil
}

// HandleRemoteDescription applies a remote description. A no-op when no
// link exists yet, so out-of-order signal delivery never crashes. A
// malformed description fails this call only; the link survives.
func (n *Negotiator) HandleRemoteDescription(desc webrtc.SessionDescription) error {
	if n.link == nil {
		log.Debug().Str("module", "negotiation").Msg("remote description before link, ignored")
		return nil
	}
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		// Responder role: synthesize and send the answer.
		n.state = NegotiationNegotiating
		answer, err := n.link.ApplyOfferAndCreateAnswer(desc)
		if err != nil {
			return fmt.Errorf("negotiation: apply offer: %w", err)
		}
		n.sendSignal(SignalPayload{SDP: answer})
		n.state = NegotiationEstablished
		return nil
	case webrtc.SDPTypeAnswer:
		// Initiator role: the answer completes negotiation.
		n.state = NegotiationNegotiating
		if err := n.link.ApplyAnswer(desc); err != nil {
			return fmt.Errorf("negotiation: apply answer: %w", err)
		}
		n.state = NegotiationEstablished
		return nil
	default:
		return fmt.Errorf("negotiation: unexpected description type %s", desc.Type)
	}
}

// HandleRemoteCandidate applies a remote connectivity candidate. Safe to
// call before or after description exchange completes.
func (n *Negotiator) HandleRemoteCandidate(ci webrtc.ICECandidateInit) error {
	if n.link == nil {
		log.Debug().Str("module", "negotiation").Msg("remote candidate before link, ignored")
		return nil
	}
	if err := n.link.AddICECandidate(ci); err != nil {
		return fmt.Errorf("negotiation: add candidate: %w", err)
	}
	return nil
}

// HandleSignal dispatches one inbound signal payload.
func (n *Negotiator) HandleSignal(p SignalPayload) error {
	switch {
	case p.SDP != nil:
		return n.HandleRemoteDescription(*p.SDP)
	case p.Candidate != nil:
		return n.HandleRemoteCandidate(*p.Candidate)
	default:
		return nil
	}
}

// Close tears the peer link down. Idempotent.
func (n *Negotiator) Close() {
	if n.link != nil {
		n.link.Close()
		n.link = nil
	}
	n.state = NegotiationUninitialized
}
