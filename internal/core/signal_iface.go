package core

import "context"

// Frame is a raw wire payload.
type Frame []byte

// ConnectionState tracks the signaling channel lifecycle. Transitions are
// monotonic per connection attempt: idle -> connecting -> connected or
// disconnected; connected -> disconnected is reachable. A disconnected
// channel is not retried by this layer.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// SignalChannel owns the single persistent connection to the meeting
// server. Owned by the session; the session must Close() it.
type SignalChannel interface {
	// Connect establishes one connection for the given meeting and sends
	// the join envelope. It may be called once per channel instance.
	Connect(ctx context.Context, meetingID string) error
	// Send enqueues an outbound envelope, fire-and-forget. Returns
	// ErrClosed after disconnect and ErrBackpressure when the outbound
	// queue is full.
	Send(env Envelope) error
	// Envelopes delivers inbound envelopes in arrival order. The channel
	// is closed once the transport disconnects.
	Envelopes() <-chan Envelope
	// States delivers connection-state transitions.
	States() <-chan ConnectionState
	// Close tears the connection down idempotently.
	Close()
}
