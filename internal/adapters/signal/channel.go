// Package signal implements the client side of the meeting signaling
// channel over a websocket.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/core"
)

var (
	ErrBackpressure = errors.New("signal: backpressure")
	ErrClosed       = errors.New("signal: channel closed")
)

const writeWait = 5 * time.Second

// Channel is the single persistent connection to the meeting server.
// Inbound envelopes are delivered in arrival order; outbound sends are
// fire-and-forget. A transport error moves the channel to disconnected
// and stops delivery; there is no auto-reconnect.
type Channel struct {
	baseURL   string
	readLimit int64
	name      string
	dialer    *websocket.Dialer

	conn      *websocket.Conn
	send      chan core.Frame
	envelopes chan core.Envelope
	states    chan core.ConnectionState

	mu     sync.RWMutex
	state  core.ConnectionState
	closed bool
}

// NewChannel creates an idle channel for the given ws base URL
// (e.g. ws://localhost:8080).
func NewChannel(baseURL string, readLimit int64) *Channel {
	return &Channel{
		baseURL:   strings.TrimRight(baseURL, "/"),
		readLimit: readLimit,
		dialer:    websocket.DefaultDialer,
		send:      make(chan core.Frame, 32),
		envelopes: make(chan core.Envelope, 32),
		states:    make(chan core.ConnectionState, 8),
		state:     core.StateIdle,
	}
}

// SetDisplayName sets the name announced in the join envelope. Must be
// called before Connect.
func (c *Channel) SetDisplayName(name string) { c.name = name }

// Envelopes implements core.SignalChannel.
func (c *Channel) Envelopes() <-chan core.Envelope { return c.envelopes }

// States implements core.SignalChannel.
func (c *Channel) States() <-chan core.ConnectionState { return c.states }

// State returns the current connection state.
func (c *Channel) State() core.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel) setState(s core.ConnectionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	select {
	case c.states <- s:
	default:
		log.Warn().Str("module", "signal").Str("state", string(s)).Msg("state observer lagging, transition dropped")
	}
}

// Connect dials the meeting endpoint and announces the join. One
// connection per channel instance.
func (c *Channel) Connect(ctx context.Context, meetingID string) error {
	c.setState(core.StateConnecting)
	u := fmt.Sprintf("%s/ws/meet/%s", c.baseURL, meetingID)
	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		c.setState(core.StateDisconnected)
		return fmt.Errorf("signal: dial %s: %w", u, err)
	}
	if c.readLimit > 0 {
		conn.SetReadLimit(c.readLimit)
	}
	c.conn = conn
	c.setState(core.StateConnected)
	log.Info().Str("module", "signal").Str("url", u).Msg("connected")

	go c.writePump(ctx)
	go c.readPump(ctx)

	join := map[string]string{"meetingId": meetingID}
	if c.name != "" {
		join["name"] = c.name
	}
	env, err := core.NewEnvelope(core.TypeJoin, join)
	if err != nil {
		return err
	}
	return c.Send(env)
}

// Send enqueues one outbound envelope.
func (c *Channel) Send(env core.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("signal: marshal envelope: %w", err)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.state == core.StateDisconnected {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Channel) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context) {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		c.Close()
		close(c.envelopes)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			var env core.Envelope
			if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
				// One malformed message is discarded; the stream goes on.
				log.Error().Err(err).Str("module", "signal").Msg("bad envelope, skipping")
				continue
			}
			select {
			case c.envelopes <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close tears the connection down. Safe to call repeatedly and before
// Connect.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.setState(core.StateDisconnected)
}
