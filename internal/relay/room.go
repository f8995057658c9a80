// Package relay is a development meeting server: it upgrades websocket
// connections, keeps rooms of members, and fans envelopes out to the
// other members. It gives the client orchestrator a real wire to talk to.
package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
)

var ErrBackpressure = errors.New("relay: backpressure")

// memberConn is one websocket endpoint with a buffered outbound queue.
// Owned by the controller; the controller must Close() it.
type memberConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newMemberConn(conn *websocket.Conn) *memberConn {
	return &memberConn{conn: conn, send: make(chan core.Frame, 32)}
}

func (c *memberConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("relay: connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *memberConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

type member struct {
	sid         string
	conn        *memberConn
	participant domain.Participant
}

// Room is a threadsafe in-memory membership set for one meeting. It owns
// membership, never transport lifetimes.
type Room struct {
	id      string
	started time.Time

	mu      sync.RWMutex
	host    string
	members map[string]*member
}

func newRoom(id string) *Room {
	return &Room{id: id, started: time.Now().UTC(), members: make(map[string]*member)}
}

func (r *Room) ID() string { return r.id }

func (r *Room) StartedAt() time.Time { return r.started }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) AddMember(sid string, conn *memberConn, p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[sid] = &member{sid: sid, conn: conn, participant: p}
	if r.host == "" {
		r.host = sid
	}
	log.Info().Str("module", "relay.room").Str("room", r.id).Str("sid", sid).Msg("member added")
}

// HostName returns the display name of the first member who joined.
func (r *Room) HostName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.members[r.host]; ok {
		return m.participant.Name
	}
	return ""
}

func (r *Room) RemoveMember(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, sid)
	log.Info().Str("module", "relay.room").Str("room", r.id).Str("sid", sid).Msg("member removed")
}

func (r *Room) UpdateParticipant(sid string, patch domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[sid]; ok {
		m.participant = m.participant.Merge(patch)
	}
}

// Participants returns a snapshot of the room membership.
func (r *Room) Participants() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.participant)
	}
	return out
}

// Broadcast fans one frame out to every member except the sender.
// Members whose queue is full are skipped; the relay never blocks on a
// slow consumer.
func (r *Room) Broadcast(from string, data core.Frame) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for sid, m := range r.members {
		if sid == from {
			continue
		}
		if err := m.conn.TrySend(data); err != nil {
			log.Warn().Str("module", "relay.room").Str("room", r.id).Str("sid", sid).Msg("member dropped frame")
			continue
		}
		sent++
	}
	return sent
}

// closeAll closes every member connection; used when the meeting ends.
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		m.conn.Close()
	}
	r.members = make(map[string]*member)
}

// Rooms is the room registry.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*Room)}
}

func (rs *Rooms) GetOrCreate(id string) *Room {
	rs.mu.RLock()
	room, ok := rs.rooms[id]
	rs.mu.RUnlock()
	if ok {
		return room
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if room, ok = rs.rooms[id]; !ok {
		room = newRoom(id)
		rs.rooms[id] = room
	}
	return room
}

func (rs *Rooms) Get(id string) (*Room, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	room, ok := rs.rooms[id]
	return room, ok
}

func (rs *Rooms) Stop(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if room, ok := rs.rooms[id]; ok {
		room.closeAll()
		delete(rs.rooms, id)
	}
}
