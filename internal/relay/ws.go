package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/collabkit/meet/internal/core"
	"github.com/collabkit/meet/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	defaultPingPeriod = 54 * time.Second
)

// Controller owns the websocket side of the relay: one goroutine pair
// per member, join bookkeeping, and envelope fan-out to the room.
type Controller struct {
	rooms      *Rooms
	upgrader   websocket.Upgrader
	readLimit  int64
	pingPeriod time.Duration
	pongWait   time.Duration
	chatLimit  *MemberRateLimiter
}

func NewController(rooms *Rooms, readLimit int64, pingPeriod time.Duration) *Controller {
	if readLimit <= 0 {
		readLimit = 32768
	}
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}
	return &Controller{
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		readLimit:  readLimit,
		pingPeriod: pingPeriod,
		// The peer must pong within one ping interval plus slack.
		pongWait:  pingPeriod * 10 / 9,
		chatLimit: NewMemberRateLimiter(20, 10*time.Second),
	}
}

type joinWire struct {
	MeetingID string `json:"meetingId"`
	Name      string `json:"name"`
}

// HandleMeeting upgrades the request and serves the member until the
// socket closes. The member id is the per-client session token set by
// the cookie middleware.
func (ct *Controller) HandleMeeting(c *gin.Context) {
	meetingID := c.Param("id")
	sid := c.GetString("client_token")
	if sid == "" {
		sid = domain.NewID()
	}

	conn, err := ct.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "relay.ws").Msg("upgrade failed")
		return
	}

	mc := newMemberConn(conn)
	go ct.writePump(mc)
	ct.readPump(mc, meetingID, sid)
}

func (ct *Controller) writePump(mc *memberConn) {
	ticker := time.NewTicker(ct.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-mc.send:
			_ = mc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = mc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := mc.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = mc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := mc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ct *Controller) readPump(mc *memberConn, meetingID, sid string) {
	mc.conn.SetReadLimit(ct.readLimit)
	_ = mc.conn.SetReadDeadline(time.Now().Add(ct.pongWait))
	mc.conn.SetPongHandler(func(string) error {
		return mc.conn.SetReadDeadline(time.Now().Add(ct.pongWait))
	})

	var room *Room
	defer func() {
		mc.Close()
		ct.chatLimit.Forget(sid)
		if room != nil {
			room.RemoveMember(sid)
			ct.announceLeave(room, sid)
		}
	}()

	for {
		_, raw, err := mc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "relay.ws").Str("sid", sid).Msg("read error")
			}
			return
		}

		var env core.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			log.Debug().Str("module", "relay.ws").Str("sid", sid).Msg("malformed envelope dropped")
			continue
		}

		switch env.Type {
		case core.TypeJoin:
			var j joinWire
			_ = json.Unmarshal(env.Data, &j)
			if j.MeetingID != "" {
				meetingID = j.MeetingID
			}
			room = ct.join(mc, meetingID, sid, j.Name)
		case core.TypeMeetingEnd:
			if room != nil {
				room.Broadcast(sid, raw)
				ct.rooms.Stop(room.ID())
				return
			}
		case core.TypeChatMessage:
			if room == nil {
				continue
			}
			if !ct.chatLimit.Allow(sid) {
				log.Warn().Str("module", "relay.ws").Str("sid", sid).Msg("chat rate limit hit, message dropped")
				continue
			}
			room.Broadcast(sid, ct.enrich(room, env, sid))
		case core.TypeMute, core.TypeCamera:
			if room != nil {
				room.Broadcast(sid, ct.enrich(room, env, sid))
			}
		default:
			// signal, whiteboard_event, screen_share and anything the
			// relay does not understand pass through untouched.
			if room != nil {
				room.Broadcast(sid, raw)
			}
		}
	}
}

// join registers the member, sends it the current meeting snapshot, and
// announces the join to everyone else.
func (ct *Controller) join(mc *memberConn, meetingID, sid, name string) *Room {
	if name == "" {
		name = "Guest"
	}
	room := ct.rooms.GetOrCreate(meetingID)
	p := domain.Participant{
		ID:           sid,
		Name:         name,
		Muted:        domain.Bool(false),
		VideoEnabled: domain.Bool(true),
	}
	room.AddMember(sid, mc, p)

	snapshot := meetingSnapshot(room)
	if frame, err := stateFrame(snapshot, room.Participants()); err == nil {
		if err := mc.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "relay.ws").Str("sid", sid).Msg("snapshot not delivered")
		}
	}

	if frame, err := envelopeFrame(core.TypeParticipantJoin, p); err == nil {
		room.Broadcast(sid, frame)
	}
	return room
}

func (ct *Controller) announceLeave(room *Room, sid string) {
	frame, err := envelopeFrame(core.TypeParticipantLeave, map[string]string{"id": sid})
	if err != nil {
		return
	}
	room.Broadcast(sid, frame)
}

// enrich stamps the sender identity onto payloads the client writes in
// first person. Chat gets userId/userName, toggles get their member id.
func (ct *Controller) enrich(room *Room, env core.Envelope, sid string) core.Frame {
	var payload map[string]any
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		raw, _ := json.Marshal(env)
		return raw
	}

	switch env.Type {
	case core.TypeChatMessage:
		payload["userId"] = sid
		if name := memberName(room, sid); name != "" {
			payload["userName"] = name
		}
	case core.TypeMute, core.TypeCamera:
		payload["id"] = sid
		if muted, ok := payload["muted"].(bool); ok {
			room.UpdateParticipant(sid, domain.Participant{ID: sid, Muted: domain.Bool(muted)})
		}
		if enabled, ok := payload["enabled"].(bool); ok {
			room.UpdateParticipant(sid, domain.Participant{ID: sid, VideoEnabled: domain.Bool(enabled)})
		}
	}

	frame, err := envelopeFrame(env.Type, payload)
	if err != nil {
		raw, _ := json.Marshal(env)
		return raw
	}
	return frame
}

func envelopeFrame(typ string, payload any) (core.Frame, error) {
	env, err := core.NewEnvelope(typ, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func memberName(room *Room, sid string) string {
	for _, p := range room.Participants() {
		if p.ID == sid {
			return p.Name
		}
	}
	return ""
}

func meetingSnapshot(room *Room) domain.MeetingInfo {
	info := domain.MeetingInfo{
		ID:        room.ID(),
		Topic:     "Meeting " + room.ID(),
		StartedAt: room.StartedAt().Format(time.RFC3339),
	}
	info.HostName = room.HostName()
	return info
}

func stateFrame(info domain.MeetingInfo, participants []domain.Participant) (core.Frame, error) {
	payload := struct {
		domain.MeetingInfo
		Participants []domain.Participant `json:"participants"`
	}{MeetingInfo: info, Participants: participants}

	return envelopeFrame(core.TypeMeetingState, payload)
}
