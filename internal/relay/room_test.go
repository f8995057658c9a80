package relay

import (
	"testing"
	"time"

	"github.com/collabkit/meet/internal/domain"
)

func addTestMember(r *Room, sid, name string) *memberConn {
	mc := newMemberConn(nil)
	r.AddMember(sid, mc, domain.Participant{ID: sid, Name: name})
	return mc
}

func drain(mc *memberConn) [][]byte {
	var out [][]byte
	for {
		select {
		case f := <-mc.send:
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	room := newRoom("m1")
	alice := addTestMember(room, "u1", "Alice")
	bob := addTestMember(room, "u2", "Bob")

	sent := room.Broadcast("u1", []byte(`{"type":"chat_message"}`))
	if sent != 1 {
		t.Fatalf("expected fan-out to one member, got %d", sent)
	}
	if got := drain(alice); len(got) != 0 {
		t.Fatalf("sender must not receive its own frame: %d", len(got))
	}
	if got := drain(bob); len(got) != 1 {
		t.Fatalf("peer did not receive the frame: %d", len(got))
	}
}

func TestBroadcastSkipsSaturatedMember(t *testing.T) {
	room := newRoom("m1")
	slow := addTestMember(room, "u1", "Slow")
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte("x")
	}

	sent := room.Broadcast("u2", []byte("y"))
	if sent != 0 {
		t.Fatalf("saturated member must be skipped, sent = %d", sent)
	}
}

func TestRemoveMemberStopsDelivery(t *testing.T) {
	room := newRoom("m1")
	bob := addTestMember(room, "u2", "Bob")
	room.RemoveMember("u2")

	room.Broadcast("u1", []byte("y"))
	if got := drain(bob); len(got) != 0 {
		t.Fatalf("removed member still receives frames: %d", len(got))
	}
	if room.MemberCount() != 0 {
		t.Fatalf("member count wrong: %d", room.MemberCount())
	}
}

func TestUpdateParticipantMerges(t *testing.T) {
	room := newRoom("m1")
	addTestMember(room, "u1", "Alice")

	room.UpdateParticipant("u1", domain.Participant{ID: "u1", Muted: domain.Bool(true)})

	ps := room.Participants()
	if len(ps) != 1 || ps[0].Name != "Alice" || !ps[0].IsMuted() {
		t.Fatalf("merge lost fields: %+v", ps)
	}
}

func TestGetOrCreateReturnsSameRoom(t *testing.T) {
	rooms := NewRooms()
	a := rooms.GetOrCreate("m1")
	b := rooms.GetOrCreate("m1")
	if a != b {
		t.Fatal("same id must yield the same room")
	}

	rooms.Stop("m1")
	if _, ok := rooms.Get("m1"); ok {
		t.Fatal("stopped room still registered")
	}
}

func TestMemberConnCloseIsIdempotent(t *testing.T) {
	mc := newMemberConn(nil)
	mc.Close()
	mc.Close()

	if err := mc.TrySend([]byte("x")); err == nil {
		t.Fatal("send on a closed connection must fail")
	}
}

func TestControllerPingIntervalFromConfig(t *testing.T) {
	ct := NewController(NewRooms(), 0, 20*time.Second)
	if ct.pingPeriod != 20*time.Second {
		t.Fatalf("configured ping interval not applied: %v", ct.pingPeriod)
	}
	if ct.pongWait <= ct.pingPeriod {
		t.Fatalf("pong deadline must exceed the ping interval: %v <= %v", ct.pongWait, ct.pingPeriod)
	}

	ct = NewController(NewRooms(), 0, 0)
	if ct.pingPeriod != defaultPingPeriod {
		t.Fatalf("zero config must fall back to the default, got %v", ct.pingPeriod)
	}
}

func TestMemberRateLimiter(t *testing.T) {
	rl := NewMemberRateLimiter(2, time.Minute)

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("first attempts within the limit must pass")
	}
	if rl.Allow("u1") {
		t.Fatal("third attempt within the window must be blocked")
	}
	if !rl.Allow("u2") {
		t.Fatal("limits are per member")
	}

	rl.Forget("u1")
	if !rl.Allow("u1") {
		t.Fatal("forget must reset the window")
	}
}
