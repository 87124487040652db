package websocket

import (
	"encoding/json"
	"testing"

	"github.com/wricardo/tiltroom/game/service"
	"github.com/wricardo/tiltroom/transport/pubsub"
)

func newTestRouter(t *testing.T) (*Router, *pubsub.MemoryBus) {
	t.Helper()
	bus := pubsub.NewMemoryBus()
	return NewRouter(bus, NewRegistry(), "test"), bus
}

func attach(t *testing.T, r *Router, id string, buffer int) *Client {
	t.Helper()
	c := newClient(id, nil, nil, buffer)
	if err := r.Attach(c); err != nil {
		t.Fatalf("Attach(%s) failed: %v", id, err)
	}
	return c
}

// drain returns the event names queued on c
func drain(t *testing.T, c *Client) []string {
	t.Helper()
	var events []string
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return events
			}
			var msg service.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("Bad frame %s: %v", data, err)
			}
			events = append(events, msg.Event)
		default:
			return events
		}
	}
}

func TestRouter_Subjects(t *testing.T) {
	r, _ := newTestRouter(t)

	if got := r.RoomSubject("AB12"); got != "test.room.AB12" {
		t.Errorf("RoomSubject = %s", got)
	}
	if got := r.ConnSubject("c1"); got != "test.conn.c1" {
		t.Errorf("ConnSubject = %s", got)
	}
	if NewRouter(pubsub.NewMemoryBus(), NewRegistry(), "").prefix != DefaultSubjectPrefix {
		t.Error("Empty prefix should fall back to the default")
	}
}

func TestRouter_ToRoomAndExcept(t *testing.T) {
	r, _ := newTestRouter(t)
	a := attach(t, r, "a", 8)
	b := attach(t, r, "b", 8)
	outsider := attach(t, r, "c", 8)

	r.Subscribe("a", "ROOM")
	r.Subscribe("b", "ROOM")

	r.ToRoom("ROOM", "hello", nil)
	r.ToRoomExcept("ROOM", "a", "bye", service.PlayerLeft{Name: "a"})

	if got := drain(t, a); len(got) != 1 || got[0] != "hello" {
		t.Errorf("Excluded connection got %v", got)
	}
	if got := drain(t, b); len(got) != 2 || got[0] != "hello" || got[1] != "bye" {
		t.Errorf("Member got %v", got)
	}
	if got := drain(t, outsider); len(got) != 0 {
		t.Errorf("Non-member got %v", got)
	}
}

func TestRouter_ToConn(t *testing.T) {
	r, _ := newTestRouter(t)
	a := attach(t, r, "a", 8)
	b := attach(t, r, "b", 8)

	r.ToConn("a", "private", "x")
	r.ToConn("ghost", "lost", "x")

	if got := drain(t, a); len(got) != 1 || got[0] != "private" {
		t.Errorf("Target got %v", got)
	}
	if got := drain(t, b); len(got) != 0 {
		t.Errorf("Other connection got %v", got)
	}
}

func TestRouter_MessageEnvelope(t *testing.T) {
	r, _ := newTestRouter(t)
	a := attach(t, r, "a", 8)

	r.ToConn("a", service.EventJoinedRoom, service.JoinedRoom{RoomCode: "AB12"})
	r.ToConn("a", service.EventRoomFull, nil)

	var joined struct {
		Event string             `json:"event"`
		Data  service.JoinedRoom `json:"data"`
	}
	if err := json.Unmarshal(<-a.send, &joined); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if joined.Event != "joinedRoom" || joined.Data.RoomCode != "AB12" || joined.Data.IsHost {
		t.Errorf("Unexpected envelope %+v", joined)
	}

	if got := string(<-a.send); got != `{"event":"roomFull"}` {
		t.Errorf("Expected bare roomFull envelope, got %s", got)
	}
}

func TestRouter_SubscribeIdempotentAndUnsubscribe(t *testing.T) {
	r, bus := newTestRouter(t)
	a := attach(t, r, "a", 8)

	r.Subscribe("a", "ROOM")
	r.Subscribe("a", "ROOM")
	if n := bus.Subscribers(r.RoomSubject("ROOM")); n != 1 {
		t.Fatalf("Expected 1 bus subscription, got %d", n)
	}

	r.ToRoom("ROOM", "once", nil)
	if got := drain(t, a); len(got) != 1 {
		t.Errorf("Expected exactly one delivery, got %v", got)
	}

	r.Unsubscribe("a", "ROOM")
	r.ToRoom("ROOM", "after", nil)
	if got := drain(t, a); len(got) != 0 {
		t.Errorf("Unsubscribed connection got %v", got)
	}

	r.Subscribe("ghost", "ROOM")
	if n := bus.Subscribers(r.RoomSubject("ROOM")); n != 0 {
		t.Errorf("Unknown connection should not subscribe, got %d", n)
	}
}

func TestRouter_Detach(t *testing.T) {
	r, bus := newTestRouter(t)
	a := attach(t, r, "a", 8)
	r.Subscribe("a", "ONE")
	r.Subscribe("a", "TWO")

	r.Detach("a")

	for _, subject := range []string{r.RoomSubject("ONE"), r.RoomSubject("TWO"), r.ConnSubject("a")} {
		if n := bus.Subscribers(subject); n != 0 {
			t.Errorf("%s still has %d subscribers", subject, n)
		}
	}
	if _, ok := <-a.send; ok {
		t.Error("Send buffer should be closed")
	}
	if err := a.TrySend([]byte("x")); err != ErrConnClosed {
		t.Errorf("Expected ErrConnClosed, got %v", err)
	}

	r.Detach("a")
}

func TestRouter_FullBufferDrops(t *testing.T) {
	r, _ := newTestRouter(t)
	a := attach(t, r, "a", 1)

	r.ToConn("a", "first", nil)
	r.ToConn("a", "second", nil)

	if got := drain(t, a); len(got) != 1 || got[0] != "first" {
		t.Errorf("Expected only the first message, got %v", got)
	}
	if err := a.TrySend([]byte("x")); err != nil {
		t.Errorf("Buffer should accept again after draining, got %v", err)
	}
	if err := a.TrySend([]byte("y")); err != ErrBackpressure {
		t.Errorf("Expected ErrBackpressure, got %v", err)
	}
}
