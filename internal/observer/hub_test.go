package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/grid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never joined")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return m
}

func TestLateJoinerReceivesCurrentBoard(t *testing.T) {
	h := NewHub(16, zaptest.NewLogger(t))
	h.Publish(event.CellChanged{Pos: grid.C(0, 0), Smoke: true})
	h.Publish(event.CellChanged{Pos: grid.C(0, 0), OnFire: true})
	h.Publish(event.POISpawned{ID: ecs.NewEntityID(1, 1), Pos: grid.C(2, 2), Type: "victim"})
	h.Publish(event.POIRemoved{ID: ecs.NewEntityID(1, 1), Pos: grid.C(2, 2), Reason: "fire"})
	h.Publish(event.AgentMoveStarted{AgentID: 1})

	conn := dial(t, h)
	m := read(t, conn)
	if m.Type != "cell_changed" || m.Seq != 2 {
		t.Fatalf("first message = %+v, want latest cell state", m)
	}
	data := m.Data.(map[string]any)
	if data["OnFire"] != true {
		t.Fatalf("cached cell = %v", data)
	}

	h.Publish(event.SessionStatus{State: "running", Turn: 3})
	if m := read(t, conn); m.Type != "session_status" {
		t.Fatalf("live message = %+v", m)
	}
}

func TestArtifactsFollowPOINotifications(t *testing.T) {
	h := NewHub(16, zaptest.NewLogger(t))
	a := ecs.NewEntityID(1, 1)
	b := ecs.NewEntityID(2, 1)
	h.Publish(event.POISpawned{ID: a, Pos: grid.C(1, 0)})
	h.Publish(event.POISpawned{ID: b, Pos: grid.C(0, 0)})

	got := h.POIArtifacts()
	if len(got) != 2 || got[0].Pos != grid.C(0, 0) {
		t.Fatalf("artifacts = %+v", got)
	}

	// A stale removal for a replaced handle leaves the new artifact alone.
	h.Publish(event.POIRemoved{ID: ecs.NewEntityID(9, 1), Pos: grid.C(1, 0)})
	if len(h.POIArtifacts()) != 2 {
		t.Fatal("stale removal dropped a live artifact")
	}

	conn := dial(t, h)
	read(t, conn) // cached poi at (0,0)
	read(t, conn) // cached poi at (1,0)
	h.ReleaseArtifact(got[0])
	m := read(t, conn)
	if m.Type != "poi_removed" || m.Data.(map[string]any)["Reason"] != "orphaned" {
		t.Fatalf("release message = %+v", m)
	}
	if left := h.POIArtifacts(); len(left) != 1 || left[0].Handle != a {
		t.Fatalf("artifacts after release = %+v", left)
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h := NewHub(1, zaptest.NewLogger(t))
	h.mu.Lock()
	c := &client{id: 1, send: make(chan []byte, 1)}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.Publish(event.SessionStatus{State: "running"})
	h.Publish(event.SessionStatus{State: "running", Turn: 1})

	if h.Clients() != 0 {
		t.Fatal("slow client kept")
	}
	<-c.send
	if _, ok := <-c.send; ok {
		t.Fatal("send channel not closed")
	}
}
