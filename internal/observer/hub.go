package observer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/grid"
	"github.com/firerescue/viewer/internal/world"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
)

// Message is the envelope every notification is streamed in.
type Message struct {
	Seq  uint64 `json:"seq"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	id   uint64
	send chan []byte
	once sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.send) }) }

// Hub streams notifications to connected renderers over websockets. It
// keeps the latest notification per entity so a renderer that connects
// mid-session receives the current board before live updates. Publish is
// called from the game loop; connections are served on their own
// goroutines.
type Hub struct {
	upgrader websocket.Upgrader
	buffer   int
	log      *zap.Logger

	nextID atomic.Uint64

	mu        sync.Mutex
	seq       uint64
	clients   map[uint64]*client
	state     map[string][]byte
	artifacts map[grid.Coord]ecs.EntityID
}

func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer:    buffer,
		log:       log.Named("observer"),
		clients:   make(map[uint64]*client),
		state:     make(map[string][]byte),
		artifacts: make(map[grid.Coord]ecs.EntityID),
	}
}

// Attach subscribes the hub to every notification on the bus.
func (h *Hub) Attach(bus *event.Bus) {
	bus.SubscribeAll(h.Publish)
}

// Publish encodes one notification, updates the join cache and fans it
// out. Clients that cannot keep up are disconnected.
func (h *Hub) Publish(ev any) {
	typ, key, ok := classify(ev)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := ev.(type) {
	case event.POISpawned:
		h.artifacts[e.Pos] = e.ID
	case event.POIRemoved:
		if h.artifacts[e.Pos] == e.ID {
			delete(h.artifacts, e.Pos)
			delete(h.state, "poi:"+key)
		}
	}

	h.seq++
	b, err := json.Marshal(Message{Seq: h.seq, Type: typ, Data: ev})
	if err != nil {
		h.log.Warn("notification not encodable", zap.String("type", typ), zap.Error(err))
		return
	}
	h.remember(typ, key, b)
	h.broadcastLocked(b)
}

func (h *Hub) remember(typ, key string, b []byte) {
	switch typ {
	case "poi_removed", "agent_move_started", "agent_acted":
	default:
		if key != "" {
			h.state[key] = b
		}
	}
}

func (h *Hub) broadcastLocked(b []byte) {
	for id, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("observer too slow, disconnecting", zap.Uint64("client", id))
			delete(h.clients, id)
			c.close()
		}
	}
}

// Clients returns how many renderers are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// POIArtifacts lists the POI visuals renderers were told about and not yet
// told to remove.
func (h *Hub) POIArtifacts() []world.Artifact {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]world.Artifact, 0, len(h.artifacts))
	for pos, id := range h.artifacts {
		out = append(out, world.Artifact{Handle: id, Pos: pos})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}

// ReleaseArtifact tells renderers to drop a POI visual that no longer has
// a live POI behind it.
func (h *Hub) ReleaseArtifact(a world.Artifact) {
	h.Publish(event.POIRemoved{ID: a.Handle, Pos: a.Pos, Reason: "orphaned"})
}

// Handler upgrades the request and streams until either side closes.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := h.join()
		log := h.log.With(zap.Uint64("client", c.id), zap.String("remote", r.RemoteAddr))
		log.Info("observer connected")
		defer func() {
			h.leave(c)
			log.Info("observer disconnected")
		}()

		writeErr := make(chan error, 1)
		go func() {
			for b := range c.send {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
				time.Now().Add(time.Second))
			writeErr <- nil
		}()

		// Renderers do not send anything meaningful; reading detects close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		h.leave(c)
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// join registers a client and queues the cached board for it.
func (h *Hub) join() *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &client{id: h.nextID.Add(1)}
	keys := make([]string, 0, len(h.state))
	for k := range h.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	size := h.buffer
	if len(keys) > size {
		size = len(keys) + h.buffer
	}
	c.send = make(chan []byte, size)
	for _, k := range keys {
		c.send <- h.state[k]
	}
	h.clients[c.id] = c
	return c
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		c.close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

// classify names a notification on the wire and picks the join-cache key
// it supersedes.
func classify(ev any) (typ, key string, ok bool) {
	switch e := ev.(type) {
	case event.CellChanged:
		return "cell_changed", "cell:" + e.Pos.String(), true
	case event.WallChanged:
		return "wall_changed", "wall:" + e.Edge.String(), true
	case event.DoorChanged:
		return "door_changed", "door:" + e.Edge.String(), true
	case event.POISpawned:
		return "poi_spawned", "poi:" + e.Pos.String(), true
	case event.POIRemoved:
		return "poi_removed", e.Pos.String(), true
	case event.AgentSpawned:
		return "agent_spawned", fmt.Sprintf("agent:%d", e.AgentID), true
	case event.AgentUpdated:
		return "agent_updated", fmt.Sprintf("agent_state:%d", e.AgentID), true
	case event.AgentMoveStarted:
		return "agent_move_started", "", true
	case event.AgentMoveFinished:
		return "agent_move_finished", fmt.Sprintf("agent:%d", e.AgentID), true
	case event.AgentActed:
		return "agent_acted", "", true
	case event.SessionStatus:
		return "session_status", "session", true
	}
	return "", "", false
}
