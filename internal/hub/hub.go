package hub

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/krobus00/market-stream-service/internal/constant"
	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/krobus00/market-stream-service/internal/store"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans published market events out to every session subscribed to the
// relevant room. One mutex serializes state mutation, room membership, and
// per-session enqueue, so a snapshot taken on connect can never observe a
// half-applied update and the snapshot+live union is gap free. Socket
// writes happen outside the lock in each session's write pump; a session
// whose queue overflows is dropped rather than allowed to stall the hub.
type Hub struct {
	mu         sync.Mutex
	store      *store.Store
	sessions   map[*Session]struct{}
	rooms      map[string]map[*Session]struct{}
	bufferSize int
	closed     bool
}

func New(marketStore *store.Store, sessionBufferSize int) *Hub {
	if sessionBufferSize <= 0 {
		sessionBufferSize = DefaultSessionBufferSize
	}

	return &Hub{
		store:      marketStore,
		sessions:   make(map[*Session]struct{}),
		rooms:      make(map[string]map[*Session]struct{}),
		bufferSize: sessionBufferSize,
	}
}

func (h *Hub) Store() *store.Store {
	return h.store
}

// PublishTick stores the tick and delivers it to the ticks room.
func (h *Hub) PublishTick(tick entity.TickEvent) {
	h.mu.Lock()
	h.store.UpdateTick(tick)
	h.deliverLocked(constant.RoomTicks, entity.StreamEvent{Event: constant.EventTickData, Data: tick})
	h.mu.Unlock()
}

// PublishBar stores the bar and delivers it to the bars room.
func (h *Hub) PublishBar(bar entity.BarEvent) {
	h.mu.Lock()
	h.store.AppendBar(bar)
	h.deliverLocked(constant.RoomBars, entity.StreamEvent{Event: constant.EventBarData, Data: bar})
	h.mu.Unlock()
}

// OnConnect registers the session and queues the initial-state snapshot
// before any live event. Initial rooms are joined under the same lock, so
// an event published concurrently lands either in the snapshot or in the
// live stream, never both and never neither.
func (h *Hub) OnConnect(session *Session, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(session.send)
		return
	}

	h.sessions[session] = struct{}{}
	for _, room := range rooms {
		h.joinLocked(session, room)
	}

	snapshot := h.store.Snapshot()
	if len(snapshot.Ticks) > 0 {
		h.enqueueLocked(session, entity.StreamEvent{Event: constant.EventInitialTickData, Data: snapshot.Ticks})
	}
	if len(snapshot.Bars) > 0 {
		h.enqueueLocked(session, entity.StreamEvent{Event: constant.EventInitialBarData, Data: snapshot.Bars})
	}
}

// Join adds the session to a room. Idempotent; unknown sessions are ignored.
func (h *Hub) Join(session *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[session]; !ok {
		return
	}

	h.joinLocked(session, room)
}

// Leave removes the session from a room. Idempotent.
func (h *Hub) Leave(session *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, session)
	}
}

// Disconnect removes the session from every room and closes its queue.
// Safe to call more than once.
func (h *Hub) Disconnect(session *Session) {
	h.mu.Lock()
	h.dropLocked(session)
	h.mu.Unlock()
}

func (h *Hub) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.sessions)
}

// Close disconnects every session and rejects further connects.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for session := range h.sessions {
		h.dropLocked(session)
	}
	h.closed = true
}

// HandleCommand applies a client room command.
func (h *Hub) HandleCommand(session *Session, command string) {
	switch command {
	case constant.CommandJoinTicks:
		h.Join(session, constant.RoomTicks)
	case constant.CommandLeaveTicks:
		h.Leave(session, constant.RoomTicks)
	case constant.CommandJoinBars:
		h.Join(session, constant.RoomBars)
	case constant.CommandLeaveBars:
		h.Leave(session, constant.RoomBars)
	default:
		logrus.WithFields(logrus.Fields{
			"session_id": session.ID,
			"command":    command,
		}).Warn("unknown session command")
	}
}

// ServeWS upgrades the request and attaches a new viewer session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade failed: %v", err)
		return
	}

	session := NewSession(conn, h.bufferSize)
	h.OnConnect(session)
	logrus.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"remote_addr": r.RemoteAddr,
	}).Info("session connected")

	go session.writePump()
	go session.readPump(h)
}

func (h *Hub) joinLocked(session *Session, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Session]struct{})
	}
	h.rooms[room][session] = struct{}{}
}

func (h *Hub) deliverLocked(room string, event entity.StreamEvent) {
	for session := range h.rooms[room] {
		if !h.enqueueLocked(session, event) {
			logrus.WithField("session_id", session.ID).Warn("session queue overflow, disconnecting")
			h.dropLocked(session)
		}
	}
}

func (h *Hub) enqueueLocked(session *Session, event entity.StreamEvent) bool {
	select {
	case session.send <- event:
		return true
	default:
		return false
	}
}

func (h *Hub) dropLocked(session *Session) {
	if _, ok := h.sessions[session]; !ok {
		return
	}

	delete(h.sessions, session)
	for _, members := range h.rooms {
		delete(members, session)
	}
	close(session.send)
}
