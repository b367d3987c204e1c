package hub

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	DefaultSessionBufferSize = 256
)

// Session is one connected real-time viewer. Events are queued on a bounded
// channel; the hub never writes to the socket directly.
type Session struct {
	ID   string
	conn *websocket.Conn
	send chan entity.StreamEvent
}

func NewSession(conn *websocket.Conn, bufferSize int) *Session {
	if bufferSize <= 0 {
		bufferSize = DefaultSessionBufferSize
	}

	return &Session{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan entity.StreamEvent, bufferSize),
	}
}

// readPump consumes room commands from the client and doubles as the
// connection watchdog. It owns the read side of the socket.
func (s *Session) readPump(h *Hub) {
	defer func() {
		h.Disconnect(s)
		_ = s.conn.Close()
		logrus.WithField("session_id", s.ID).Info("session disconnected")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.WithField("session_id", s.ID).Warnf("session read failed: %v", err)
			}
			return
		}

		var command entity.StreamEvent
		if err := json.Unmarshal(message, &command); err != nil {
			logrus.WithField("session_id", s.ID).Warnf("invalid session command: %v", err)
			continue
		}

		h.HandleCommand(s, command.Event)
	}
}

// writePump drains the session queue onto the socket and keeps the
// connection alive with pings. It owns the write side of the socket.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				logrus.WithField("session_id", s.ID).Errorf("marshal stream event: %v", err)
				continue
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
