package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/market-stream-service/internal/constant"
	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/krobus00/market-stream-service/internal/store"
	"github.com/shopspring/decimal"
)

func dialTestHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) entity.StreamEvent {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var event entity.StreamEvent
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	return event
}

func TestServeWSSnapshotThenLive(t *testing.T) {
	h := New(store.New(0), 8)
	h.PublishTick(entity.NewTickEvent("EURUSD", decimal.NewFromFloat(1.1), decimal.NewFromFloat(1.2), time.Now()))

	conn := dialTestHub(t, h)

	event := readEvent(t, conn)
	if event.Event != constant.EventInitialTickData {
		t.Fatalf("first event = %q, want %q", event.Event, constant.EventInitialTickData)
	}

	if err := conn.WriteJSON(entity.StreamEvent{Event: constant.CommandJoinTicks}); err != nil {
		t.Fatalf("write join command: %v", err)
	}

	// the join command is handled by the read pump asynchronously
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		joined := len(h.rooms[constant.RoomTicks]) == 1
		h.mu.Unlock()
		if joined {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never joined the ticks room")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.PublishTick(entity.NewTickEvent("EURUSD", decimal.NewFromFloat(1.3), decimal.NewFromFloat(1.4), time.Now()))

	event = readEvent(t, conn)
	if event.Event != constant.EventTickData {
		t.Fatalf("live event = %q, want %q", event.Event, constant.EventTickData)
	}

	data, ok := event.Data.(map[string]any)
	if !ok {
		t.Fatalf("event data type = %T, want object", event.Data)
	}
	if data["symbol"] != "EURUSD" {
		t.Errorf("symbol = %v, want EURUSD", data["symbol"])
	}
}

func TestServeWSDisconnectRemovesSession(t *testing.T) {
	h := New(store.New(0), 8)
	conn := dialTestHub(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for h.ActiveSessions() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for h.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never removed after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
