package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/shopspring/decimal"
)

func TestSubmitTickPostsPayload(t *testing.T) {
	var gotPath string
	var gotTick entity.TickEvent

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotTick); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	tick := entity.NewTickEvent("EURUSD", decimal.NewFromFloat(1.17698), decimal.NewFromFloat(1.17702), time.Now())

	if err := client.SubmitTick(context.Background(), tick); err != nil {
		t.Fatalf("SubmitTick() error = %v", err)
	}

	if gotPath != "/api/forward/tick" {
		t.Errorf("path = %q, want /api/forward/tick", gotPath)
	}
	if gotTick.Symbol != "EURUSD" {
		t.Errorf("symbol = %q, want EURUSD", gotTick.Symbol)
	}
	if got, want := gotTick.Spread.String(), "0.00004"; got != want {
		t.Errorf("spread = %s, want %s", got, want)
	}
}

func TestSubmitBarUsesBarPath(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	bar := entity.NewBarEvent("EURUSD", entity.TimeframeM1, time.Now(),
		decimal.NewFromFloat(1.1), decimal.NewFromFloat(1.2), decimal.NewFromFloat(1.0), decimal.NewFromFloat(1.15), 10)

	if err := client.SubmitBar(context.Background(), bar); err != nil {
		t.Fatalf("SubmitBar() error = %v", err)
	}
	if gotPath != "/api/forward/bar" {
		t.Errorf("path = %q, want /api/forward/bar", gotPath)
	}
}

func TestPushNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	tick := entity.NewTickEvent("EURUSD", decimal.NewFromFloat(1.1), decimal.NewFromFloat(1.2), time.Now())

	err := client.SubmitTick(context.Background(), tick)
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Errorf("SubmitTick() error = %v, want ErrUpstreamStatus", err)
	}
}

func TestHealthOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entity.GatewayHealth{
			Status:            "healthy",
			Timestamp:         time.Now().UTC(),
			ActiveConnections: 3,
			TickDataCount:     2,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	health, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.ActiveConnections != 3 {
		t.Errorf("ActiveConnections = %d, want 3", health.ActiveConnections)
	}
}

func TestHealthNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	_, err := client.Health(context.Background())
	if !errors.Is(err, ErrUnhealthy) {
		t.Errorf("Health() error = %v, want ErrUnhealthy", err)
	}
}

func TestHealthUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, WithHealthTimeout(500*time.Millisecond))

	_, err := client.Health(context.Background())
	if !errors.Is(err, ErrUnhealthy) {
		t.Errorf("Health() error = %v, want ErrUnhealthy", err)
	}
}
