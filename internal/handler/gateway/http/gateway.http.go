package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/krobus00/market-stream-service/internal/hub"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// accepted timestamp layouts for externally pushed events
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type SubmitTickRequest struct {
	Symbol    *string          `json:"symbol"`
	Bid       *decimal.Decimal `json:"bid"`
	Ask       *decimal.Decimal `json:"ask"`
	Timestamp *string          `json:"timestamp"`
}

type SubmitBarRequest struct {
	Symbol    *string          `json:"symbol"`
	Timeframe *string          `json:"timeframe"`
	Time      *string          `json:"time"`
	Open      *decimal.Decimal `json:"open"`
	High      *decimal.Decimal `json:"high"`
	Low       *decimal.Decimal `json:"low"`
	Close     *decimal.Decimal `json:"close"`
	Volume    *int64           `json:"volume"`
}

type SubmitTickResponse struct {
	Status string `json:"status"`
	Symbol string `json:"symbol"`
}

type SubmitBarResponse struct {
	Status    string `json:"status"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// Handler exposes the ingestion gateway: the push endpoints used by
// forwarding agents, the polling snapshot endpoints, the health probe, and
// the real-time channel upgrade.
type Handler struct {
	hub *hub.Hub
}

func NewGatewayHTTPHandler(marketHub *hub.Hub) *Handler {
	return &Handler{hub: marketHub}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/api/tick-data", h.TickSnapshot)
	mux.HandleFunc("/api/bar-data", h.BarSnapshot)
	mux.HandleFunc("/api/forward/tick", h.SubmitTick)
	mux.HandleFunc("/api/forward/bar", h.SubmitBar)
	mux.HandleFunc("/ws", h.hub.ServeWS)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	tickCount, barCount := h.hub.Store().Counts()
	writeJSON(w, http.StatusOK, entity.GatewayHealth{
		Status:            "healthy",
		Timestamp:         time.Now().UTC(),
		ActiveConnections: h.hub.ActiveSessions(),
		TickDataCount:     tickCount,
		BarDataCount:      barCount,
	})
}

func (h *Handler) TickSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, h.hub.Store().Snapshot().Ticks)
}

func (h *Handler) BarSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, h.hub.Store().Snapshot().Bars)
}

func (h *Handler) SubmitTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	var req SubmitTickRequest
	if err := decodeBody(r.Body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	tick, err := mapSubmitTickRequest(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	h.hub.PublishTick(tick)

	writeJSON(w, http.StatusOK, SubmitTickResponse{
		Status: "success",
		Symbol: tick.Symbol,
	})
}

func (h *Handler) SubmitBar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	var req SubmitBarRequest
	if err := decodeBody(r.Body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	bar, err := mapSubmitBarRequest(&req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	h.hub.PublishBar(bar)

	writeJSON(w, http.StatusOK, SubmitBarResponse{
		Status:    "success",
		Symbol:    bar.Symbol,
		Timeframe: string(bar.Timeframe),
	})
}

func mapSubmitTickRequest(req *SubmitTickRequest) (entity.TickEvent, error) {
	if req.Symbol == nil || strings.TrimSpace(*req.Symbol) == "" {
		return entity.TickEvent{}, entity.ValidationError{Field: "symbol"}
	}
	if req.Bid == nil {
		return entity.TickEvent{}, entity.ValidationError{Field: "bid"}
	}
	if req.Ask == nil {
		return entity.TickEvent{}, entity.ValidationError{Field: "ask"}
	}

	var timestamp time.Time
	if req.Timestamp != nil && strings.TrimSpace(*req.Timestamp) != "" {
		parsed, err := parseTimestamp(*req.Timestamp)
		if err != nil {
			return entity.TickEvent{}, err
		}
		timestamp = parsed
	}

	return entity.NewTickEvent(strings.TrimSpace(*req.Symbol), *req.Bid, *req.Ask, timestamp), nil
}

func mapSubmitBarRequest(req *SubmitBarRequest) (entity.BarEvent, error) {
	if req.Symbol == nil || strings.TrimSpace(*req.Symbol) == "" {
		return entity.BarEvent{}, entity.ValidationError{Field: "symbol"}
	}
	if req.Timeframe == nil || strings.TrimSpace(*req.Timeframe) == "" {
		return entity.BarEvent{}, entity.ValidationError{Field: "timeframe"}
	}
	if req.Time == nil || strings.TrimSpace(*req.Time) == "" {
		return entity.BarEvent{}, entity.ValidationError{Field: "time"}
	}
	if req.Open == nil {
		return entity.BarEvent{}, entity.ValidationError{Field: "open"}
	}
	if req.High == nil {
		return entity.BarEvent{}, entity.ValidationError{Field: "high"}
	}
	if req.Low == nil {
		return entity.BarEvent{}, entity.ValidationError{Field: "low"}
	}
	if req.Close == nil {
		return entity.BarEvent{}, entity.ValidationError{Field: "close"}
	}

	timeframe, err := entity.ParseTimeframe(*req.Timeframe)
	if err != nil {
		return entity.BarEvent{}, err
	}

	barTime, err := parseTimestamp(*req.Time)
	if err != nil {
		return entity.BarEvent{}, err
	}

	var volume int64
	if req.Volume != nil {
		volume = *req.Volume
	}

	return entity.NewBarEvent(strings.TrimSpace(*req.Symbol), timeframe, barTime, *req.Open, *req.High, *req.Low, *req.Close, volume), nil
}

func parseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC(), nil
		}
	}

	return time.Time{}, errors.New("invalid timestamp: " + raw)
}

func decodeBody(body io.Reader, target any) error {
	err := json.NewDecoder(body).Decode(target)
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) {
		return errors.New("No data provided")
	}

	return errors.New("invalid json body")
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("write response: %v", err)
	}
}
