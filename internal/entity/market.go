package entity

import (
	"context"
	"fmt"
	"time"
)

// MarketSnapshot is a point-in-time copy of the relay's market state,
// safe to hand to a new session without further mutation risk.
type MarketSnapshot struct {
	Ticks map[string]TickEvent                `json:"ticks"`
	Bars  map[string]map[Timeframe][]BarEvent `json:"bars"`
}

type GatewayHealth struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	ActiveConnections int       `json:"active_connections"`
	TickDataCount     int       `json:"tick_data_count"`
	BarDataCount      int       `json:"bar_data_count"`
}

// MarketSource is the pull side of the forwarding agent: whatever feeds the
// edge (terminal adapter bridge, replay, test double) exposes pending
// events without blocking and reports its own liveness.
type MarketSource interface {
	NextTick() (TickEvent, bool)
	NextBar() (BarEvent, bool)
	IsActive() bool
}

// MarketSink is the push side of the forwarding agent.
type MarketSink interface {
	SubmitTick(ctx context.Context, tick TickEvent) error
	SubmitBar(ctx context.Context, bar BarEvent) error
	Health(ctx context.Context) (GatewayHealth, error)
}

type ValidationError struct {
	Field string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("Missing required field: %s", e.Field)
}

// StreamEvent is the envelope used on the real-time channel in both
// directions. Client commands carry only the event name.
type StreamEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
