package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// spread is quoted with a fixed 5 decimal precision
const SpreadPrecision = 5

// TickEvent is a single bid/ask observation for one symbol. Values are
// fixed at construction time.
type TickEvent struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Timestamp time.Time       `json:"timestamp"`
	Spread    decimal.Decimal `json:"spread"`
}

// NewTickEvent derives the spread from bid/ask. A zero timestamp means the
// producer did not stamp the observation, so the receipt time is used.
func NewTickEvent(symbol string, bid, ask decimal.Decimal, timestamp time.Time) TickEvent {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return TickEvent{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: timestamp.UTC(),
		Spread:    ask.Sub(bid).Round(SpreadPrecision),
	}
}
