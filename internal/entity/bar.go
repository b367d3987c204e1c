package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
	TimeframeW1  Timeframe = "W1"
	TimeframeMN1 Timeframe = "MN1"
)

var validTimeframes = map[Timeframe]struct{}{
	TimeframeM1:  {},
	TimeframeM5:  {},
	TimeframeM15: {},
	TimeframeM30: {},
	TimeframeH1:  {},
	TimeframeH4:  {},
	TimeframeD1:  {},
	TimeframeW1:  {},
	TimeframeMN1: {},
}

func ParseTimeframe(raw string) (Timeframe, error) {
	timeframe := Timeframe(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := validTimeframes[timeframe]; !ok {
		return "", fmt.Errorf("unsupported timeframe: %s", raw)
	}

	return timeframe, nil
}

// BarEvent is one OHLCV aggregate for a symbol/timeframe window. BarTime
// marks the bar opening; ReceivedAt is stamped by the node that accepted it.
type BarEvent struct {
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	BarTime    time.Time       `json:"time"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     int64           `json:"volume"`
	ReceivedAt time.Time       `json:"timestamp"`
}

func NewBarEvent(symbol string, timeframe Timeframe, barTime time.Time, open, high, low, closePrice decimal.Decimal, volume int64) BarEvent {
	return BarEvent{
		Symbol:     symbol,
		Timeframe:  timeframe,
		BarTime:    barTime.UTC(),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     volume,
		ReceivedAt: time.Now().UTC(),
	}
}
