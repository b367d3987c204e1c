package forwarder

import (
	"github.com/krobus00/market-stream-service/internal/entity"
)

// FilteredSource restricts a market source to a configured set of symbols
// and bar subscriptions. An empty tick filter passes every tick; an empty
// bar filter passes every bar.
type FilteredSource struct {
	inner       entity.MarketSource
	tickSymbols map[string]struct{}
	barSubs     map[string]map[entity.Timeframe]struct{}
}

func NewFilteredSource(inner entity.MarketSource) *FilteredSource {
	return &FilteredSource{
		inner:       inner,
		tickSymbols: make(map[string]struct{}),
		barSubs:     make(map[string]map[entity.Timeframe]struct{}),
	}
}

func (s *FilteredSource) AllowTicks(symbols ...string) {
	for _, symbol := range symbols {
		s.tickSymbols[symbol] = struct{}{}
	}
}

func (s *FilteredSource) AllowBars(symbol string, timeframe entity.Timeframe) {
	if s.barSubs[symbol] == nil {
		s.barSubs[symbol] = make(map[entity.Timeframe]struct{})
	}
	s.barSubs[symbol][timeframe] = struct{}{}
}

func (s *FilteredSource) NextTick() (entity.TickEvent, bool) {
	for {
		tick, ok := s.inner.NextTick()
		if !ok {
			return entity.TickEvent{}, false
		}

		if len(s.tickSymbols) == 0 {
			return tick, true
		}
		if _, allowed := s.tickSymbols[tick.Symbol]; allowed {
			return tick, true
		}
	}
}

func (s *FilteredSource) NextBar() (entity.BarEvent, bool) {
	for {
		bar, ok := s.inner.NextBar()
		if !ok {
			return entity.BarEvent{}, false
		}

		if len(s.barSubs) == 0 {
			return bar, true
		}
		if timeframes, allowed := s.barSubs[bar.Symbol]; allowed {
			if _, allowed := timeframes[bar.Timeframe]; allowed {
				return bar, true
			}
		}
	}
}

func (s *FilteredSource) IsActive() bool {
	return s.inner.IsActive()
}
