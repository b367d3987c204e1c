package store

import (
	"sync"

	"github.com/krobus00/market-stream-service/internal/entity"
)

const DefaultBarHistoryLimit = 100

type barKey struct {
	symbol    string
	timeframe entity.Timeframe
}

// Store is the single source of truth for current market state: the latest
// tick per symbol and a bounded history of recent bars per symbol/timeframe.
type Store struct {
	mu       sync.RWMutex
	ticks    map[string]entity.TickEvent
	bars     map[barKey][]entity.BarEvent
	barLimit int
}

func New(barLimit int) *Store {
	if barLimit <= 0 {
		barLimit = DefaultBarHistoryLimit
	}

	return &Store{
		ticks:    make(map[string]entity.TickEvent),
		bars:     make(map[barKey][]entity.BarEvent),
		barLimit: barLimit,
	}
}

// UpdateTick replaces the latest tick for the symbol. Always succeeds.
func (s *Store) UpdateTick(tick entity.TickEvent) {
	s.mu.Lock()
	s.ticks[tick.Symbol] = tick
	s.mu.Unlock()
}

// AppendBar appends to the symbol/timeframe history, evicting the oldest
// entries beyond the configured bound. Duplicate bar times are accepted;
// deduplication is not this layer's responsibility.
func (s *Store) AppendBar(bar entity.BarEvent) {
	key := barKey{symbol: bar.Symbol, timeframe: bar.Timeframe}

	s.mu.Lock()
	history := append(s.bars[key], bar)
	if len(history) > s.barLimit {
		history = history[len(history)-s.barLimit:]
	}
	s.bars[key] = history
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the full market state. The caller may
// hold or mutate the result freely.
func (s *Store) Snapshot() entity.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() entity.MarketSnapshot {
	snapshot := entity.MarketSnapshot{
		Ticks: make(map[string]entity.TickEvent, len(s.ticks)),
		Bars:  make(map[string]map[entity.Timeframe][]entity.BarEvent),
	}

	for symbol, tick := range s.ticks {
		snapshot.Ticks[symbol] = tick
	}

	for key, history := range s.bars {
		if snapshot.Bars[key.symbol] == nil {
			snapshot.Bars[key.symbol] = make(map[entity.Timeframe][]entity.BarEvent)
		}

		copied := make([]entity.BarEvent, len(history))
		copy(copied, history)
		snapshot.Bars[key.symbol][key.timeframe] = copied
	}

	return snapshot
}

// Counts reports how many symbols hold tick data and how many hold bar
// series, which is what the health endpoint exposes.
func (s *Store) Counts() (tickSymbols, barSymbols int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.bars))
	for key := range s.bars {
		seen[key.symbol] = struct{}{}
	}

	return len(s.ticks), len(seen)
}
