package forwarder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/shopspring/decimal"
)

type fakeSource struct {
	mu     sync.Mutex
	ticks  []entity.TickEvent
	bars   []entity.BarEvent
	active bool
}

func (s *fakeSource) NextTick() (entity.TickEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ticks) == 0 {
		return entity.TickEvent{}, false
	}
	tick := s.ticks[0]
	s.ticks = s.ticks[1:]
	return tick, true
}

func (s *fakeSource) NextBar() (entity.BarEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bars) == 0 {
		return entity.BarEvent{}, false
	}
	bar := s.bars[0]
	s.bars = s.bars[1:]
	return bar, true
}

func (s *fakeSource) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type fakeSink struct {
	mu        sync.Mutex
	ticks     []entity.TickEvent
	bars      []entity.BarEvent
	healthErr error
	pushErr   error
}

func (s *fakeSink) SubmitTick(_ context.Context, tick entity.TickEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pushErr != nil {
		return s.pushErr
	}
	s.ticks = append(s.ticks, tick)
	return nil
}

func (s *fakeSink) SubmitBar(_ context.Context, bar entity.BarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pushErr != nil {
		return s.pushErr
	}
	s.bars = append(s.bars, bar)
	return nil
}

func (s *fakeSink) Health(_ context.Context) (entity.GatewayHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.healthErr != nil {
		return entity.GatewayHealth{}, s.healthErr
	}
	return entity.GatewayHealth{Status: "healthy"}, nil
}

func (s *fakeSink) sentTicks() []entity.TickEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.TickEvent(nil), s.ticks...)
}

func (s *fakeSink) sentBars() []entity.BarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.BarEvent(nil), s.bars...)
}

func tickAt(symbol string, stamp time.Time) entity.TickEvent {
	return entity.NewTickEvent(symbol, decimal.NewFromFloat(1.1), decimal.NewFromFloat(1.2), stamp)
}

func barAt(symbol string, timeframe entity.Timeframe, stamp time.Time) entity.BarEvent {
	price := decimal.NewFromFloat(1.1)
	return entity.NewBarEvent(symbol, timeframe, stamp, price, price, price, price, 1)
}

func TestDrainDeduplicatesRepeatedTicks(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{active: true, ticks: []entity.TickEvent{
		tickAt("EURUSD", stamp),
		tickAt("EURUSD", stamp),
		tickAt("EURUSD", stamp.Add(time.Second)),
	}}
	sink := &fakeSink{}
	agent := New(source, sink, nil, Config{})

	if err := agent.drain(context.Background()); err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	sent := sink.sentTicks()
	if len(sent) != 2 {
		t.Fatalf("sent %d ticks, want 2 (duplicate timestamp skipped)", len(sent))
	}
	if !sent[1].Timestamp.After(sent[0].Timestamp) {
		t.Errorf("ticks sent out of order: %v then %v", sent[0].Timestamp, sent[1].Timestamp)
	}
}

func TestDrainOlderTickSkipped(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{active: true, ticks: []entity.TickEvent{
		tickAt("EURUSD", stamp),
		tickAt("EURUSD", stamp.Add(-time.Second)),
	}}
	sink := &fakeSink{}
	agent := New(source, sink, nil, Config{})

	if err := agent.drain(context.Background()); err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	if got := len(sink.sentTicks()); got != 1 {
		t.Errorf("sent %d ticks, want 1 (older tick skipped)", got)
	}
}

func TestDrainWatermarksArePerSymbol(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{active: true, ticks: []entity.TickEvent{
		tickAt("EURUSD", stamp),
		tickAt("GBPUSD", stamp),
	}}
	sink := &fakeSink{}
	agent := New(source, sink, nil, Config{})

	if err := agent.drain(context.Background()); err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	if got := len(sink.sentTicks()); got != 2 {
		t.Errorf("sent %d ticks, want 2 (watermarks are per symbol)", got)
	}
}

func TestDrainBarsForwardedUnconditionally(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{active: true, bars: []entity.BarEvent{
		barAt("EURUSD", entity.TimeframeM1, stamp),
		barAt("EURUSD", entity.TimeframeM1, stamp),
	}}
	sink := &fakeSink{}
	agent := New(source, sink, nil, Config{})

	if err := agent.drain(context.Background()); err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	if got := len(sink.sentBars()); got != 2 {
		t.Errorf("sent %d bars, want 2 (bars are never deduplicated)", got)
	}
}

func TestDrainFailureThreshold(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ticks := make([]entity.TickEvent, 10)
	for i := range ticks {
		ticks[i] = tickAt("EURUSD", stamp.Add(time.Duration(i)*time.Second))
	}

	source := &fakeSource{active: true, ticks: ticks}
	sink := &fakeSink{pushErr: errors.New("boom")}
	agent := New(source, sink, nil, Config{FailureThreshold: 3})

	err := agent.drain(context.Background())
	if !errors.Is(err, errTooManyFailures) {
		t.Fatalf("drain() error = %v, want errTooManyFailures", err)
	}

	stats := agent.Stats()
	if stats.Errors != 3 {
		t.Errorf("Errors = %d, want 3", stats.Errors)
	}
	if stats.TicksSent != 0 {
		t.Errorf("TicksSent = %d, want 0", stats.TicksSent)
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{active: true}
	sink := &fakeSink{}
	agent := New(source, sink, nil, Config{FailureThreshold: 3})

	agent.recordFailure("tick", "EURUSD", errors.New("boom"))
	agent.recordFailure("tick", "EURUSD", errors.New("boom"))
	agent.recordTickSent(tickAt("EURUSD", stamp))

	if hit := agent.recordFailure("tick", "EURUSD", errors.New("boom")); hit {
		t.Error("threshold hit after a success reset the failure run")
	}
}

func TestStatsSuccessRate(t *testing.T) {
	agent := New(&fakeSource{}, &fakeSink{}, nil, Config{})

	if got := agent.Stats().SuccessRate; got != 1.0 {
		t.Errorf("SuccessRate with no attempts = %v, want 1.0", got)
	}

	stamp := time.Now()
	agent.recordTickSent(tickAt("EURUSD", stamp))
	agent.recordTickSent(tickAt("EURUSD", stamp.Add(time.Second)))
	agent.recordBarSent()
	agent.recordFailure("tick", "EURUSD", errors.New("boom"))

	stats := agent.Stats()
	if got, want := stats.SuccessRate, 0.75; got != want {
		t.Errorf("SuccessRate = %v, want %v", got, want)
	}
	if stats.TicksSent != 2 || stats.BarsSent != 1 || stats.Errors != 1 {
		t.Errorf("counters = %+v, want 2/1/1", stats)
	}
}

func TestStateRoundTripSkipsKnownTicks(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	stateStore := NewMemoryStateStore()

	first := New(&fakeSource{}, &fakeSink{}, stateStore, Config{StateKey: "test"})
	first.recordTickSent(tickAt("EURUSD", stamp))
	first.flushState(ctx)

	sink := &fakeSink{}
	source := &fakeSource{active: true, ticks: []entity.TickEvent{
		tickAt("EURUSD", stamp),
		tickAt("EURUSD", stamp.Add(time.Second)),
	}}
	second := New(source, sink, stateStore, Config{StateKey: "test"})
	second.restoreState(ctx)

	if err := second.drain(ctx); err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	if got := len(sink.sentTicks()); got != 1 {
		t.Fatalf("sent %d ticks, want 1 (restored watermark skips first)", got)
	}

	stats := second.Stats()
	if stats.TicksSent != 2 {
		t.Errorf("TicksSent = %d, want 2 (1 restored + 1 new)", stats.TicksSent)
	}
}

func TestRunStopsWhenSourceInactive(t *testing.T) {
	source := &fakeSource{active: false}
	sink := &fakeSink{}
	agent := New(source, sink, nil, Config{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := agent.Stats().State; got != StateStopped {
		t.Errorf("State = %q, want %q", got, StateStopped)
	}
}

func TestRunForwardsPendingEvents(t *testing.T) {
	stamp := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{active: true, ticks: []entity.TickEvent{tickAt("EURUSD", stamp)}}
	sink := &fakeSink{}
	stateStore := NewMemoryStateStore()
	agent := New(source, sink, stateStore, Config{PollInterval: 5 * time.Millisecond, StateKey: "run-test"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- agent.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for len(sink.sentTicks()) == 0 {
		select {
		case <-deadline:
			t.Fatal("tick was never forwarded")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	state, found, err := stateStore.Load(context.Background(), "run-test")
	if err != nil || !found {
		t.Fatalf("Load() = %v, %v; want saved state", found, err)
	}
	if state.TicksSent != 1 {
		t.Errorf("persisted TicksSent = %d, want 1", state.TicksSent)
	}
	if got := state.TickWatermarks["EURUSD"]; !got.Equal(stamp) {
		t.Errorf("persisted watermark = %v, want %v", got, stamp)
	}
}
