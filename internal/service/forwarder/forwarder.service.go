package forwarder

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateInit         State = "INIT"
	StateConnecting   State = "CONNECTING"
	StateForwarding   State = "FORWARDING"
	StateRetryBackoff State = "RETRY_BACKOFF"
	StateStopped      State = "STOPPED"
)

const (
	DefaultPollInterval     = 250 * time.Millisecond
	DefaultStatsInterval    = 30 * time.Second
	DefaultFailureThreshold = 5
	DefaultBackoffFactor    = 2.0
	DefaultMinBackoff       = 1 * time.Second
	DefaultMaxBackoff       = 30 * time.Second
	DefaultStateKey         = "forwarder:state"
)

// Stats is a point-in-time view of the agent's lifetime counters.
type Stats struct {
	State       State   `json:"state"`
	TicksSent   uint64  `json:"ticks_sent"`
	BarsSent    uint64  `json:"bars_sent"`
	Errors      uint64  `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
}

type Config struct {
	PollInterval     time.Duration
	StatsInterval    time.Duration
	FailureThreshold int
	BackoffFactor    float64
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	StateKey         string
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.StateKey == "" {
		c.StateKey = DefaultStateKey
	}
}

// Agent drains a local market source and pushes its events to a remote
// gateway. Ticks are deduplicated against a per-symbol timestamp watermark;
// bars are forwarded unconditionally. The agent gates forwarding on the
// gateway's health probe and falls back to exponential backoff after a run
// of consecutive push failures.
type Agent struct {
	source     entity.MarketSource
	sink       entity.MarketSink
	stateStore StateStore
	cfg        Config
	rng        *rand.Rand

	startedAt time.Time

	mu                  sync.Mutex
	state               State
	watermarks          map[string]time.Time
	ticksSent           uint64
	barsSent            uint64
	errors              uint64
	consecutiveFailures int
}

func New(source entity.MarketSource, sink entity.MarketSink, stateStore StateStore, cfg Config) *Agent {
	cfg.applyDefaults()

	if stateStore == nil {
		stateStore = NewMemoryStateStore()
	}

	return &Agent{
		source:     source,
		sink:       sink,
		stateStore: stateStore,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		startedAt:  time.Now(),
		state:      StateInit,
		watermarks: make(map[string]time.Time),
	}
}

// Run drives the agent until the context is cancelled or the source goes
// inactive. It always flushes state and logs final stats before returning.
func (a *Agent) Run(ctx context.Context) error {
	a.restoreState(ctx)

	statsTicker := time.NewTicker(a.cfg.StatsInterval)
	defer statsTicker.Stop()

	defer func() {
		a.setState(StateStopped)
		a.flushState(context.WithoutCancel(ctx))
		a.logStats("forwarder stopped")
	}()

	for attempt := 0; ; {
		if err := a.waitUntilHealthy(ctx); err != nil {
			return err
		}

		err := a.forward(ctx, statsTicker.C)
		switch err {
		case nil:
			return nil
		case errTooManyFailures:
			a.setState(StateRetryBackoff)
			delay := backoffWithJitter(attempt, a.cfg.BackoffFactor, a.cfg.MinBackoff, a.cfg.MaxBackoff, a.rng)
			attempt++
			logrus.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("too many consecutive push failures, backing off")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		default:
			return err
		}
	}
}

// Stats reports lifetime counters. SuccessRate is sent/(sent+errors), or 1
// before anything has been attempted.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	sent := a.ticksSent + a.barsSent
	rate := 1.0
	if sent+a.errors > 0 {
		rate = float64(sent) / float64(sent+a.errors)
	}

	return Stats{
		State:       a.state,
		TicksSent:   a.ticksSent,
		BarsSent:    a.barsSent,
		Errors:      a.errors,
		SuccessRate: rate,
	}
}

var errTooManyFailures = &forwardError{"too many consecutive push failures"}

type forwardError struct{ msg string }

func (e *forwardError) Error() string { return e.msg }

// waitUntilHealthy blocks until the gateway health probe succeeds, backing
// off between attempts.
func (a *Agent) waitUntilHealthy(ctx context.Context) error {
	a.setState(StateConnecting)

	for attempt := 0; ; attempt++ {
		health, err := a.sink.Health(ctx)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"gateway_status":     health.Status,
				"active_connections": health.ActiveConnections,
			}).Info("gateway reachable, forwarding")
			a.setState(StateForwarding)
			a.resetFailures()
			return nil
		}

		delay := backoffWithJitter(attempt, a.cfg.BackoffFactor, a.cfg.MinBackoff, a.cfg.MaxBackoff, a.rng)
		logrus.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warnf("gateway not ready: %v", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// forward polls the source and pushes pending events. It returns nil when
// the run is over (context cancelled or source inactive) and
// errTooManyFailures when the consecutive failure threshold is hit.
func (a *Agent) forward(ctx context.Context, stats <-chan time.Time) error {
	pollTicker := time.NewTicker(a.cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stats:
			a.logStats("forwarder stats")
			a.flushState(ctx)
		case <-pollTicker.C:
			if !a.source.IsActive() {
				logrus.Info("market source inactive, stopping forwarder")
				return nil
			}

			if err := a.drain(ctx); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) drain(ctx context.Context) error {
	for {
		tick, ok := a.source.NextTick()
		if !ok {
			break
		}

		if !a.shouldForwardTick(tick) {
			continue
		}

		if err := a.sink.SubmitTick(ctx, tick); err != nil {
			if a.recordFailure("tick", tick.Symbol, err) {
				return errTooManyFailures
			}
			continue
		}

		a.recordTickSent(tick)
	}

	for {
		bar, ok := a.source.NextBar()
		if !ok {
			break
		}

		if err := a.sink.SubmitBar(ctx, bar); err != nil {
			if a.recordFailure("bar", bar.Symbol, err) {
				return errTooManyFailures
			}
			continue
		}

		a.recordBarSent()
	}

	return nil
}

// shouldForwardTick keeps only ticks strictly newer than the symbol's
// watermark, so a restarted or repeating source never re-sends data the
// gateway already accepted.
func (a *Agent) shouldForwardTick(tick entity.TickEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	watermark, ok := a.watermarks[tick.Symbol]
	return !ok || tick.Timestamp.After(watermark)
}

func (a *Agent) recordTickSent(tick entity.TickEvent) {
	a.mu.Lock()
	a.watermarks[tick.Symbol] = tick.Timestamp
	a.ticksSent++
	a.consecutiveFailures = 0
	a.mu.Unlock()
}

func (a *Agent) recordBarSent() {
	a.mu.Lock()
	a.barsSent++
	a.consecutiveFailures = 0
	a.mu.Unlock()
}

func (a *Agent) recordFailure(kind, symbol string, err error) (thresholdHit bool) {
	a.mu.Lock()
	a.errors++
	a.consecutiveFailures++
	thresholdHit = a.consecutiveFailures >= a.cfg.FailureThreshold
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"kind":   kind,
		"symbol": symbol,
	}).Warnf("push failed: %v", err)

	return thresholdHit
}

func (a *Agent) resetFailures() {
	a.mu.Lock()
	a.consecutiveFailures = 0
	a.mu.Unlock()
}

func (a *Agent) setState(state State) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

func (a *Agent) restoreState(ctx context.Context) {
	state, found, err := a.stateStore.Load(ctx, a.cfg.StateKey)
	if err != nil {
		logrus.Warnf("load forwarder state: %v", err)
		return
	}
	if !found {
		return
	}

	a.mu.Lock()
	if state.TickWatermarks != nil {
		a.watermarks = state.TickWatermarks
	}
	a.ticksSent = state.TicksSent
	a.barsSent = state.BarsSent
	a.errors = state.Errors
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"symbols":    len(state.TickWatermarks),
		"ticks_sent": state.TicksSent,
		"bars_sent":  state.BarsSent,
	}).Info("forwarder state restored")
}

func (a *Agent) flushState(ctx context.Context) {
	a.mu.Lock()
	watermarks := make(map[string]time.Time, len(a.watermarks))
	for symbol, timestamp := range a.watermarks {
		watermarks[symbol] = timestamp
	}
	state := ForwardState{
		TickWatermarks: watermarks,
		TicksSent:      a.ticksSent,
		BarsSent:       a.barsSent,
		Errors:         a.errors,
	}
	a.mu.Unlock()

	if err := a.stateStore.Save(ctx, a.cfg.StateKey, state); err != nil {
		logrus.Warnf("save forwarder state: %v", err)
	}
}

func (a *Agent) logStats(message string) {
	stats := a.Stats()
	logrus.WithFields(logrus.Fields{
		"state":        stats.State,
		"ticks_sent":   stats.TicksSent,
		"bars_sent":    stats.BarsSent,
		"errors":       stats.Errors,
		"success_rate": stats.SuccessRate,
		"uptime":       time.Since(a.startedAt).Round(time.Second).String(),
	}).Info(message)
}

func backoffWithJitter(attempt int, factor float64, min, max time.Duration, rng *rand.Rand) time.Duration {
	backoff := float64(min) * math.Pow(factor, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}

	base := time.Duration(backoff)
	if max <= min {
		return base
	}

	jitterWindow := max - min
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > max {
		return max
	}

	return result
}
