package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ForwardState is the persisted progress of one forwarding agent: the last
// tick timestamp accepted per symbol plus lifetime counters. Restoring it
// across restarts prevents re-sending ticks the gateway already has.
type ForwardState struct {
	TickWatermarks map[string]time.Time `json:"tick_watermarks"`
	TicksSent      uint64               `json:"ticks_sent"`
	BarsSent       uint64               `json:"bars_sent"`
	Errors         uint64               `json:"errors"`
}

type StateStore interface {
	Load(ctx context.Context, key string) (ForwardState, bool, error)
	Save(ctx context.Context, key string, state ForwardState) error
}

type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(cacheDSN string) (*RedisStateStore, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return &RedisStateStore{client: redis.NewClient(options)}, nil
}

func (s *RedisStateStore) Load(ctx context.Context, key string) (ForwardState, bool, error) {
	rawState, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return ForwardState{}, false, nil
		}
		return ForwardState{}, false, err
	}

	var state ForwardState
	if err := json.Unmarshal([]byte(rawState), &state); err != nil {
		return ForwardState{}, false, err
	}

	return state, true, nil
}

func (s *RedisStateStore) Save(ctx context.Context, key string, state ForwardState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, payload, 0).Err()
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

// MemoryStateStore keeps forward state in process. Used when no Redis is
// configured; progress is lost on restart.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]ForwardState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]ForwardState)}
}

func (s *MemoryStateStore) Load(_ context.Context, key string) (ForwardState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	return state, ok, nil
}

func (s *MemoryStateStore) Save(_ context.Context, key string, state ForwardState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[key] = state
	return nil
}
