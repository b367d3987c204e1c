package forwarder

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()

	_, found, err := store.Load(ctx, "missing")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() found = true for missing key, want false")
	}

	state := ForwardState{
		TickWatermarks: map[string]time.Time{
			"EURUSD": time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		TicksSent: 10,
		BarsSent:  2,
		Errors:    1,
	}

	if err := store.Save(ctx, "agent", state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, found, err := store.Load(ctx, "agent")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if loaded.TicksSent != 10 || loaded.BarsSent != 2 || loaded.Errors != 1 {
		t.Errorf("loaded counters = %+v, want 10/2/1", loaded)
	}
	if !loaded.TickWatermarks["EURUSD"].Equal(state.TickWatermarks["EURUSD"]) {
		t.Errorf("watermark = %v, want %v", loaded.TickWatermarks["EURUSD"], state.TickWatermarks["EURUSD"])
	}
}
