package scanner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"aircraftdata/internal/queue"
	"aircraftdata/pkg/adsb"
)

type fakeSource struct {
	mu    sync.Mutex
	calls []Anchor
	fail  map[string]bool
	batch []adsb.AircraftState
}

func (f *fakeSource) FetchPoint(ctx context.Context, lat, lon, radiusNM float64) ([]adsb.AircraftState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Anchor{Lat: lat, Lon: lon, RadiusNM: radiusNM})
	return f.batch, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.New(rdb, queue.IngestionQueue())
}

func TestScanOneEnqueuesWithOverriddenPriority(t *testing.T) {
	q := newTestQueue(t)
	source := &fakeSource{batch: []adsb.AircraftState{
		{ICAO24: "a1b2c3", SourcePriority: 30, DataSource: adsb.SourceFreeNetwork},
	}}
	s := New(DefaultAnchors()[:1], source, q, DefaultConfig())

	if err := s.scanOne(context.Background(), s.anchors[0]); err != nil {
		t.Fatalf("scanOne: %v", err)
	}

	msg, err := q.Pop(context.Background(), time.Second)
	if err != nil || msg == nil {
		t.Fatalf("pop: %v %v", msg, err)
	}
	if !msg.SkipHistory {
		t.Error("expected skip_history=true")
	}
	if msg.SourcePriority != scanSourcePriority {
		t.Errorf("expected enqueued source_priority %d, got %d", scanSourcePriority, msg.SourcePriority)
	}

	var state adsb.AircraftState
	if err := json.Unmarshal(msg.Payload, &state); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if state.SourcePriority != scanSourcePriority {
		t.Errorf("expected payload source_priority %d, got %d", scanSourcePriority, state.SourcePriority)
	}
}

func TestScanOneWithNoResultsEnqueuesNothing(t *testing.T) {
	q := newTestQueue(t)
	source := &fakeSource{batch: nil}
	s := New(DefaultAnchors()[:1], source, q, DefaultConfig())

	if err := s.scanOne(context.Background(), s.anchors[0]); err != nil {
		t.Fatalf("scanOne: %v", err)
	}

	depth, err := q.Depth(context.Background())
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth.Ready != 0 {
		t.Errorf("expected nothing enqueued, got %d", depth.Ready)
	}
}

func TestRunRoundRobinsAcrossAnchorsAndIsolatesFailures(t *testing.T) {
	q := newTestQueue(t)
	source := &fakeSource{batch: []adsb.AircraftState{{ICAO24: "a1b2c3"}}}
	anchors := []Anchor{{Name: "a", Lat: 1, Lon: 1, RadiusNM: 10}, {Name: "b", Lat: 2, Lon: 2, RadiusNM: 10}}
	s := New(anchors, source, q, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if source.callCount() < 2 {
		t.Errorf("expected at least 2 round-robin calls across anchors, got %d", source.callCount())
	}
}

func TestRunWithNoAnchorsReturnsImmediately(t *testing.T) {
	q := newTestQueue(t)
	source := &fakeSource{}
	s := New(nil, source, q, DefaultConfig())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return immediately with no anchors")
	}
}
