package stats

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/types"
)

type memoryStore struct {
	mu        sync.Mutex
	snapshots []*types.StationStats
	err       error
}

func (m *memoryStore) StoreSystemStats(ctx context.Context, s *types.StationStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func TestNew(t *testing.T) {
	stats := New()

	if stats == nil {
		t.Fatal("New() returned nil")
	}
	if stats.Recordings != 0 || stats.PassesScheduled != 0 {
		t.Error("Expected counters to start at zero")
	}
	if time.Since(stats.StartTime) > 5*time.Second {
		t.Error("StartTime should be recent")
	}
}

func TestCounters(t *testing.T) {
	stats := New()

	tests := []struct {
		name      string
		increment func()
		value     *uint64
	}{
		{"passes scheduled", stats.IncrementPassesScheduled, &stats.PassesScheduled},
		{"passes trimmed", stats.IncrementPassesTrimmed, &stats.PassesTrimmed},
		{"passes dropped", stats.IncrementPassesDropped, &stats.PassesDropped},
		{"recordings", stats.IncrementRecordings, &stats.Recordings},
		{"missed captures", stats.IncrementMissedCaptures, &stats.MissedCaptures},
		{"decode successes", stats.IncrementDecodeSuccesses, &stats.DecodeSuccesses},
		{"decode failures", stats.IncrementDecodeFailures, &stats.DecodeFailures},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.increment()
			tt.increment()
			if *tt.value != 2 {
				t.Errorf("Expected 2, got %d", *tt.value)
			}
		})
	}

	stats.AddTLEResults(3, 1)
	if stats.TLEUpdates != 3 || stats.TLEFailures != 1 {
		t.Errorf("Expected TLE results 3/1, got %d/%d", stats.TLEUpdates, stats.TLEFailures)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	stats := New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.IncrementRecordings()
		}()
	}
	wg.Wait()

	if got := stats.Snapshot().Recordings; got != 100 {
		t.Errorf("Expected 100 recordings, got %d", got)
	}
}

func TestSnapshot_QueueDepth(t *testing.T) {
	stats := New()
	if got := stats.Snapshot().QueueDepth; got != 0 {
		t.Errorf("Expected 0 queue depth without source, got %d", got)
	}

	stats.SetQueueDepthFunc(func() int { return 4 })
	if got := stats.Snapshot().QueueDepth; got != 4 {
		t.Errorf("Expected queue depth 4, got %d", got)
	}
}

func TestString(t *testing.T) {
	stats := New()
	stats.IncrementRecordings()
	stats.IncrementPassesDropped()

	s := stats.String()
	for _, want := range []string{"recordings=1", "dropped=1", "scheduled=0"} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %q in %q", want, s)
		}
	}
}

func TestPersist(t *testing.T) {
	stats := New()

	if err := stats.Persist(context.Background()); !errors.Is(err, ErrNoStore) {
		t.Errorf("Expected ErrNoStore, got %v", err)
	}

	store := &memoryStore{}
	stats.SetStore(store)
	stats.IncrementDecodeSuccesses()

	if err := stats.Persist(context.Background()); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}
	if store.count() != 1 || store.snapshots[0].DecodeSuccesses != 1 {
		t.Errorf("Unexpected stored snapshots: %+v", store.snapshots)
	}

	store.err = errors.New("db down")
	if err := stats.Persist(context.Background()); err == nil {
		t.Error("Expected store error to be returned")
	}
}

func TestRegister(t *testing.T) {
	stats := New()
	stats.IncrementRecordings()
	stats.SetQueueDepthFunc(func() int { return 2 })

	reg := prometheus.NewRegistry()
	if err := stats.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	values := map[string]float64{}
	for _, f := range families {
		if f.GetName() == "groundstation_passes_scheduled_total" && !strings.Contains(f.GetHelp(), "including trimmed") {
			t.Errorf("Expected scheduled passes help to cover trimmed passes, got %q", f.GetHelp())
		}
		m := f.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			values[f.GetName()] = c.GetValue()
		}
		if g := m.GetGauge(); g != nil {
			values[f.GetName()] = g.GetValue()
		}
	}

	if values["groundstation_recordings_total"] != 1 {
		t.Errorf("Expected recordings_total 1, got %v", values["groundstation_recordings_total"])
	}
	if values["groundstation_decode_queue_depth"] != 2 {
		t.Errorf("Expected queue depth 2, got %v", values["groundstation_decode_queue_depth"])
	}

	if err := stats.Register(reg); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestStartReporting(t *testing.T) {
	stats := New()
	store := &memoryStore{}
	stats.SetStore(store)

	var buf bytes.Buffer
	var mu sync.Mutex
	logger := zerolog.New(zerolog.SyncWriter(&lockedWriter{w: &buf, mu: &mu}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stats.StartReporting(ctx, 10*time.Millisecond, logger)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if store.count() < 3 {
		t.Errorf("Expected periodic and final persistence, got %d snapshots", store.count())
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(buf.String(), "recordings=0") {
		t.Errorf("Expected summary in log output, got %q", buf.String())
	}
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
