package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/types"
)

// ErrNoStore is returned by Persist when no store is configured
var ErrNoStore = errors.New("stats store not set")

// Store persists statistics snapshots
type Store interface {
	StoreSystemStats(ctx context.Context, stats *types.StationStats) error
}

// Stats tracks station activity
type Stats struct {
	PassesScheduled uint64
	PassesTrimmed   uint64
	PassesDropped   uint64
	Recordings      uint64
	MissedCaptures  uint64
	DecodeSuccesses uint64
	DecodeFailures  uint64
	TLEUpdates      uint64
	TLEFailures     uint64

	StartTime time.Time

	queueDepth func() int
	store      Store

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{
		StartTime: time.Now(),
	}
}

// SetStore sets the store used by Persist
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// SetQueueDepthFunc sets the source of the decode queue depth
func (s *Stats) SetQueueDepthFunc(fn func() int) {
	s.mu.Lock()
	s.queueDepth = fn
	s.mu.Unlock()
}

// IncrementPassesScheduled counts a pass scheduled for recording, trimmed or not
func (s *Stats) IncrementPassesScheduled() {
	atomic.AddUint64(&s.PassesScheduled, 1)
}

// IncrementPassesTrimmed counts a pass scheduled with a shortened window
func (s *Stats) IncrementPassesTrimmed() {
	atomic.AddUint64(&s.PassesTrimmed, 1)
}

// IncrementPassesDropped counts a pass lost to a conflict
func (s *Stats) IncrementPassesDropped() {
	atomic.AddUint64(&s.PassesDropped, 1)
}

// IncrementRecordings counts a finished capture
func (s *Stats) IncrementRecordings() {
	atomic.AddUint64(&s.Recordings, 1)
}

// IncrementMissedCaptures counts a capture that could not be started
func (s *Stats) IncrementMissedCaptures() {
	atomic.AddUint64(&s.MissedCaptures, 1)
}

// IncrementDecodeSuccesses counts a decode that produced artifacts
func (s *Stats) IncrementDecodeSuccesses() {
	atomic.AddUint64(&s.DecodeSuccesses, 1)
}

// IncrementDecodeFailures counts a decode with at least one failed step
func (s *Stats) IncrementDecodeFailures() {
	atomic.AddUint64(&s.DecodeFailures, 1)
}

// AddTLEResults adds the outcome of one TLE refresh
func (s *Stats) AddTLEResults(updated, failed int) {
	atomic.AddUint64(&s.TLEUpdates, uint64(updated))
	atomic.AddUint64(&s.TLEFailures, uint64(failed))
}

func (s *Stats) currentQueueDepth() int {
	s.mu.RLock()
	fn := s.queueDepth
	s.mu.RUnlock()
	if fn == nil {
		return 0
	}
	return fn()
}

// Snapshot returns a copy of the current statistics
func (s *Stats) Snapshot() *types.StationStats {
	now := time.Now()
	return &types.StationStats{
		Time:            now.UTC(),
		PassesScheduled: atomic.LoadUint64(&s.PassesScheduled),
		PassesTrimmed:   atomic.LoadUint64(&s.PassesTrimmed),
		PassesDropped:   atomic.LoadUint64(&s.PassesDropped),
		Recordings:      atomic.LoadUint64(&s.Recordings),
		MissedCaptures:  atomic.LoadUint64(&s.MissedCaptures),
		DecodeSuccesses: atomic.LoadUint64(&s.DecodeSuccesses),
		DecodeFailures:  atomic.LoadUint64(&s.DecodeFailures),
		TLEUpdates:      atomic.LoadUint64(&s.TLEUpdates),
		TLEFailures:     atomic.LoadUint64(&s.TLEFailures),
		QueueDepth:      s.currentQueueDepth(),
		Uptime:          now.Sub(s.StartTime),
	}
}

// String returns a one-line summary of the statistics
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"scheduled=%d trimmed=%d dropped=%d recordings=%d missed=%d decoded=%d failed=%d queue=%d up since %s",
		snap.PassesScheduled,
		snap.PassesTrimmed,
		snap.PassesDropped,
		snap.Recordings,
		snap.MissedCaptures,
		snap.DecodeSuccesses,
		snap.DecodeFailures,
		snap.QueueDepth,
		humanize.Time(s.StartTime),
	)
}

// Register exports the counters to a Prometheus registerer
func (s *Stats) Register(reg prometheus.Registerer) error {
	counter := func(name, help string, v *uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "groundstation",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(atomic.LoadUint64(v)) })
	}

	collectors := []prometheus.Collector{
		counter("passes_scheduled_total", "Passes scheduled for recording, including trimmed ones.", &s.PassesScheduled),
		counter("passes_trimmed_total", "Passes scheduled with a trimmed window.", &s.PassesTrimmed),
		counter("passes_dropped_total", "Passes dropped by conflict resolution.", &s.PassesDropped),
		counter("recordings_total", "Captures completed.", &s.Recordings),
		counter("missed_captures_total", "Captures that failed to start.", &s.MissedCaptures),
		counter("decode_successes_total", "Recordings decoded without error.", &s.DecodeSuccesses),
		counter("decode_failures_total", "Recordings with a failed decode step.", &s.DecodeFailures),
		counter("tle_updates_total", "Successful TLE updates.", &s.TLEUpdates),
		counter("tle_failures_total", "Failed TLE updates.", &s.TLEFailures),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "groundstation",
			Name:      "decode_queue_depth",
			Help:      "Recordings waiting for or in decode.",
		}, func() float64 { return float64(s.currentQueueDepth()) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// Persist stores the current statistics
func (s *Stats) Persist(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return ErrNoStore
	}
	return store.StoreSystemStats(ctx, s.Snapshot())
}

// StartReporting logs, and persists when a store is set, every interval until ctx is done
func (s *Stats) StartReporting(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	report := func(ctx context.Context) {
		logger.Info().Msg(s.String())
		if err := s.Persist(ctx); err != nil && !errors.Is(err, ErrNoStore) {
			logger.Error().Err(err).Msg("Failed to persist statistics")
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			report(final)
			cancel()
			return
		case <-ticker.C:
			report(ctx)
		}
	}
}
