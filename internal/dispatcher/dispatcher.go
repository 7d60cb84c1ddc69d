// Package dispatcher runs the predict, resolve and schedule cycle and keeps
// orbital elements fresh.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/orbit"
	"github.com/saviobatista/groundstation/internal/resolver"
	"github.com/saviobatista/groundstation/internal/scheduler"
	"github.com/saviobatista/groundstation/internal/stats"
	"github.com/saviobatista/groundstation/internal/tle"
	"github.com/saviobatista/groundstation/internal/types"
)

// PassRefreshInterval is how often the schedule is extended
const PassRefreshInterval = time.Hour

// Timer fires jobs at absolute times and at fixed intervals
type Timer interface {
	At(when time.Time, job scheduler.Job)
	Every(interval time.Duration, job scheduler.Job)
}

// PassRecorder captures one pass
type PassRecorder interface {
	RecordPass(ctx context.Context, sat *types.Satellite, los time.Time, pass types.Pass) (*types.Recording, error)
}

// TLERefresher updates satellite orbits
type TLERefresher interface {
	Refresh(ctx context.Context, satellites []*types.Satellite) tle.Result
}

// History records scheduled passes
type History interface {
	StoreScheduledPass(ctx context.Context, rec *types.ScheduledRecording) error
}

// Config holds the dispatcher settings
type Config struct {
	Location          types.Location
	MaximumOverlap    time.Duration
	TLEUpdateInterval time.Duration
}

// Dispatcher owns the periodic refresh timers
type Dispatcher struct {
	satellites []*types.Satellite
	timer      Timer
	recorder   PassRecorder
	refresher  TLERefresher
	stats      *stats.Stats
	history    History
	config     Config
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a dispatcher
func New(satellites []*types.Satellite, timer Timer, recorder PassRecorder, refresher TLERefresher, st *stats.Stats, config Config, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		satellites: satellites,
		timer:      timer,
		recorder:   recorder,
		refresher:  refresher,
		stats:      st,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// SetHistory enables recording of scheduled passes
func (d *Dispatcher) SetHistory(h History) {
	d.history = h
}

// Start refreshes orbits, registers the periodic timers and schedules the
// first hour of passes
func (d *Dispatcher) Start(ctx context.Context) {
	d.RefreshTLEs(ctx)

	d.timer.Every(d.config.TLEUpdateInterval, func(ctx context.Context) { d.RefreshTLEs(ctx) })
	d.timer.Every(PassRefreshInterval, func(ctx context.Context) { d.RefreshPasses(ctx) })

	d.RefreshPasses(ctx)
}

// RefreshTLEs updates every satellite orbit from the TLE source
func (d *Dispatcher) RefreshTLEs(ctx context.Context) tle.Result {
	d.logger.Info().Msg("Updating TLEs")
	res := d.refresher.Refresh(ctx, d.satellites)
	d.stats.AddTLEResults(res.Updated, res.Failed)

	d.logger.Info().
		Int("updated", res.Updated).
		Int("from_cache", res.FromCache).
		Int("failed", res.Failed).
		Msg("TLE update finished")
	return res
}

// Predict returns the next pass of every satellite with a loaded orbit.
// Satellites whose prediction fails are skipped.
func (d *Dispatcher) Predict(now time.Time) []types.PassCandidate {
	candidates := make([]types.PassCandidate, 0, len(d.satellites))
	for _, sat := range d.satellites {
		predictor := sat.Predictor()
		if predictor == nil {
			d.logger.Warn().Str("satellite", sat.Name).Msg("No orbit loaded, skipping")
			continue
		}

		pass, err := predictor.NextPass(d.config.Location, now, sat.MinElevation)
		if errors.Is(err, orbit.ErrNoPass) {
			d.logger.Debug().Str("satellite", sat.Name).Msg("No pass above minimum elevation")
			continue
		}
		if err != nil {
			d.logger.Error().Err(err).Str("satellite", sat.Name).Msg("Pass prediction failed")
			continue
		}
		candidates = append(candidates, types.PassCandidate{Pass: pass, Satellite: sat})
	}
	return candidates
}

// Plan predicts and resolves the passes starting within the lookahead window
func (d *Dispatcher) Plan(now time.Time) []resolver.Decision {
	candidates := resolver.Candidates(d.Predict(now), now, resolver.Lookahead)
	return resolver.Evaluate(candidates, d.config.MaximumOverlap)
}

// RefreshPasses schedules a recording job at the AOS of every pass kept by
// the resolver and returns the schedule. Jobs from earlier cycles are left
// untouched.
func (d *Dispatcher) RefreshPasses(ctx context.Context) []types.ScheduledRecording {
	now := d.now()
	d.logger.Info().Msg("Updating passes")

	var scheduled []types.ScheduledRecording
	for _, decision := range d.Plan(now) {
		sat := decision.Candidate.Satellite
		log := d.logger.With().
			Str("satellite", sat.Name).
			Time("aos", decision.AOS).
			Time("los", decision.LOS).
			Float64("max_elevation", decision.Candidate.Pass.MaxElevation).
			Logger()

		switch decision.Action {
		case resolver.Drop:
			d.stats.IncrementPassesDropped()
			log.Info().Msg("Pass dropped, overlap too large")
			continue
		case resolver.Trim:
			d.stats.IncrementPassesTrimmed()
			log = log.With().Time("original_los", decision.Candidate.Pass.LOS).Logger()
			log.Info().Msg("Pass trimmed to end at a higher ranked AOS")
		}

		rec := decision.Recording()
		d.schedule(ctx, rec, log)
		scheduled = append(scheduled, rec)
	}

	d.logger.Info().Int("scheduled", len(scheduled)).Msg("Pass update finished")
	return scheduled
}

func (d *Dispatcher) schedule(ctx context.Context, rec types.ScheduledRecording, log zerolog.Logger) {
	d.stats.IncrementPassesScheduled()
	if d.history != nil {
		if err := d.history.StoreScheduledPass(ctx, &rec); err != nil {
			log.Warn().Err(err).Msg("Failed to store scheduled pass")
		}
	}

	d.timer.At(rec.AOS, func(ctx context.Context) {
		if _, err := d.recorder.RecordPass(ctx, rec.Satellite, rec.LOS, rec.Pass); err != nil {
			log.Warn().Err(err).Msg("Recording job ended without a recording")
		}
	})
	log.Info().Msg("Pass scheduled")
}
