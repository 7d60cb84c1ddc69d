package tle

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/types"
)

// Source provides the current element set of a satellite
type Source interface {
	FetchTLE(ctx context.Context, noradID int) (types.TLE, error)
}

// Cache persists element sets between restarts
type Cache interface {
	StoreTLE(ctx context.Context, noradID int, tle types.TLE) error
	GetTLE(ctx context.Context, noradID int) (*types.TLE, error)
}

// PredictorFactory builds a predictor from an element set
type PredictorFactory func(types.TLE) (types.Predictor, error)

// Result summarizes one refresh run
type Result struct {
	Updated   int
	FromCache int
	Failed    int
}

// Refresher updates the orbit snapshot of every satellite
type Refresher struct {
	source       Source
	cache        Cache
	newPredictor PredictorFactory
	logger       zerolog.Logger
	mu           sync.Mutex // serializes refresh runs
}

// NewRefresher creates a Refresher. cache may be nil.
func NewRefresher(source Source, cache Cache, factory PredictorFactory, logger zerolog.Logger) *Refresher {
	return &Refresher{
		source:       source,
		cache:        cache,
		newPredictor: factory,
		logger:       logger,
	}
}

// Refresh fetches a fresh element set for each satellite. A satellite whose
// fetch fails keeps its previous snapshot; one without any snapshot falls
// back to the cache.
func (r *Refresher) Refresh(ctx context.Context, satellites []*types.Satellite) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result
	for _, sat := range satellites {
		if ctx.Err() != nil {
			return res
		}

		r.logger.Info().Str("satellite", sat.VerboseName).Msg("Updating TLE")

		tle, err := r.source.FetchTLE(ctx, sat.NoradID)
		if err != nil {
			r.logger.Error().Err(err).Str("satellite", sat.Name).Msg("Failed to fetch TLE")
			if sat.Orbit() != nil || !r.loadCached(ctx, sat) {
				res.Failed++
				continue
			}
			res.FromCache++
			continue
		}

		if err := r.apply(sat, tle); err != nil {
			res.Failed++
			continue
		}
		res.Updated++

		if r.cache != nil {
			if err := r.cache.StoreTLE(ctx, sat.NoradID, tle); err != nil {
				r.logger.Warn().Err(err).Str("satellite", sat.Name).Msg("Failed to cache TLE")
			}
		}
	}

	r.logger.Info().
		Int("updated", res.Updated).
		Int("from_cache", res.FromCache).
		Int("failed", res.Failed).
		Msg("TLEs updated")
	return res
}

func (r *Refresher) loadCached(ctx context.Context, sat *types.Satellite) bool {
	if r.cache == nil {
		return false
	}
	cached, err := r.cache.GetTLE(ctx, sat.NoradID)
	if err != nil {
		r.logger.Warn().Err(err).Str("satellite", sat.Name).Msg("Failed to read cached TLE")
		return false
	}
	if cached == nil {
		return false
	}
	if err := r.apply(sat, *cached); err != nil {
		return false
	}
	r.logger.Info().Str("satellite", sat.Name).Time("fetched_at", cached.FetchedAt).Msg("Using cached TLE")
	return true
}

func (r *Refresher) apply(sat *types.Satellite, tle types.TLE) error {
	predictor, err := r.newPredictor(tle)
	if err != nil {
		r.logger.Error().Err(err).Str("satellite", sat.Name).Msg("Failed to build predictor")
		return err
	}
	sat.UpdateOrbit(tle, predictor)
	return nil
}
