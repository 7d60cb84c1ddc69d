// Package decode turns finished recordings into images, one at a time and
// in capture order.
package decode

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/orbit"
	"github.com/saviobatista/groundstation/internal/shell"
	"github.com/saviobatista/groundstation/internal/stats"
	"github.com/saviobatista/groundstation/internal/types"
)

// Publisher announces decoded passes
type Publisher interface {
	PublishPass(entry *types.FeedEntry) error
}

// History records recordings and decode outcomes
type History interface {
	StoreRecording(ctx context.Context, rec *types.Recording) error
	StoreDecode(ctx context.Context, recordingID string, artifacts []string, success bool, duration time.Duration) error
}

// ConsumerConfig wires the optional collaborators of a Consumer. Nil
// Hook, Publisher and History are skipped.
type ConsumerConfig struct {
	OutputDir string
	Location  types.Location
	Options   Options
	Hook      *Hook
	Publisher Publisher
	History   History
}

// Consumer drains the decode queue
type Consumer struct {
	queue     *Queue
	pipelines map[types.Downlink]Pipeline
	config    ConsumerConfig
	stats     *stats.Stats
	logger    zerolog.Logger
}

// NewConsumer creates a consumer with one pipeline per downlink mode
func NewConsumer(queue *Queue, runner shell.Runner, st *stats.Stats, config ConsumerConfig, logger zerolog.Logger) (*Consumer, error) {
	pipelines := make(map[types.Downlink]Pipeline)
	for _, d := range []types.Downlink{types.DownlinkAPT, types.DownlinkLRPT} {
		p, err := PipelineFor(d, runner, config.Options, logger)
		if err != nil {
			return nil, err
		}
		pipelines[d] = p
	}

	return &Consumer{
		queue:     queue,
		pipelines: pipelines,
		config:    config,
		stats:     st,
		logger:    logger,
	}, nil
}

// Run processes recordings until ctx is done. A recording stays at the head
// of the queue until its pipeline and hooks have finished.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info().Msg("Decode consumer started")
	for {
		if err := c.queue.Wait(ctx); err != nil {
			c.logger.Info().Int("pending", c.queue.Len()).Msg("Decode consumer stopped")
			return
		}

		rec, ok := c.queue.Peek()
		if !ok {
			continue
		}
		c.process(ctx, rec)
		c.queue.Done(rec.ID)
	}
}

func (c *Consumer) process(ctx context.Context, rec *types.Recording) {
	log := c.logger.With().Str("recording_id", rec.ID).Str("satellite", rec.Satellite.Name).Logger()

	defer func() {
		if r := recover(); r != nil {
			c.stats.IncrementDecodeFailures()
			log.Error().Interface("panic", r).Msg("Recovered from panic while decoding")
		}
	}()

	if c.config.History != nil {
		if err := c.config.History.StoreRecording(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("Failed to store recording")
		}
	}

	pipeline, ok := c.pipelines[rec.Satellite.Downlink]
	if !ok {
		c.stats.IncrementDecodeFailures()
		log.Error().Str("downlink", rec.Satellite.Downlink.String()).Msg("No decode pipeline for downlink")
		return
	}

	started := time.Now()
	artifacts, err := pipeline.Decode(ctx, rec)
	elapsed := time.Since(started)
	if err != nil {
		c.stats.IncrementDecodeFailures()
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Decode finished with errors")
	} else {
		c.stats.IncrementDecodeSuccesses()
		log.Info().Strs("artifacts", artifacts).Dur("elapsed", elapsed).Msg("Decode finished")
	}

	if c.config.History != nil {
		if herr := c.config.History.StoreDecode(ctx, rec.ID, artifacts, err == nil, elapsed); herr != nil {
			log.Warn().Err(herr).Msg("Failed to store decode outcome")
		}
	}

	if c.config.Publisher != nil {
		entry := c.FeedEntry(rec, artifacts)
		if perr := c.config.Publisher.PublishPass(entry); perr != nil {
			log.Warn().Err(perr).Msg("Failed to publish pass")
		}
	}

	if c.config.Hook != nil {
		c.config.Hook.Run(ctx, rec, artifacts)
	}
}

// FeedEntry builds the published description of a decoded recording
func (c *Consumer) FeedEntry(rec *types.Recording, artifacts []string) *types.FeedEntry {
	return &types.FeedEntry{
		RecordingID:  rec.ID,
		Satellite:    rec.Satellite.VerboseName,
		NoradID:      rec.Satellite.NoradID,
		Downlink:     rec.Satellite.Downlink,
		Path:         relative(c.config.OutputDir, rec.Stem),
		Timestamp:    rec.Start,
		AOS:          rec.Pass.AOS,
		LOS:          rec.Pass.LOS,
		MaxElevation: rec.Pass.MaxElevation,
		Artifacts:    relativeAll(c.config.OutputDir, artifacts),
		Daytime:      orbit.IsDaytime(rec.Pass.AOS, c.config.Location),
	}
}

func relative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func relativeAll(base string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = relative(base, p)
	}
	return out
}
