package decode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/shell"
	"github.com/saviobatista/groundstation/internal/types"
)

// DefaultOQPSKSatellites use the OQPSK demodulator and differential decoding
var DefaultOQPSKSatellites = []string{"METEOR-M2_2"}

// Pipeline decodes one recording and returns its output artifacts in order.
// The artifacts are returned even when a step failed.
type Pipeline interface {
	Decode(ctx context.Context, rec *types.Recording) ([]string, error)
}

// Options configures the decode pipelines
type Options struct {
	// OQPSKSatellites lists satellite names, spaces replaced by underscores
	OQPSKSatellites []string
	// CorrectionCommand is applied to each LRPT image; {in} and {out} are
	// replaced by the quoted path. Empty disables correction.
	CorrectionCommand string
}

// PipelineFor returns the pipeline of a downlink mode
func PipelineFor(d types.Downlink, runner shell.Runner, opts Options, logger zerolog.Logger) (Pipeline, error) {
	switch d {
	case types.DownlinkAPT:
		return &APT{runner: runner, logger: logger}, nil
	case types.DownlinkLRPT:
		oqpsk := make(map[string]bool, len(opts.OQPSKSatellites))
		for _, name := range opts.OQPSKSatellites {
			oqpsk[strings.ReplaceAll(strings.TrimSpace(name), " ", "_")] = true
		}
		return &LRPT{
			runner:     runner,
			oqpsk:      oqpsk,
			correction: opts.CorrectionCommand,
			logger:     logger,
		}, nil
	default:
		return nil, fmt.Errorf("no decode pipeline for downlink %s", d)
	}
}

// removeArtifact deletes an intermediate file. A missing file means an
// earlier step failed silently; it is logged and returned.
func removeArtifact(path string, logger zerolog.Logger) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Error().Str("file", path).Msg("Intermediate file not found, a previous step may have failed silently")
		return fmt.Errorf("missing intermediate %s: %w", path, err)
	}
	if err != nil {
		logger.Warn().Err(err).Str("file", path).Msg("Failed to remove intermediate file")
		return nil
	}
	return nil
}

// APT decodes NOAA automatic picture transmission audio
type APT struct {
	runner shell.Runner
	logger zerolog.Logger
}

// Ascending reports whether the satellite moves north at aos
func Ascending(p types.Predictor, aos time.Time) (bool, error) {
	if p == nil {
		return false, errors.New("no predictor loaded")
	}
	latAOS, err := p.SubPointLatitude(aos)
	if err != nil {
		return false, err
	}
	latAfter, err := p.SubPointLatitude(aos.Add(time.Second))
	if err != nil {
		return false, err
	}
	return latAfter > latAOS, nil
}

// Decode runs noaa-apt on the recorded audio
func (a *APT) Decode(ctx context.Context, rec *types.Recording) ([]string, error) {
	sat := rec.Satellite
	name := strings.ToLower(sat.Name)
	log := a.logger.With().Str("satellite", sat.Name).Str("stem", rec.Stem).Logger()
	log.Info().Msg("Decoding APT")

	ascending, err := Ascending(sat.Predictor(), rec.Pass.AOS)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to determine pass direction, assuming descending")
	}
	rotate := "no"
	if ascending {
		rotate = "yes"
	}

	wav := rec.Stem + ".wav"
	png := rec.Stem + ".png"
	command := fmt.Sprintf("noaa-apt --rotate %s -s %s %s -o %s", rotate, name, shell.Quote(wav), shell.Quote(png))

	err = a.runner.Run(ctx, command)
	if err != nil {
		log.Error().Err(err).Msg("APT decode failed")
	} else if sat.DeleteProcessedFiles {
		err = removeArtifact(wav, log)
	}

	log.Info().Msg("Done decoding APT")
	return []string{png}, err
}
