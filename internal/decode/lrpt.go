package decode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/saviobatista/groundstation/internal/shell"
	"github.com/saviobatista/groundstation/internal/types"
)

// channel is one medet output image
type channel struct {
	suffix string
	args   string
}

var lrptChannels = []channel{
	{suffix: "-Visible", args: "-r 65 -g 65 -b 64"},
	{suffix: "-Infrared", args: "-r 68 -g 68 -b 68"},
}

// LRPT demodulates and decodes Meteor low rate picture transmission
type LRPT struct {
	runner     shell.Runner
	oqpsk      map[string]bool
	correction string
	logger     zerolog.Logger
}

// Decode runs demodulation, channel decode, conversion and geometry correction
func (l *LRPT) Decode(ctx context.Context, rec *types.Recording) ([]string, error) {
	sat := rec.Satellite
	stem := rec.Stem
	oqpsk := l.oqpsk[sat.Name]
	cleanup := sat.DeleteProcessedFiles
	log := l.logger.With().Str("satellite", sat.Name).Str("stem", stem).Logger()

	var errs []error

	log.Info().Msg("Demodulating LRPT")
	mode := ""
	if oqpsk {
		mode = "-m oqpsk "
	}
	demod := fmt.Sprintf("meteor_demod %s-B -s 140000 %s -o %s", mode, shell.Quote(stem+".raw"), shell.Quote(stem+".lrpt"))
	if err := l.runner.Run(ctx, demod); err != nil {
		log.Error().Err(err).Msg("Demodulation failed")
		errs = append(errs, err)
	} else if cleanup {
		errs = append(errs, removeArtifact(stem+".raw", log))
	}

	log.Info().Msg("Decoding LRPT")
	var g errgroup.Group
	for _, ch := range lrptChannels {
		command := fmt.Sprintf("medet %s %s %s", shell.Quote(stem+".lrpt"), shell.Quote(stem+ch.suffix), ch.args)
		if oqpsk {
			command += " -diff"
		}
		g.Go(func() error {
			return l.runner.Run(ctx, command)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Channel decode failed")
		errs = append(errs, err)
	} else if cleanup {
		errs = append(errs, removeArtifact(stem+".lrpt", log))
	}

	converted := true
	for _, ch := range lrptChannels {
		command := fmt.Sprintf("ffmpeg -hide_banner -i %s %s", shell.Quote(stem+ch.suffix+".bmp"), shell.Quote(stem+ch.suffix+".png"))
		if err := l.runner.Run(ctx, command); err != nil {
			log.Error().Err(err).Str("channel", ch.suffix).Msg("Image conversion failed")
			errs = append(errs, err)
			converted = false
		}
	}
	if converted && cleanup {
		for _, ch := range lrptChannels {
			errs = append(errs, removeArtifact(stem+ch.suffix+".bmp", log))
		}
	}

	artifacts := make([]string, 0, len(lrptChannels))
	for _, ch := range lrptChannels {
		png := stem + ch.suffix + ".png"
		artifacts = append(artifacts, png)

		if l.correction == "" {
			continue
		}
		command := strings.NewReplacer("{in}", shell.Quote(png), "{out}", shell.Quote(png)).Replace(l.correction)
		if err := l.runner.Run(ctx, command); err != nil {
			log.Warn().Err(err).Str("channel", ch.suffix).Msg("Geometry correction failed")
		}
	}

	log.Info().Msg("Done decoding LRPT")
	return artifacts, errors.Join(errs...)
}
