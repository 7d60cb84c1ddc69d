package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/radio"
	"github.com/saviobatista/groundstation/internal/shell"
	"github.com/saviobatista/groundstation/internal/stats"
	"github.com/saviobatista/groundstation/internal/types"
)

// StopCommand terminates the capture tool by name
const StopCommand = "killall rtl_fm"

// ErrUnsupportedDownlink is returned for a satellite without a capture command
var ErrUnsupportedDownlink = errors.New("unsupported downlink")

// Enqueuer receives finished recordings
type Enqueuer interface {
	Append(rec *types.Recording)
}

// Config holds capture settings
type Config struct {
	OutputDir   string
	PPM         int
	SettleDelay time.Duration
}

// Recorder captures passes on the shared receiver
type Recorder struct {
	arbiter *radio.Arbiter
	runner  shell.Runner
	queue   Enqueuer
	stats   *stats.Stats
	config  Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder
func NewRecorder(arbiter *radio.Arbiter, runner shell.Runner, queue Enqueuer, st *stats.Stats, config Config, logger zerolog.Logger) *Recorder {
	return &Recorder{
		arbiter: arbiter,
		runner:  runner,
		queue:   queue,
		stats:   st,
		config:  config,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Stem returns the artifact path without extension for a capture started at start
func Stem(outputDir string, sat *types.Satellite, start time.Time) string {
	return filepath.Join(outputDir, sat.Name, sat.Name+"_"+start.UTC().Format("20060102-150405"))
}

// Extension returns the file extension of the raw capture for a downlink
func Extension(d types.Downlink) string {
	switch d {
	case types.DownlinkAPT:
		return ".wav"
	case types.DownlinkLRPT:
		return ".raw"
	default:
		return ""
	}
}

func formatFrequency(mhz float64) string {
	return strconv.FormatFloat(mhz, 'f', -1, 64)
}

// Command returns the capture command for a satellite writing to stem
func Command(sat *types.Satellite, stem string, ppm int) (string, error) {
	freq := formatFrequency(sat.Frequency)
	switch sat.Downlink {
	case types.DownlinkAPT:
		return fmt.Sprintf(
			"rtl_fm -f %sM -s 48000 -p %d - | ffmpeg -hide_banner -f s16le -channels 1 -sample_rate 48k -i pipe:0 -f wav %s",
			freq, ppm, shell.Quote(stem+".wav"),
		), nil
	case types.DownlinkLRPT:
		return fmt.Sprintf("rtl_fm -M raw -s 140000 -f %sM -p %d -E dc %s", freq, ppm, shell.Quote(stem+".raw")), nil
	default:
		return "", fmt.Errorf("%w %s for %s", ErrUnsupportedDownlink, sat.Downlink, sat.Name)
	}
}

// EnsureDirs creates the per-satellite output directories
func EnsureDirs(outputDir string, satellites []*types.Satellite) error {
	for _, sat := range satellites {
		if err := os.MkdirAll(filepath.Join(outputDir, sat.Name), 0o750); err != nil {
			return fmt.Errorf("failed to create output directory for %s: %w", sat.Name, err)
		}
	}
	return nil
}

// RecordPass waits for the receiver, captures until los, then hands the
// recording to the decode queue. A capture that fails to start is a missed
// pass; it is not retried. Cancelling ctx ends the wait early.
func (r *Recorder) RecordPass(ctx context.Context, sat *types.Satellite, los time.Time, pass types.Pass) (*types.Recording, error) {
	log := r.logger.With().Str("satellite", sat.Name).Logger()

	if err := r.arbiter.AcquireContext(ctx); err != nil {
		log.Warn().Err(err).Msg("Gave up waiting for the receiver")
		return nil, err
	}
	held := true
	defer func() {
		if held {
			r.arbiter.Release()
		}
	}()

	log.Info().Msg("AOS")
	start := r.now()
	stem := Stem(r.config.OutputDir, sat, start)

	command, err := Command(sat, stem, r.config.PPM)
	if err != nil {
		r.stats.IncrementMissedCaptures()
		log.Error().Err(err).Msg("Failed to build capture command")
		return nil, err
	}

	log.Info().
		Str("downlink", sat.Downlink.String()).
		Str("frequency", formatFrequency(sat.Frequency)+"MHz").
		Str("stem", stem).
		Msg("Recording")

	proc, err := r.runner.Start(ctx, command)
	if err != nil {
		r.stats.IncrementMissedCaptures()
		log.Error().Err(err).Msg("Failed to start capture, pass missed")
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}
	go func() {
		if err := proc.Wait(); err != nil {
			log.Debug().Err(err).Msg("Capture process exited")
		}
	}()

	waitUntil(ctx, los.Sub(r.now()))

	// Shutdown must not leave the receiver running
	if err := r.runner.Run(context.Background(), StopCommand); err != nil {
		log.Warn().Err(err).Msg("Failed to stop capture")
	}
	log.Info().Msg("LOS")

	waitUntil(ctx, r.config.SettleDelay)

	held = false
	r.arbiter.Release()

	if err := ctx.Err(); err != nil {
		log.Warn().Msg("Capture interrupted by shutdown, not queued for decode")
		return nil, err
	}

	rec := &types.Recording{
		ID:        uuid.NewString(),
		Satellite: sat,
		Stem:      stem,
		Start:     start,
		Pass:      pass,
	}

	event := log.Info().Str("recording_id", rec.ID).Dur("duration", r.now().Sub(start))
	if info, err := os.Stat(stem + Extension(sat.Downlink)); err == nil {
		event = event.Str("size", humanize.Bytes(uint64(info.Size())))
	}
	event.Msg("Recording complete, queued for decode")

	r.stats.IncrementRecordings()
	r.queue.Append(rec)
	return rec, nil
}

// waitUntil blocks for d or until ctx is done
func waitUntil(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
