package decode

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/orbit"
	"github.com/saviobatista/groundstation/internal/shell"
	"github.com/saviobatista/groundstation/internal/types"
)

// HookOptions configures the post-processing command
type HookOptions struct {
	Command      string
	Foreach      bool
	DaytimeOnly  bool
	MinElevation float64
}

// Hook runs a user command on decoded artifacts. {file} in the command is
// replaced by each quoted artifact in turn, or by all of them at once.
type Hook struct {
	opts      HookOptions
	runner    shell.Runner
	location  types.Location
	logger    zerolog.Logger
	isDaytime func(time.Time, types.Location) bool
}

// NewHook creates a post-processing hook for a station location
func NewHook(opts HookOptions, runner shell.Runner, location types.Location, logger zerolog.Logger) *Hook {
	return &Hook{
		opts:      opts,
		runner:    runner,
		location:  location,
		logger:    logger,
		isDaytime: orbit.IsDaytime,
	}
}

// ShouldRun reports whether the hook applies to a pass
func (h *Hook) ShouldRun(pass types.Pass) bool {
	if pass.MaxElevation < h.opts.MinElevation {
		return false
	}
	return !h.opts.DaytimeOnly || h.isDaytime(pass.AOS, h.location)
}

// Commands expands the command template for a set of artifacts
func (h *Hook) Commands(artifacts []string) []string {
	quoted := make([]string, len(artifacts))
	for i, a := range artifacts {
		quoted[i] = shell.Quote(a)
	}

	if h.opts.Foreach {
		commands := make([]string, len(quoted))
		for i, q := range quoted {
			commands[i] = strings.ReplaceAll(h.opts.Command, "{file}", q)
		}
		return commands
	}
	return []string{strings.ReplaceAll(h.opts.Command, "{file}", strings.Join(quoted, " "))}
}

// Run executes the hook for a decoded recording. Failures are logged only.
func (h *Hook) Run(ctx context.Context, rec *types.Recording, artifacts []string) {
	if len(artifacts) == 0 || !h.ShouldRun(rec.Pass) {
		return
	}

	for _, command := range h.Commands(artifacts) {
		if err := h.runner.Run(ctx, command); err != nil {
			h.logger.Warn().Err(err).Str("satellite", rec.Satellite.Name).Msg("Post-processing hook failed")
		}
	}
}
