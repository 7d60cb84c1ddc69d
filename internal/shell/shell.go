// Package shell runs external tools through sh -c.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Process is a started command
type Process interface {
	Wait() error
}

// Runner starts shell commands. Run waits for completion; a non-zero exit
// status is returned as an error.
type Runner interface {
	Start(ctx context.Context, command string) (Process, error)
	Run(ctx context.Context, command string) error
}

// Exec runs commands on the local host
type Exec struct {
	Logger zerolog.Logger
}

// Start launches command without waiting for it
func (e Exec) Start(ctx context.Context, command string) (Process, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	e.Logger.Debug().Str("command", command).Msg("Starting command")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", command, err)
	}
	return cmd, nil
}

// Run launches command and waits for it to exit
func (e Exec) Run(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	e.Logger.Debug().Str("command", command).Msg("Running command")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %q failed: %w", command, err)
	}
	return nil
}

// Quote wraps s in single quotes for sh
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
