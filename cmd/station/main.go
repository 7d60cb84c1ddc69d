package main

import (
	"context"
	"fmt"
	"errors"
	"io"
	"os"
	"strings"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/saviobatista/groundstation/internal/config"
	"github.com/saviobatista/groundstation/internal/db"
	"github.com/saviobatista/groundstation/internal/logger"
	"github.com/saviobatista/groundstation/internal/resolver"
	"github.com/saviobatista/groundstation/internal/shell"
	"github.com/saviobatista/groundstation/internal/storage"
)

// Globals are flags shared by every command
type Globals struct {
	Config string `help:"Path to the station configuration." short:"c" default:"config.yaml" type:"path"`
	Debug  bool   `help:"Enable debug logging."`
}

// CLI is the command line of the station
type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" default:"1" help:"Run the station (default)."`
	Passes  PassesCmd  `cmd:"" help:"Print the resolved schedule for the next hour and exit."`
	History HistoryCmd `cmd:"" help:"Print recent decode outcomes from the history store."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("station"),
		kong.Description("Satellite ground station scheduler and recorder."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "station: %v\n", err)
		os.Exit(1)
	}
}

// RunCmd operates the station until interrupted
type RunCmd struct{}

// Run implements the run command
func (r *RunCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}

	logStore := storage.New(cfg.Log.Dir, "station")
	if err := logStore.Start(); err != nil {
		return err
	}
	defer func() {
		if err := logStore.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}()

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Debug: g.Debug, Output: logger.Tee(logStore)}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.WithComponent("station")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	station, err := NewStation(cfg, shell.Exec{Logger: logger.WithComponent("shell")}, log)
	if err != nil {
		return err
	}
	defer station.Close()

	return station.Run(ctx)
}

// PassesCmd prints the schedule the next cycle would produce
type PassesCmd struct {
	At time.Time `help:"Plan from this time instead of now (RFC 3339)." format:"2006-01-02T15:04:05Z07:00"`
}

// Run implements the passes command
func (p *PassesCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	level := "warn"
	if g.Debug {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, Output: os.Stderr}); err != nil {
		return err
	}

	// Backends are not needed to plan
	cfg.History.Enabled = false
	cfg.Feed.Enabled = false
	cfg.Metrics.Addr = ""

	station, err := NewStation(cfg, shell.Exec{Logger: logger.WithComponent("shell")}, logger.WithComponent("station"))
	if err != nil {
		return err
	}
	defer station.Close()

	now := p.At
	if now.IsZero() {
		now = time.Now()
	}
	printPlan(os.Stdout, station.Plan(context.Background(), now), now)
	return nil
}

// printPlan writes one row per decision
func printPlan(w io.Writer, decisions []resolver.Decision, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SATELLITE\tACTION\tAOS\tLOS\tMAX EL\tSTARTS")
	for _, d := range decisions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
			d.Candidate.Satellite.VerboseName,
			d.Action,
			d.AOS.UTC().Format("15:04:05"),
			d.LOS.UTC().Format("15:04:05"),
			d.Candidate.Pass.MaxElevation,
			humanize.RelTime(d.AOS, now, "ago", "from now"),
		)
	}
	_ = tw.Flush()
}

// ErrHistoryDisabled is returned when no history store is configured
var ErrHistoryDisabled = errors.New("history store is not configured")

// decodeHistory reads decode outcomes
type decodeHistory interface {
	RecentDecodes(ctx context.Context, since time.Time, limit int) ([]*db.PassSummary, error)
}

// HistoryCmd prints the latest decode outcomes
type HistoryCmd struct {
	Since   time.Duration `help:"How far back to look." default:"24h"`
	Limit   int           `help:"Maximum number of rows." default:"20"`
	Timeout time.Duration `help:"Query timeout." default:"10s"`
}

// Run implements the history command
func (h *HistoryCmd) Run(g *Globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return err
	}
	if cfg.History.DBConnStr == "" {
		return ErrHistoryDisabled
	}

	client, err := db.New(cfg.History.DBConnStr)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	defer cancel()
	return h.show(ctx, client, os.Stdout, time.Now().UTC())
}

func (h *HistoryCmd) show(ctx context.Context, history decodeHistory, w io.Writer, now time.Time) error {
	rows, err := history.RecentDecodes(ctx, now.Add(-h.Since), h.Limit)
	if err != nil {
		return err
	}
	printHistory(w, rows, now)
	return nil
}

// printHistory writes one row per decode outcome
func printHistory(w io.Writer, rows []*db.PassSummary, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SATELLITE\tAOS\tMAX EL\tRESULT\tARTIFACTS\tRECORDING")
	for _, r := range rows {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\t%s\n",
			r.Satellite,
			humanize.RelTime(r.AOS, now, "ago", "from now"),
			r.MaxElevation,
			result,
			strings.Join(r.Artifacts, ","),
			r.RecordingID,
		)
	}
	_ = tw.Flush()
}
