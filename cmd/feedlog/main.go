package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/logger"
	"github.com/saviobatista/groundstation/internal/nats"
	"github.com/saviobatista/groundstation/internal/storage"
	"github.com/saviobatista/groundstation/internal/types"
)

// CLI holds the command line flags
type CLI struct {
	NATSURL   string `name:"nats-url" help:"NATS server URL." env:"NATS_URL" default:"nats://nats:4222"`
	OutputDir string `help:"Directory for the daily feed files." env:"OUTPUT_DIR" default:"./feed"`
	Consumer  string `help:"Durable consumer name; restarts resume after the last archived entry." default:"feedlog"`
	LogLevel  string `help:"Log level." env:"LOG_LEVEL" default:"info"`
}

// Subscriber delivers feed entries
type Subscriber interface {
	SubscribePasses(durable string, handler func(*types.FeedEntry)) error
	Close()
}

// LineWriter appends one line to the feed archive
type LineWriter interface {
	WriteMessage(message []byte) error
}

// FeedLog archives every decoded pass as a JSON line
type FeedLog struct {
	out     LineWriter
	logger  zerolog.Logger
	written atomic.Uint64
}

// NewFeedLog creates a feed archiver
func NewFeedLog(out LineWriter, logger zerolog.Logger) *FeedLog {
	return &FeedLog{out: out, logger: logger}
}

// Handle writes one entry
func (f *FeedLog) Handle(entry *types.FeedEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		f.logger.Error().Err(err).Str("recording_id", entry.RecordingID).Msg("Failed to marshal entry")
		return
	}
	if err := f.out.WriteMessage(data); err != nil {
		f.logger.Error().Err(err).Str("recording_id", entry.RecordingID).Msg("Failed to write entry")
		return
	}
	f.written.Add(1)
	f.logger.Debug().
		Str("recording_id", entry.RecordingID).
		Str("satellite", entry.Satellite).
		Int("artifacts", len(entry.Artifacts)).
		Msg("Pass archived")
}

// Written returns the number of archived entries
func (f *FeedLog) Written() uint64 {
	return f.written.Load()
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("feedlog"),
		kong.Description("Archive the ground station pass feed to daily JSON line files."),
	)

	if err := logger.Init(logger.Config{Level: cli.LogLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("feedlog")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := nats.New(cli.NATSURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create NATS client")
		os.Exit(1)
	}

	if err := run(ctx, client, cli.Consumer, storage.New(cli.OutputDir, "passes"), log); err != nil {
		log.Error().Err(err).Msg("Feed logger failed")
		os.Exit(1)
	}
}

// run archives the feed until ctx is done. The subscriber is closed on return.
func run(ctx context.Context, sub Subscriber, consumer string, store *storage.Storage, log zerolog.Logger) error {
	defer sub.Close()

	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to close feed file")
		}
	}()

	feed := NewFeedLog(store, log)
	if err := sub.SubscribePasses(consumer, feed.Handle); err != nil {
		return fmt.Errorf("failed to subscribe to pass feed: %w", err)
	}
	log.Info().Str("file", store.CurrentPath()).Msg("Archiving pass feed")

	<-ctx.Done()
	log.Info().Uint64("entries", feed.Written()).Msg("Shutting down")
	return nil
}
