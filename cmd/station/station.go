package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/saviobatista/groundstation/internal/capture"
	"github.com/saviobatista/groundstation/internal/config"
	"github.com/saviobatista/groundstation/internal/db"
	"github.com/saviobatista/groundstation/internal/decode"
	"github.com/saviobatista/groundstation/internal/dispatcher"
	"github.com/saviobatista/groundstation/internal/logger"
	"github.com/saviobatista/groundstation/internal/nats"
	"github.com/saviobatista/groundstation/internal/orbit"
	"github.com/saviobatista/groundstation/internal/radio"
	"github.com/saviobatista/groundstation/internal/redis"
	"github.com/saviobatista/groundstation/internal/resolver"
	"github.com/saviobatista/groundstation/internal/scheduler"
	"github.com/saviobatista/groundstation/internal/shell"
	"github.com/saviobatista/groundstation/internal/stats"
	"github.com/saviobatista/groundstation/internal/tle"
	"github.com/saviobatista/groundstation/internal/types"
)

const statsInterval = time.Minute

// Station wires the scheduling, capture and decode components
type Station struct {
	config     *config.Config
	satellites []*types.Satellite
	stats      *stats.Stats
	queue      *decode.Queue
	runner     shell.Runner
	refresher  *tle.Refresher
	logger     zerolog.Logger

	history *db.Client
	feed    *nats.Client
	cache   *redis.Client
	hook    *decode.Hook
	metrics *http.Server
}

// NewStation connects the optional backends. A backend that cannot be
// reached is disabled with a warning; the station still records.
func NewStation(cfg *config.Config, runner shell.Runner, log zerolog.Logger) (*Station, error) {
	s := &Station{
		config:     cfg,
		satellites: cfg.BuildSatellites(),
		stats:      stats.New(),
		queue:      decode.NewQueue(),
		runner:     runner,
		logger:     log,
	}
	s.stats.SetQueueDepthFunc(s.queue.Len)

	if err := capture.EnsureDirs(cfg.Station.OutputDir, s.satellites); err != nil {
		return nil, err
	}

	var cache tle.Cache
	if cfg.TLE.CacheEnabled {
		client, err := redis.New(cfg.TLE.RedisAddr)
		if err != nil {
			log.Warn().Err(err).Msg("TLE cache unavailable, continuing without it")
		} else {
			s.cache = client
			cache = client
		}
	}
	s.refresher = tle.NewRefresher(
		tle.NewFetcher(cfg.TLE.SourceURL, logger.WithComponent("tle")),
		cache,
		orbit.NewPredictor,
		logger.WithComponent("tle"),
	)

	if cfg.History.Enabled {
		client, err := s.connectHistory(cfg.History.DBConnStr)
		if err != nil {
			log.Warn().Err(err).Msg("History store unavailable, continuing without it")
		} else {
			s.history = client
			s.stats.SetStore(client)
		}
	}

	if cfg.Feed.Enabled {
		client, err := nats.New(cfg.Feed.NATSURL)
		if err != nil {
			log.Warn().Err(err).Msg("Pass feed unavailable, continuing without it")
		} else {
			s.feed = client
		}
	}

	if cfg.PostProcessingHook.Enabled {
		h := cfg.PostProcessingHook
		s.hook = decode.NewHook(decode.HookOptions{
			Command:      h.Command,
			Foreach:      h.Foreach,
			DaytimeOnly:  h.DaytimeOnly,
			MinElevation: h.MinElevation,
		}, runner, cfg.Station.Location, logger.WithComponent("hook"))
	}

	if cfg.Metrics.Addr != "" {
		server, err := s.metricsServer(cfg.Metrics.Addr)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.metrics = server
	}

	return s, nil
}

func (s *Station) connectHistory(connStr string) (*db.Client, error) {
	client, err := db.New(connStr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return client, nil
}

func (s *Station) metricsServer(addr string) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := s.stats.Register(reg); err != nil {
		return nil, err
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}

// consumerConfig leaves disabled backends as nil interfaces
func (s *Station) consumerConfig() decode.ConsumerConfig {
	cfg := decode.ConsumerConfig{
		OutputDir: s.config.Station.OutputDir,
		Location:  s.config.Station.Location,
		Options: decode.Options{
			OQPSKSatellites:   s.config.Decoders.OQPSKSatellites,
			CorrectionCommand: *s.config.Decoders.CorrectionCommand,
		},
		Hook: s.hook,
	}
	if s.feed != nil {
		cfg.Publisher = s.feed
	}
	if s.history != nil {
		cfg.History = s.history
	}
	return cfg
}

// newDispatcher builds the dispatcher around a timer
func (s *Station) newDispatcher(timer dispatcher.Timer, recorder dispatcher.PassRecorder) *dispatcher.Dispatcher {
	d := dispatcher.New(s.satellites, timer, recorder, s.refresher, s.stats, dispatcher.Config{
		Location:          s.config.Station.Location,
		MaximumOverlap:    s.config.MaximumOverlap(),
		TLEUpdateInterval: s.config.TLEUpdateInterval(),
	}, logger.WithComponent("dispatcher"))
	if s.history != nil {
		d.SetHistory(s.history)
	}
	return d
}

// Run operates the station until ctx is done
func (s *Station) Run(ctx context.Context) error {
	consumer, err := decode.NewConsumer(s.queue, s.runner, s.stats, s.consumerConfig(), logger.WithComponent("decode"))
	if err != nil {
		return err
	}

	recorder := capture.NewRecorder(radio.NewArbiter(), s.runner, s.queue, s.stats, capture.Config{
		OutputDir:   s.config.Station.OutputDir,
		PPM:         s.config.PPM(),
		SettleDelay: s.config.SettleDelay(),
	}, logger.WithComponent("capture"))

	sched := scheduler.New(ctx)
	disp := s.newDispatcher(sched, recorder)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.stats.StartReporting(ctx, statsInterval, logger.WithComponent("stats"))
	}()

	if s.metrics != nil {
		go func() {
			s.logger.Info().Str("addr", s.metrics.Addr).Msg("Serving metrics")
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	s.logger.Info().Int("satellites", len(s.satellites)).Msg("Station started")
	disp.Start(ctx)

	<-ctx.Done()
	s.logger.Info().Msg("Shutting down")

	sched.Stop()
	wg.Wait()

	if s.metrics != nil {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metrics.Shutdown(shutdown); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	return nil
}

// Plan refreshes orbits and returns the resolved decisions for the next hour
func (s *Station) Plan(ctx context.Context, now time.Time) []resolver.Decision {
	disp := s.newDispatcher(nil, nil)
	disp.RefreshTLEs(ctx)
	return disp.Plan(now)
}

// Close releases the backend connections
func (s *Station) Close() {
	if s.feed != nil {
		s.feed.Close()
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close TLE cache")
		}
	}
}
