package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/saviobatista/groundstation/internal/types"
)

const (
	defaultConfigFile        = "config.yaml"
	defaultOutputDir         = "./images"
	defaultTLEIntervalHours  = 12
	defaultMaxOverlapMinutes = 5
	defaultSettleSeconds     = 10
	defaultPPM               = -6
	defaultLogDir            = "./log"
	defaultTLESourceURL      = "https://celestrak.org/NORAD/elements/gp.php?CATNR=%d&FORMAT=tle"
	defaultCorrectionCommand = "python3 meteor_corrector/correct.py {in} -o {out}"
)

// ErrNoSatellites is returned when the configuration does not list any satellite
var ErrNoSatellites = errors.New("at least one satellite must be configured")

// Config holds the station configuration
type Config struct {
	Station            StationConfig     `yaml:"station"`
	Satellites         []SatelliteConfig `yaml:"satellites"`
	Decoders           DecoderConfig     `yaml:"decoders"`
	PostProcessingHook HookConfig        `yaml:"post_processing_hook"`
	Feed               FeedConfig        `yaml:"feed"`
	History            HistoryConfig     `yaml:"history"`
	TLE                TLEConfig         `yaml:"tle"`
	Metrics            MetricsConfig     `yaml:"metrics"`
	Log                LogConfig         `yaml:"log"`
}

// StationConfig contains observer and scheduling settings
type StationConfig struct {
	Location              types.Location `yaml:"location"`
	OutputDir             string         `yaml:"output_dir"`
	TLEUpdateIntervalHour int            `yaml:"tle_update_interval_hours"`
	// Zero is a valid setting for the fields below; nil means unset
	MaximumOverlapMinutes *float64       `yaml:"maximum_overlap_minutes"`
	SettleSeconds         *int           `yaml:"settle_seconds"`
	PPM                   *int           `yaml:"ppm"`
}

// SatelliteConfig describes one tracked satellite
type SatelliteConfig struct {
	Name                 string         `yaml:"name"`
	Norad                int            `yaml:"norad"`
	Priority             int            `yaml:"priority"`
	MinElevation         float64        `yaml:"min_elevation"`
	Frequency            float64        `yaml:"frequency"`
	Downlink             types.Downlink `yaml:"downlink"`
	DeleteProcessedFiles bool           `yaml:"delete_processed_files"`
}

// DecoderConfig tunes the external decode steps
type DecoderConfig struct {
	OQPSKSatellites   []string `yaml:"oqpsk_satellites"`
	CorrectionCommand *string  `yaml:"correction_command"`
}

// HookConfig configures the post-processing command
type HookConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Command      string  `yaml:"command"`
	Foreach      bool    `yaml:"foreach"`
	DaytimeOnly  bool    `yaml:"daytime_only"`
	MinElevation float64 `yaml:"min_elevation"`
}

// FeedConfig configures publication of decoded passes
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
}

// HistoryConfig configures the PostgreSQL pass history
type HistoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	DBConnStr string `yaml:"db_conn_str"`
}

// TLEConfig configures TLE retrieval and caching
type TLEConfig struct {
	SourceURL    string `yaml:"source_url"`
	CacheEnabled bool   `yaml:"cache_enabled"`
	RedisAddr    string `yaml:"redis_addr"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the process log
type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Load reads the YAML configuration file and applies environment overrides
func Load(filename string) (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	if filename == "" {
		filename = defaultConfigFile
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration data, applies defaults and environment
// overrides, and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Station.OutputDir == "" {
		c.Station.OutputDir = defaultOutputDir
	}
	if c.Station.TLEUpdateIntervalHour == 0 {
		c.Station.TLEUpdateIntervalHour = defaultTLEIntervalHours
	}
	if c.Station.MaximumOverlapMinutes == nil {
		overlap := float64(defaultMaxOverlapMinutes)
		c.Station.MaximumOverlapMinutes = &overlap
	}
	if c.Station.SettleSeconds == nil {
		settle := defaultSettleSeconds
		c.Station.SettleSeconds = &settle
	}
	if c.Station.PPM == nil {
		ppm := defaultPPM
		c.Station.PPM = &ppm
	}
	if c.Decoders.OQPSKSatellites == nil {
		c.Decoders.OQPSKSatellites = []string{"METEOR-M2_2"}
	}
	if c.Decoders.CorrectionCommand == nil {
		cmd := defaultCorrectionCommand
		c.Decoders.CorrectionCommand = &cmd
	}
	if c.TLE.SourceURL == "" {
		c.TLE.SourceURL = defaultTLESourceURL
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = defaultLogDir
	}
}

func (c *Config) applyEnvironment() {
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Station.OutputDir = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Feed.NATSURL = v
	}
	if v := os.Getenv("DB_CONN_STR"); v != "" {
		c.History.DBConnStr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.TLE.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		c.Log.Dir = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if len(c.Satellites) == 0 {
		return ErrNoSatellites
	}
	if c.Station.TLEUpdateIntervalHour < 0 {
		return fmt.Errorf("tle_update_interval_hours must be positive, got %d", c.Station.TLEUpdateIntervalHour)
	}
	if c.Station.MaximumOverlapMinutes != nil && *c.Station.MaximumOverlapMinutes < 0 {
		return fmt.Errorf("maximum_overlap_minutes must not be negative, got %v", *c.Station.MaximumOverlapMinutes)
	}
	if c.Station.SettleSeconds != nil && *c.Station.SettleSeconds < 0 {
		return fmt.Errorf("settle_seconds must not be negative, got %d", *c.Station.SettleSeconds)
	}

	seen := make(map[int]bool)
	for i, sat := range c.Satellites {
		if strings.TrimSpace(sat.Name) == "" {
			return fmt.Errorf("satellite %d: name is required", i)
		}
		if sat.Norad <= 0 {
			return fmt.Errorf("satellite %s: norad id is required", sat.Name)
		}
		if seen[sat.Norad] {
			return fmt.Errorf("satellite %s: duplicate norad id %d", sat.Name, sat.Norad)
		}
		seen[sat.Norad] = true
		if sat.Downlink == types.DownlinkUnknown {
			return fmt.Errorf("satellite %s: downlink is required", sat.Name)
		}
		if sat.Frequency <= 0 {
			return fmt.Errorf("satellite %s: frequency is required", sat.Name)
		}
	}

	if c.PostProcessingHook.Enabled && !strings.Contains(c.PostProcessingHook.Command, "{file}") {
		return fmt.Errorf("post_processing_hook.command must contain {file}")
	}
	if c.Feed.Enabled && c.Feed.NATSURL == "" {
		return fmt.Errorf("feed.nats_url is required when the feed is enabled")
	}
	if c.History.Enabled && c.History.DBConnStr == "" {
		return fmt.Errorf("history.db_conn_str is required when history is enabled")
	}
	if c.TLE.CacheEnabled && c.TLE.RedisAddr == "" {
		return fmt.Errorf("tle.redis_addr is required when the TLE cache is enabled")
	}
	return nil
}

// BuildSatellites converts the configured satellites into domain satellites
func (c *Config) BuildSatellites() []*types.Satellite {
	sats := make([]*types.Satellite, 0, len(c.Satellites))
	for _, s := range c.Satellites {
		sats = append(sats, types.NewSatellite(s.Name, s.Norad, s.Priority, s.MinElevation, s.Frequency, s.Downlink, s.DeleteProcessedFiles))
	}
	return sats
}

// TLEUpdateInterval returns the TLE refresh period
func (c *Config) TLEUpdateInterval() time.Duration {
	return time.Duration(c.Station.TLEUpdateIntervalHour) * time.Hour
}

// MaximumOverlap returns the longest overlap a losing pass may be trimmed by
func (c *Config) MaximumOverlap() time.Duration {
	if c.Station.MaximumOverlapMinutes == nil {
		return defaultMaxOverlapMinutes * time.Minute
	}
	return time.Duration(*c.Station.MaximumOverlapMinutes * float64(time.Minute))
}

// SettleDelay returns the wait after stopping a capture
func (c *Config) SettleDelay() time.Duration {
	if c.Station.SettleSeconds == nil {
		return defaultSettleSeconds * time.Second
	}
	return time.Duration(*c.Station.SettleSeconds) * time.Second
}

// PPM returns the receiver frequency correction
func (c *Config) PPM() int {
	if c.Station.PPM == nil {
		return defaultPPM
	}
	return *c.Station.PPM
}
