package types

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Downlink is the radio modulation/encoding scheme of a satellite
type Downlink int

const (
	DownlinkUnknown Downlink = iota
	DownlinkAPT
	DownlinkLRPT
)

// String returns the configuration spelling of the downlink
func (d Downlink) String() string {
	switch d {
	case DownlinkAPT:
		return "APT"
	case DownlinkLRPT:
		return "LRPT"
	default:
		return "UNKNOWN"
	}
}

// ParseDownlink converts a configuration string into a Downlink
func ParseDownlink(s string) (Downlink, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APT":
		return DownlinkAPT, nil
	case "LRPT":
		return DownlinkLRPT, nil
	default:
		return DownlinkUnknown, fmt.Errorf("unknown downlink %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Downlink) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Downlink) UnmarshalText(text []byte) error {
	parsed, err := ParseDownlink(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Location is the observer position of the ground station
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`   // degrees
	Longitude float64 `json:"longitude" yaml:"longitude"` // degrees
	Elevation float64 `json:"elevation" yaml:"elevation"` // metres
}

// TLE is a two-line orbital element set
type TLE struct {
	Name      string    `json:"name"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Pass is one predicted overhead pass of a satellite
type Pass struct {
	AOS          time.Time `json:"aos"`
	LOS          time.Time `json:"los"`
	MaxElevation float64   `json:"max_elevation_deg"`
}

// Duration returns the time between AOS and LOS
func (p Pass) Duration() time.Duration {
	return p.LOS.Sub(p.AOS)
}

// Predictor computes passes and sub-satellite points from orbital elements
type Predictor interface {
	NextPass(loc Location, after time.Time, minElevation float64) (Pass, error)
	SubPointLatitude(t time.Time) (float64, error)
}

// Orbit is the orbital state of a satellite, replaced wholesale on refresh
type Orbit struct {
	TLE       TLE
	Predictor Predictor
}

// Satellite is a tracked satellite. Identity fields are immutable after
// construction; the orbit snapshot is swapped atomically.
type Satellite struct {
	Name                 string
	VerboseName          string
	NoradID              int
	Priority             int
	MinElevation         float64
	Frequency            float64 // MHz
	Downlink             Downlink
	DeleteProcessedFiles bool

	orbit atomic.Pointer[Orbit]
}

// NewSatellite creates a satellite; the filesystem name has spaces replaced by underscores
func NewSatellite(name string, noradID, priority int, minElevation, frequency float64, downlink Downlink, deleteProcessed bool) *Satellite {
	return &Satellite{
		Name:                 strings.ReplaceAll(strings.TrimSpace(name), " ", "_"),
		VerboseName:          name,
		NoradID:              noradID,
		Priority:             priority,
		MinElevation:         minElevation,
		Frequency:            frequency,
		Downlink:             downlink,
		DeleteProcessedFiles: deleteProcessed,
	}
}

// UpdateOrbit atomically replaces the orbit snapshot
func (s *Satellite) UpdateOrbit(tle TLE, predictor Predictor) {
	s.orbit.Store(&Orbit{TLE: tle, Predictor: predictor})
}

// Orbit returns the current orbit snapshot, or nil if none has been loaded
func (s *Satellite) Orbit() *Orbit {
	return s.orbit.Load()
}

// Predictor returns the current predictor, or nil if none has been loaded
func (s *Satellite) Predictor() Predictor {
	o := s.orbit.Load()
	if o == nil {
		return nil
	}
	return o.Predictor
}

// PassCandidate joins a predicted pass with its satellite for one resolution cycle
type PassCandidate struct {
	Pass      Pass
	Satellite *Satellite
}

// ScheduledRecording is a resolver decision to record a satellite between AOS and LOS
type ScheduledRecording struct {
	Satellite *Satellite
	AOS       time.Time
	LOS       time.Time
	Pass      Pass
	Trimmed   bool
}

// Recording is a finished capture awaiting decode
type Recording struct {
	ID        string     `json:"id"`
	Satellite *Satellite `json:"-"`
	Stem      string     `json:"stem"`
	Start     time.Time  `json:"start"`
	Pass      Pass       `json:"pass"`
}

// FeedEntry is published for every decoded pass
type FeedEntry struct {
	RecordingID  string    `json:"recording_id"`
	Satellite    string    `json:"satellite"`
	NoradID      int       `json:"norad_id"`
	Downlink     Downlink  `json:"downlink"`
	Path         string    `json:"path"`
	Timestamp    time.Time `json:"timestamp"`
	AOS          time.Time `json:"aos"`
	LOS          time.Time `json:"los"`
	MaxElevation float64   `json:"max_elevation_deg"`
	Artifacts    []string  `json:"artifacts"`
	Daytime      bool      `json:"daytime"`
}

// StationStats is a point-in-time copy of the station counters
type StationStats struct {
	Time            time.Time     `json:"time"`
	PassesScheduled uint64        `json:"passes_scheduled"`
	PassesTrimmed   uint64        `json:"passes_trimmed"`
	PassesDropped   uint64        `json:"passes_dropped"`
	Recordings      uint64        `json:"recordings"`
	MissedCaptures  uint64        `json:"missed_captures"`
	DecodeSuccesses uint64        `json:"decode_successes"`
	DecodeFailures  uint64        `json:"decode_failures"`
	TLEUpdates      uint64        `json:"tle_updates"`
	TLEFailures     uint64        `json:"tle_failures"`
	QueueDepth      int           `json:"queue_depth"`
	Uptime          time.Duration `json:"uptime"`
}
