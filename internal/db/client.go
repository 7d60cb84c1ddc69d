// Package db stores the station history in PostgreSQL/TimescaleDB.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/saviobatista/groundstation/internal/types"
)

// Client is the history store
type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Client{db: db}, nil
}

// DB returns the underlying connection pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StoreScheduledPass records a resolver decision to capture a pass
func (c *Client) StoreScheduledPass(ctx context.Context, rec *types.ScheduledRecording) error {
	query := `
		INSERT INTO passes (
			time, satellite, norad_id, downlink, aos, los,
			max_elevation, scheduled_aos, scheduled_los, trimmed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := c.db.ExecContext(ctx, query,
		time.Now().UTC(), rec.Satellite.VerboseName, rec.Satellite.NoradID, rec.Satellite.Downlink.String(),
		rec.Pass.AOS, rec.Pass.LOS, rec.Pass.MaxElevation,
		rec.AOS, rec.LOS, rec.Trimmed,
	)
	if err != nil {
		return fmt.Errorf("failed to store scheduled pass: %w", err)
	}
	return nil
}

// StoreRecording records a finished capture
func (c *Client) StoreRecording(ctx context.Context, rec *types.Recording) error {
	query := `
		INSERT INTO recordings (
			id, time, satellite, norad_id, downlink, stem, aos, los, max_elevation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id, time) DO NOTHING
	`
	_, err := c.db.ExecContext(ctx, query,
		rec.ID, rec.Start, rec.Satellite.VerboseName, rec.Satellite.NoradID, rec.Satellite.Downlink.String(),
		rec.Stem, rec.Pass.AOS, rec.Pass.LOS, rec.Pass.MaxElevation,
	)
	if err != nil {
		return fmt.Errorf("failed to store recording: %w", err)
	}
	return nil
}

// StoreDecode records the outcome of a decode pipeline run
func (c *Client) StoreDecode(ctx context.Context, recordingID string, artifacts []string, success bool, duration time.Duration) error {
	query := `
		INSERT INTO decodes (
			time, recording_id, artifacts, success, duration_ms
		) VALUES ($1, $2, $3, $4, $5)
	`
	if artifacts == nil {
		artifacts = []string{}
	}
	_, err := c.db.ExecContext(ctx, query,
		time.Now().UTC(), recordingID, pq.Array(artifacts), success, duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to store decode: %w", err)
	}
	return nil
}

// StoreSystemStats stores a statistics snapshot
func (c *Client) StoreSystemStats(ctx context.Context, s *types.StationStats) error {
	query := `
		INSERT INTO system_stats (
			time, passes_scheduled, passes_trimmed, passes_dropped,
			recordings, missed_captures, decode_successes, decode_failures,
			tle_updates, tle_failures, queue_depth, uptime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := c.db.ExecContext(ctx, query,
		s.Time,
		int64(s.PassesScheduled), int64(s.PassesTrimmed), int64(s.PassesDropped),
		int64(s.Recordings), int64(s.MissedCaptures),
		int64(s.DecodeSuccesses), int64(s.DecodeFailures),
		int64(s.TLEUpdates), int64(s.TLEFailures),
		s.QueueDepth, int64(s.Uptime.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to store system stats: %w", err)
	}
	return nil
}

// PassSummary is one row of the decode history
type PassSummary struct {
	RecordingID  string
	Satellite    string
	AOS          time.Time
	MaxElevation float64
	Artifacts    []string
	Success      bool
}

// RecentDecodes returns the latest decode outcomes, newest first
func (c *Client) RecentDecodes(ctx context.Context, since time.Time, limit int) ([]*PassSummary, error) {
	query := `
		SELECT r.id, r.satellite, r.aos, r.max_elevation, d.artifacts, d.success
		FROM decodes d
		JOIN recordings r ON r.id = d.recording_id
		WHERE d.time >= $1
		ORDER BY d.time DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decodes: %w", err)
	}
	defer rows.Close()

	var out []*PassSummary
	for rows.Next() {
		var p PassSummary
		if err := rows.Scan(&p.RecordingID, &p.Satellite, &p.AOS, &p.MaxElevation, pq.Array(&p.Artifacts), &p.Success); err != nil {
			return nil, fmt.Errorf("failed to scan decode: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
