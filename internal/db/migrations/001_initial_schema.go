package migrations

// InitialSchema creates the pass, recording, decode and statistics tables
var InitialSchema = &Migration{
	Name: "001_initial_schema",
	UpSQL: `
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		-- One row per resolver decision to record
		CREATE TABLE IF NOT EXISTS passes (
			time TIMESTAMPTZ NOT NULL,
			satellite TEXT NOT NULL,
			norad_id INTEGER NOT NULL,
			downlink TEXT NOT NULL,
			aos TIMESTAMPTZ NOT NULL,
			los TIMESTAMPTZ NOT NULL,
			max_elevation DOUBLE PRECISION NOT NULL,
			scheduled_aos TIMESTAMPTZ NOT NULL,
			scheduled_los TIMESTAMPTZ NOT NULL,
			trimmed BOOLEAN NOT NULL DEFAULT FALSE
		);
		SELECT create_hypertable('passes', 'time');
		CREATE INDEX IF NOT EXISTS idx_passes_norad_id ON passes (norad_id, aos);

		CREATE TABLE IF NOT EXISTS recordings (
			id TEXT NOT NULL,
			time TIMESTAMPTZ NOT NULL,
			satellite TEXT NOT NULL,
			norad_id INTEGER NOT NULL,
			downlink TEXT NOT NULL,
			stem TEXT NOT NULL,
			aos TIMESTAMPTZ NOT NULL,
			los TIMESTAMPTZ NOT NULL,
			max_elevation DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (id, time)
		);
		SELECT create_hypertable('recordings', 'time');
		CREATE INDEX IF NOT EXISTS idx_recordings_id ON recordings (id);

		CREATE TABLE IF NOT EXISTS decodes (
			time TIMESTAMPTZ NOT NULL,
			recording_id TEXT NOT NULL,
			artifacts TEXT[] NOT NULL,
			success BOOLEAN NOT NULL,
			duration_ms BIGINT NOT NULL
		);
		SELECT create_hypertable('decodes', 'time');
		CREATE INDEX IF NOT EXISTS idx_decodes_recording_id ON decodes (recording_id);

		CREATE TABLE IF NOT EXISTS system_stats (
			time TIMESTAMPTZ NOT NULL,
			passes_scheduled BIGINT NOT NULL,
			passes_trimmed BIGINT NOT NULL,
			passes_dropped BIGINT NOT NULL,
			recordings BIGINT NOT NULL,
			missed_captures BIGINT NOT NULL,
			decode_successes BIGINT NOT NULL,
			decode_failures BIGINT NOT NULL,
			tle_updates BIGINT NOT NULL,
			tle_failures BIGINT NOT NULL,
			queue_depth INTEGER NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);
		SELECT create_hypertable('system_stats', 'time');
		CREATE INDEX IF NOT EXISTS idx_system_stats_time ON system_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS system_stats;
		DROP TABLE IF EXISTS decodes;
		DROP TABLE IF EXISTS recordings;
		DROP TABLE IF EXISTS passes;
	`,
}
