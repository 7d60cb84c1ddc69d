package migrations

// RetentionPolicies bounds history growth and adds a daily decode summary
var RetentionPolicies = &Migration{
	Name: "002_retention_policies",
	UpSQL: `
	SELECT add_retention_policy('passes', INTERVAL '180 days');
	SELECT add_retention_policy('system_stats', INTERVAL '90 days');

	CREATE MATERIALIZED VIEW IF NOT EXISTS decodes_daily
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 day', time) AS day,
		COUNT(*) AS decodes,
		COUNT(*) FILTER (WHERE success) AS successes,
		AVG(duration_ms) AS avg_duration_ms
	FROM decodes
	GROUP BY day
	WITH NO DATA;
	`,
	DownSQL: `
	DROP MATERIALIZED VIEW IF EXISTS decodes_daily;
	SELECT remove_retention_policy('passes');
	SELECT remove_retention_policy('system_stats');
	`,
}
