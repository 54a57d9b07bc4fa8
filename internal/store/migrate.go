package store

import "context"

// The schema is applied idempotently at boot. The partial unique index
// on incidents is the durable form of the one-open-incident-per-flow
// invariant: it holds even when multiple engine instances share the
// database
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS flows (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		kind        TEXT NOT NULL,
		interval_s  INTEGER NOT NULL,
		enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		tags        TEXT[] NOT NULL DEFAULT '{}',
		config      JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS steps (
		id               TEXT PRIMARY KEY,
		flow_id          TEXT NOT NULL
		                 REFERENCES flows(id) ON DELETE CASCADE,
		position         INTEGER NOT NULL,
		name             TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		threshold_p95_ms BIGINT NOT NULL,
		threshold_p99_ms BIGINT NOT NULL,
		api_config       JSONB,
		browser_config   JSONB,
		UNIQUE (flow_id, position)
	)`,

	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		flow_id      TEXT NOT NULL
		             REFERENCES flows(id) ON DELETE CASCADE,
		status       TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		duration_ms  BIGINT NOT NULL,
		error        TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS runs_flow_started_idx
		ON runs (flow_id, started_at DESC)`,

	`CREATE TABLE IF NOT EXISTS step_results (
		id            BIGSERIAL PRIMARY KEY,
		run_id        TEXT NOT NULL
		              REFERENCES runs(id) ON DELETE CASCADE,
		step_id       TEXT,
		position      INTEGER NOT NULL,
		status        TEXT NOT NULL,
		latency_ms    BIGINT,
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ NOT NULL,
		error         TEXT NOT NULL DEFAULT '',
		logs          TEXT[] NOT NULL DEFAULT '{}',
		http_status   INTEGER,
		response_body TEXT NOT NULL DEFAULT '',
		screenshot    TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS step_results_step_time_idx
		ON step_results (step_id, started_at)`,

	`CREATE INDEX IF NOT EXISTS step_results_run_idx
		ON step_results (run_id)`,

	`CREATE TABLE IF NOT EXISTS incidents (
		id                TEXT PRIMARY KEY,
		flow_id           TEXT NOT NULL
		                  REFERENCES flows(id) ON DELETE CASCADE,
		failed_step_id    TEXT,
		run_id            TEXT,
		resolution_run_id TEXT,
		status            TEXT NOT NULL,
		severity          TEXT NOT NULL,
		title             TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		opened_at         TIMESTAMPTZ NOT NULL,
		resolved_at       TIMESTAMPTZ,
		alert_sent_at     TIMESTAMPTZ,
		alert_channels    TEXT[] NOT NULL DEFAULT '{}'
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS incidents_one_open_per_flow
		ON incidents (flow_id) WHERE status = 'open'`,

	`CREATE TABLE IF NOT EXISTS metrics_hourly (
		step_id      TEXT NOT NULL,
		flow_id      TEXT NOT NULL,
		hour         TIMESTAMPTZ NOT NULL,
		p50_ms       BIGINT,
		p95_ms       BIGINT,
		p99_ms       BIGINT,
		avg_ms       BIGINT,
		error_rate   DOUBLE PRECISION NOT NULL DEFAULT 0,
		sample_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (step_id, hour)
	)`,
}

// Migrate applies the schema
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	s.logger.Info("schema up to date")
	return nil
}
