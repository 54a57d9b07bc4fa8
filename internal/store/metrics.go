package store

import (
	"context"
	"time"

	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/pkg/api"
)

// HourlySamples returns the latency samples and failure count recorded
// for a step within one hour bucket. Skipped results carry no sample and
// are excluded entirely
func (s *Store) HourlySamples(
	ctx context.Context, stepID api.StepID, hour time.Time,
) ([]int64, int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT latency_ms, status
		FROM step_results
		WHERE step_id = $1
			AND started_at >= $2 AND started_at < $3
			AND status <> 'skipped'
		ORDER BY latency_ms`,
		stepID, hour, hour.Add(time.Hour))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var latencies []int64
	failures := 0
	for rows.Next() {
		var latency *int64
		var status api.StepStatus
		if err := rows.Scan(&latency, &status); err != nil {
			return nil, 0, err
		}
		if status == api.StepFailed {
			failures++
			continue
		}
		if latency != nil {
			latencies = append(latencies, *latency)
		}
	}
	return latencies, failures, rows.Err()
}

// UpsertHourlyMetric writes one (step, hour) bucket idempotently
func (s *Store) UpsertHourlyMetric(
	ctx context.Context, m *api.HourlyMetric,
) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO metrics_hourly (step_id, flow_id, hour, p50_ms,
			p95_ms, p99_ms, avg_ms, error_rate, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (step_id, hour) DO UPDATE SET
			p50_ms = EXCLUDED.p50_ms,
			p95_ms = EXCLUDED.p95_ms,
			p99_ms = EXCLUDED.p99_ms,
			avg_ms = EXCLUDED.avg_ms,
			error_rate = EXCLUDED.error_rate,
			sample_count = EXCLUDED.sample_count`,
		m.StepID, m.FlowID, m.Hour, m.P50Ms, m.P95Ms, m.P99Ms, m.AvgMs,
		m.ErrorRate, m.SampleCount)
	return err
}

// FlowMetrics returns a flow's hourly buckets since the given time,
// oldest first
func (s *Store) FlowMetrics(
	ctx context.Context, flowID api.FlowID, since time.Time,
) ([]*api.HourlyMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT step_id, flow_id, hour, p50_ms, p95_ms, p99_ms, avg_ms,
			error_rate, sample_count
		FROM metrics_hourly
		WHERE flow_id = $1 AND hour >= $2
		ORDER BY hour, step_id`, flowID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	series := []*api.HourlyMetric{}
	for rows.Next() {
		m := &api.HourlyMetric{}
		if err := rows.Scan(&m.StepID, &m.FlowID, &m.Hour, &m.P50Ms,
			&m.P95Ms, &m.P99Ms, &m.AvgMs, &m.ErrorRate,
			&m.SampleCount); err != nil {
			return nil, err
		}
		series = append(series, m)
	}
	return series, rows.Err()
}

// StepWindow aggregates a step's last-24h samples into one summary for
// flow detail views
func (s *Store) StepWindow(
	ctx context.Context, stepID api.StepID,
) (*api.LatencySummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT latency_ms, status
		FROM step_results
		WHERE step_id = $1
			AND started_at >= now() - interval '24 hours'
			AND status <> 'skipped'`, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var latencies []int64
	failures := 0
	for rows.Next() {
		var latency *int64
		var status api.StepStatus
		if err := rows.Scan(&latency, &status); err != nil {
			return nil, err
		}
		if status == api.StepFailed {
			failures++
			continue
		}
		if latency != nil {
			latencies = append(latencies, *latency)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summary := metrics.Summarize(latencies, failures)
	return &summary, nil
}

// OverviewStats computes the dashboard counters
func (s *Store) OverviewStats(
	ctx context.Context,
) (*api.StatsUpdatedEvent, error) {
	stats := &api.StatsUpdatedEvent{}

	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM flows WHERE enabled`).
		Scan(&stats.TotalFlows)
	if err != nil {
		return nil, err
	}

	latest, err := s.LatestRunStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, status := range latest {
		if status == api.RunPassed {
			stats.PassingFlows++
		} else {
			stats.FailingFlows++
		}
	}

	stats.OpenIncidents, err = s.CountOpenIncidents(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
