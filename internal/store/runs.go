package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vigilhq/vigil/pkg/api"
)

// RunRecord is a run row joined with its flow name for list views
type RunRecord struct {
	ID          api.RunID     `json:"id"`
	FlowID      api.FlowID    `json:"flow_id"`
	FlowName    string        `json:"flow_name"`
	Status      api.RunStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	DurationMs  int64         `json:"duration_ms"`
	Error       string        `json:"error,omitempty"`
}

// InsertRun records a run and its step results in one transaction. Step
// results are attributed to step ids through the flow's position map
func (s *Store) InsertRun(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO runs (id, flow_id, status, started_at,
				completed_at, duration_ms, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			res.ID, res.FlowID, res.Status, res.StartedAt,
			res.CompletedAt, res.DurationMs, res.Error)
		if err != nil {
			return err
		}

		for _, sr := range res.Steps {
			var stepID *api.StepID
			if step := flow.StepAt(sr.Position); step != nil {
				stepID = &step.ID
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO step_results (run_id, step_id, position,
					status, latency_ms, started_at, completed_at, error,
					logs, http_status, response_body, screenshot)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
					$11, $12)`,
				res.ID, stepID, sr.Position, sr.Status, sr.LatencyMs,
				sr.StartedAt, sr.CompletedAt, sr.Error, tags(sr.Logs),
				nullableInt(sr.HTTPStatus), sr.ResponseBody,
				sr.Screenshot); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRuns returns recent runs, optionally filtered by flow
func (s *Store) ListRuns(
	ctx context.Context, flowID api.FlowID, limit int,
) ([]*RunRecord, error) {
	query := `
		SELECT r.id, r.flow_id, f.name, r.status, r.started_at,
			r.completed_at, r.duration_ms, r.error
		FROM runs r JOIN flows f ON f.id = r.flow_id`
	args := []any{limit}
	if flowID != "" {
		query += ` WHERE r.flow_id = $2`
		args = append(args, flowID)
	}
	query += ` ORDER BY r.started_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*RunRecord{}
	for rows.Next() {
		rec := &RunRecord{}
		if err := rows.Scan(&rec.ID, &rec.FlowID, &rec.FlowName,
			&rec.Status, &rec.StartedAt, &rec.CompletedAt,
			&rec.DurationMs, &rec.Error); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRun fetches one run with its step results in position order
func (s *Store) GetRun(
	ctx context.Context, id api.RunID,
) (*api.RunResult, error) {
	res := &api.RunResult{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT flow_id, status, started_at, completed_at, duration_ms,
			error
		FROM runs WHERE id = $1`, id).
		Scan(&res.FlowID, &res.Status, &res.StartedAt, &res.CompletedAt,
			&res.DurationMs, &res.Error)
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT position, status, latency_ms, started_at, completed_at,
			error, logs, http_status, response_body, screenshot
		FROM step_results
		WHERE run_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		sr := &api.StepResult{}
		var httpStatus *int
		if err := rows.Scan(&sr.Position, &sr.Status, &sr.LatencyMs,
			&sr.StartedAt, &sr.CompletedAt, &sr.Error, &sr.Logs,
			&httpStatus, &sr.ResponseBody, &sr.Screenshot); err != nil {
			return nil, err
		}
		if httpStatus != nil {
			sr.HTTPStatus = *httpStatus
		}
		res.Steps = append(res.Steps, sr)
	}
	return res, rows.Err()
}

// LatestRunStatus returns each flow's most recent run status
func (s *Store) LatestRunStatus(
	ctx context.Context,
) (map[api.FlowID]api.RunStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (flow_id) flow_id, status
		FROM runs
		ORDER BY flow_id, started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := map[api.FlowID]api.RunStatus{}
	for rows.Next() {
		var flowID api.FlowID
		var status api.RunStatus
		if err := rows.Scan(&flowID, &status); err != nil {
			return nil, err
		}
		latest[flowID] = status
	}
	return latest, rows.Err()
}

func nullableInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
