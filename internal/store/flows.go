package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vigilhq/vigil/pkg/api"
)

const flowColumns = `id, name, description, kind, interval_s, enabled,
	tags, config, created_at, updated_at`

// CreateFlow inserts a flow and its steps, assigning ids where absent
func (s *Store) CreateFlow(ctx context.Context, flow *api.Flow) error {
	if flow.ID == "" {
		flow.ID = api.FlowID(uuid.NewString())
	}
	now := time.Now()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	cfg, err := json.Marshal(flow.Config)
	if err != nil {
		return fmt.Errorf("encoding flow config: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO flows (id, name, description, kind, interval_s,
				enabled, tags, config, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			flow.ID, flow.Name, flow.Description, flow.Kind,
			flow.IntervalSec, flow.Enabled, tags(flow.Tags), cfg,
			flow.CreatedAt, flow.UpdatedAt)
		if err != nil {
			return err
		}
		return insertSteps(ctx, tx, flow)
	})
}

// UpdateFlow replaces the flow row and its full step list
func (s *Store) UpdateFlow(ctx context.Context, flow *api.Flow) error {
	flow.UpdatedAt = time.Now()

	cfg, err := json.Marshal(flow.Config)
	if err != nil {
		return fmt.Errorf("encoding flow config: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE flows SET name = $2, description = $3, kind = $4,
				interval_s = $5, enabled = $6, tags = $7, config = $8,
				updated_at = $9
			WHERE id = $1`,
			flow.ID, flow.Name, flow.Description, flow.Kind,
			flow.IntervalSec, flow.Enabled, tags(flow.Tags), cfg,
			flow.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM steps WHERE flow_id = $1`, flow.ID); err != nil {
			return err
		}
		return insertSteps(ctx, tx, flow)
	})
}

// DeleteFlow removes a flow; runs, results, and incidents cascade
func (s *Store) DeleteFlow(ctx context.Context, id api.FlowID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFlow fetches one flow with its steps sorted by position
func (s *Store) GetFlow(
	ctx context.Context, id api.FlowID,
) (*api.Flow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE id = $1`, id)
	flow, err := scanFlow(row)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.loadSteps(ctx, []*api.Flow{flow}); err != nil {
		return nil, err
	}
	return flow, nil
}

// ListFlows fetches every flow with steps, newest first
func (s *Store) ListFlows(ctx context.Context) ([]*api.Flow, error) {
	return s.queryFlows(ctx,
		`SELECT `+flowColumns+` FROM flows ORDER BY created_at DESC`)
}

// EnabledFlows fetches the flows the scheduler should be running, with
// steps pre-sorted by position
func (s *Store) EnabledFlows(ctx context.Context) ([]*api.Flow, error) {
	return s.queryFlows(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE enabled ORDER BY name`)
}

func (s *Store) queryFlows(
	ctx context.Context, query string, args ...any,
) ([]*api.Flow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flows := []*api.Flow{}
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadSteps(ctx, flows); err != nil {
		return nil, err
	}
	return flows, nil
}

func (s *Store) loadSteps(ctx context.Context, flows []*api.Flow) error {
	if len(flows) == 0 {
		return nil
	}
	byID := make(map[api.FlowID]*api.Flow, len(flows))
	ids := make([]string, 0, len(flows))
	for _, f := range flows {
		byID[f.ID] = f
		ids = append(ids, string(f.ID))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, flow_id, position, name, description,
			threshold_p95_ms, threshold_p99_ms, api_config, browser_config
		FROM steps
		WHERE flow_id = ANY($1)
		ORDER BY flow_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		step := &api.Step{}
		var apiCfg, browserCfg []byte
		if err := rows.Scan(&step.ID, &step.FlowID, &step.Position,
			&step.Name, &step.Description, &step.ThresholdP95Ms,
			&step.ThresholdP99Ms, &apiCfg, &browserCfg); err != nil {
			return err
		}
		if len(apiCfg) > 0 {
			step.API = &api.APIStepConfig{}
			if err := json.Unmarshal(apiCfg, step.API); err != nil {
				return fmt.Errorf("decoding api config for step %s: %w",
					step.ID, err)
			}
		}
		if len(browserCfg) > 0 {
			step.Browser = &api.BrowserStepConfig{}
			if err := json.Unmarshal(browserCfg, step.Browser); err != nil {
				return fmt.Errorf(
					"decoding browser config for step %s: %w",
					step.ID, err)
			}
		}
		if flow, ok := byID[step.FlowID]; ok {
			flow.Steps = append(flow.Steps, step)
		}
	}
	return rows.Err()
}

func insertSteps(ctx context.Context, tx pgx.Tx, flow *api.Flow) error {
	for _, step := range flow.Steps {
		if step.ID == "" {
			step.ID = api.StepID(uuid.NewString())
		}
		step.FlowID = flow.ID

		var apiCfg, browserCfg []byte
		var err error
		if step.API != nil {
			if apiCfg, err = json.Marshal(step.API); err != nil {
				return fmt.Errorf("encoding api config: %w", err)
			}
		}
		if step.Browser != nil {
			if browserCfg, err = json.Marshal(step.Browser); err != nil {
				return fmt.Errorf("encoding browser config: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO steps (id, flow_id, position, name, description,
				threshold_p95_ms, threshold_p99_ms, api_config,
				browser_config)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			step.ID, step.FlowID, step.Position, step.Name,
			step.Description, step.ThresholdP95Ms, step.ThresholdP99Ms,
			apiCfg, browserCfg); err != nil {
			return err
		}
	}
	return nil
}

func scanFlow(row pgx.Row) (*api.Flow, error) {
	flow := &api.Flow{}
	var cfg []byte
	if err := row.Scan(&flow.ID, &flow.Name, &flow.Description,
		&flow.Kind, &flow.IntervalSec, &flow.Enabled, &flow.Tags, &cfg,
		&flow.CreatedAt, &flow.UpdatedAt); err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &flow.Config); err != nil {
			return nil, fmt.Errorf("decoding flow config: %w", err)
		}
	}
	return flow, nil
}

// tags normalizes nil to an empty array for the TEXT[] column
func tags(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
