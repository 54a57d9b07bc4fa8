package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vigilhq/vigil/pkg/api"
)

const incidentColumns = `id, flow_id, failed_step_id, run_id,
	resolution_run_id, status, severity, title, description, opened_at,
	resolved_at, alert_sent_at, alert_channels`

// FindOpen returns the flow's open incident, or nil when there is none
func (s *Store) FindOpen(
	ctx context.Context, flowID api.FlowID,
) (*api.Incident, error) {
	inc, err := s.scanIncidentRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE flow_id = $1 AND status = 'open'`, flowID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return inc, err
}

// Create inserts a new incident. The partial unique index converts a
// lost create race into ErrIncidentOpen instead of a duplicate open
// incident
func (s *Store) Create(ctx context.Context, inc *api.Incident) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO incidents (id, flow_id, failed_step_id, run_id,
			resolution_run_id, status, severity, title, description,
			opened_at, resolved_at, alert_sent_at, alert_channels)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		inc.ID, inc.FlowID, nullableID(string(inc.FailedStepID)),
		nullableID(string(inc.RunID)),
		nullableID(string(inc.ResolutionRunID)), inc.Status,
		inc.Severity, inc.Title, inc.Description, inc.OpenedAt,
		inc.ResolvedAt, inc.AlertSentAt, tags(inc.AlertChannels))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIncidentOpen
	}
	return err
}

// Update rewrites an incident's mutable fields
func (s *Store) Update(ctx context.Context, inc *api.Incident) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE incidents SET failed_step_id = $2, run_id = $3,
			resolution_run_id = $4, status = $5, severity = $6,
			title = $7, description = $8, resolved_at = $9,
			alert_sent_at = $10, alert_channels = $11
		WHERE id = $1`,
		inc.ID, nullableID(string(inc.FailedStepID)),
		nullableID(string(inc.RunID)),
		nullableID(string(inc.ResolutionRunID)), inc.Status,
		inc.Severity, inc.Title, inc.Description, inc.ResolvedAt,
		inc.AlertSentAt, tags(inc.AlertChannels))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetIncident fetches one incident
func (s *Store) GetIncident(
	ctx context.Context, id api.IncidentID,
) (*api.Incident, error) {
	return s.scanIncidentRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
}

// ListIncidents returns incidents newest first, optionally filtered by
// status
func (s *Store) ListIncidents(
	ctx context.Context, status api.IncidentStatus, limit int,
) ([]*api.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	args := []any{limit}
	if status != "" {
		query += ` WHERE status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY opened_at DESC LIMIT $1`
	return s.queryIncidents(ctx, query, args...)
}

// FlowIncidents returns the most recent incidents for one flow
func (s *Store) FlowIncidents(
	ctx context.Context, flowID api.FlowID, limit int,
) ([]*api.Incident, error) {
	return s.queryIncidents(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE flow_id = $1 ORDER BY opened_at DESC LIMIT $2`,
		flowID, limit)
}

func (s *Store) queryIncidents(
	ctx context.Context, query string, args ...any,
) ([]*api.Incident, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incidents := []*api.Incident{}
	for rows.Next() {
		inc := &api.Incident{}
		var failedStep, runID, resolutionRun *string
		if err := rows.Scan(&inc.ID, &inc.FlowID, &failedStep, &runID,
			&resolutionRun, &inc.Status, &inc.Severity, &inc.Title,
			&inc.Description, &inc.OpenedAt, &inc.ResolvedAt,
			&inc.AlertSentAt, &inc.AlertChannels); err != nil {
			return nil, err
		}
		applyRefs(inc, failedStep, runID, resolutionRun)
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// CountOpenIncidents reports how many incidents are currently open
func (s *Store) CountOpenIncidents(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM incidents WHERE status = 'open'`).
		Scan(&count)
	return count, err
}

func (s *Store) scanIncidentRow(
	ctx context.Context, query string, args ...any,
) (*api.Incident, error) {
	inc := &api.Incident{}
	var failedStep, runID, resolutionRun *string
	err := s.pool.QueryRow(ctx, query, args...).
		Scan(&inc.ID, &inc.FlowID, &failedStep, &runID, &resolutionRun,
			&inc.Status, &inc.Severity, &inc.Title, &inc.Description,
			&inc.OpenedAt, &inc.ResolvedAt, &inc.AlertSentAt,
			&inc.AlertChannels)
	if err != nil {
		return nil, notFound(err)
	}
	applyRefs(inc, failedStep, runID, resolutionRun)
	return inc, nil
}

func applyRefs(
	inc *api.Incident, failedStep, runID, resolutionRun *string,
) {
	if failedStep != nil {
		inc.FailedStepID = api.StepID(*failedStep)
	}
	if runID != nil {
		inc.RunID = api.RunID(*runID)
	}
	if resolutionRun != nil {
		inc.ResolutionRunID = api.RunID(*resolutionRun)
	}
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
