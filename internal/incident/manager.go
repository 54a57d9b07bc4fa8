// Package incident owns the per-flow incident state machine: at most one
// open incident per flow, opened by a failing or degraded run, resolved
// unconditionally by the first passing run, with cooldown-gated
// re-alerting while the outage persists
package incident

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/internal/alert"
	"github.com/vigilhq/vigil/internal/events"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/util"
)

type (
	// Clock provides the current time for cooldown arithmetic
	Clock func() time.Time

	// Store persists incidents. FindOpen returns nil without error when
	// the flow has no open incident. Create must enforce the one-open-
	// incident-per-flow invariant transactionally when the store is
	// shared across engine instances
	Store interface {
		FindOpen(ctx context.Context, flowID api.FlowID) (*api.Incident, error)
		Create(ctx context.Context, inc *api.Incident) error
		Update(ctx context.Context, inc *api.Incident) error
	}

	// Notifier dispatches a notification and reports the channels that
	// succeeded
	Notifier interface {
		Notify(ctx context.Context, n *alert.Notification) util.Set[string]
	}

	// Manager applies run outcomes to incident state
	Manager struct {
		store    Store
		notifier Notifier
		hub      *events.Hub
		cooldown time.Duration
		now      Clock
		logger   *slog.Logger
	}
)

// NewManager creates a Manager. The cooldown gates how often an ongoing
// outage re-alerts
func NewManager(
	store Store, notifier Notifier, hub *events.Hub,
	cooldown time.Duration, now Clock, logger *slog.Logger,
) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		hub:      hub,
		cooldown: cooldown,
		now:      now,
		logger:   logger,
	}
}

// HandleRun advances the flow's incident state for one completed run
func (m *Manager) HandleRun(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
) error {
	if res.IsHealthy() {
		return m.resolveOpen(ctx, flow, res)
	}
	return m.raise(ctx, flow, res)
}

func (m *Manager) raise(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
) error {
	existing, err := m.store.FindOpen(ctx, flow.ID)
	if err != nil {
		return fmt.Errorf("finding open incident: %w", err)
	}

	problem := res.FirstProblem()
	var failedStep *api.Step
	if problem != nil {
		failedStep = flow.StepAt(problem.Position)
	}

	if existing == nil {
		return m.open(ctx, flow, res, problem, failedStep)
	}
	return m.update(ctx, flow, res, existing, problem, failedStep)
}

// open creates a fresh incident and dispatches the opened alert
func (m *Manager) open(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
	problem *api.StepResult, failedStep *api.Step,
) error {
	now := m.now()
	inc := &api.Incident{
		ID:          api.IncidentID(uuid.NewString()),
		FlowID:      flow.ID,
		RunID:       res.ID,
		Status:      api.IncidentOpen,
		Severity:    api.SeverityFor(res.Status),
		Title:       incidentTitle(flow, failedStep),
		Description: incidentDescription(res, problem),
		OpenedAt:    now,
	}
	if failedStep != nil {
		inc.FailedStepID = failedStep.ID
	}

	if err := m.store.Create(ctx, inc); err != nil {
		return fmt.Errorf("creating incident: %w", err)
	}

	m.logger.Warn("incident opened",
		log.IncidentID(inc.ID), log.FlowID(flow.ID),
		slog.String("severity", string(inc.Severity)))

	m.dispatch(ctx, alert.KindOpened, inc, flow, failedStep, now)
	if err := m.store.Update(ctx, inc); err != nil {
		return fmt.Errorf("recording alert state: %w", err)
	}

	m.hub.Publish(api.NewEvent(api.EventIncidentOpened, flow.ID,
		&api.IncidentOpenedEvent{
			IncidentID: inc.ID,
			FlowID:     flow.ID,
			FlowName:   flow.Name,
			Severity:   inc.Severity,
			Title:      inc.Title,
		}))
	return nil
}

// update refreshes an existing open incident with the latest failure and
// re-alerts only once the cooldown has elapsed
func (m *Manager) update(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
	inc *api.Incident, problem *api.StepResult, failedStep *api.Step,
) error {
	now := m.now()
	inc.RunID = res.ID
	inc.Description = incidentDescription(res, problem)
	if failedStep != nil {
		inc.FailedStepID = failedStep.ID
	}
	// A degraded flow that starts failing outright escalates; it never
	// de-escalates while open
	if api.SeverityFor(res.Status) == api.SeverityCritical {
		inc.Severity = api.SeverityCritical
	}

	if m.cooldownElapsed(inc, now) {
		m.dispatch(ctx, alert.KindOpened, inc, flow, failedStep, now)
	} else {
		m.logger.Debug("re-alert suppressed by cooldown",
			log.IncidentID(inc.ID), log.FlowID(flow.ID))
	}

	if err := m.store.Update(ctx, inc); err != nil {
		return fmt.Errorf("updating incident: %w", err)
	}
	return nil
}

// resolveOpen closes the flow's open incident, if any. Resolution is
// unconditional on the first passing run
func (m *Manager) resolveOpen(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
) error {
	inc, err := m.store.FindOpen(ctx, flow.ID)
	if err != nil {
		return fmt.Errorf("finding open incident: %w", err)
	}
	if inc == nil {
		return nil
	}

	now := m.now()
	inc.Status = api.IncidentResolved
	inc.ResolvedAt = &now
	inc.ResolutionRunID = res.ID

	if err := m.store.Update(ctx, inc); err != nil {
		return fmt.Errorf("resolving incident: %w", err)
	}

	m.logger.Info("incident resolved",
		log.IncidentID(inc.ID), log.FlowID(flow.ID),
		slog.Duration("open_for", now.Sub(inc.OpenedAt)))

	m.notifier.Notify(ctx, &alert.Notification{
		Kind:     alert.KindResolved,
		Incident: inc,
		Flow:     flow,
	})

	m.hub.Publish(api.NewEvent(api.EventIncidentResolved, flow.ID,
		&api.IncidentResolvedEvent{
			IncidentID: inc.ID,
			FlowID:     flow.ID,
			FlowName:   flow.Name,
			Title:      inc.Title,
		}))
	return nil
}

// dispatch sends the alert and records the attempt on the incident. The
// timestamp is recorded even when every channel fails, so a flapping
// channel cannot defeat storm suppression
func (m *Manager) dispatch(
	ctx context.Context, kind alert.Kind, inc *api.Incident,
	flow *api.Flow, failedStep *api.Step, now time.Time,
) {
	succeeded := m.notifier.Notify(ctx, &alert.Notification{
		Kind:       kind,
		Incident:   inc,
		Flow:       flow,
		FailedStep: failedStep,
	})
	inc.AlertSentAt = &now
	inc.AlertChannels = util.Sorted(succeeded)
}

func (m *Manager) cooldownElapsed(inc *api.Incident, now time.Time) bool {
	if inc.AlertSentAt == nil {
		return true
	}
	return now.Sub(*inc.AlertSentAt) >= m.cooldown
}

func incidentTitle(flow *api.Flow, failedStep *api.Step) string {
	if failedStep != nil {
		return fmt.Sprintf("Flow %q is failing at step %d (%s)",
			flow.Name, failedStep.Position, failedStep.Name)
	}
	return fmt.Sprintf("Flow %q is failing", flow.Name)
}

func incidentDescription(res *api.RunResult, problem *api.StepResult) string {
	if problem != nil && problem.Error != "" {
		return problem.Error
	}
	if res.Error != "" {
		return res.Error
	}
	return fmt.Sprintf("run %s finished with status %s", res.ID, res.Status)
}
