package api

import "time"

type (
	// IncidentID is a unique identifier for an incident
	IncidentID string

	// IncidentStatus is the lifecycle state of an incident
	IncidentStatus string

	// Severity ranks how badly a flow is misbehaving
	Severity string

	// Incident is the open/resolved record representing an ongoing or
	// past flow outage. At most one open incident exists per flow at any
	// time; the lifecycle manager is the sole writer of its transitions
	Incident struct {
		ID              IncidentID     `json:"id"`
		FlowID          FlowID         `json:"flow_id"`
		FailedStepID    StepID         `json:"failed_step_id,omitempty"`
		RunID           RunID          `json:"run_id,omitempty"`
		ResolutionRunID RunID          `json:"resolution_run_id,omitempty"`
		Status          IncidentStatus `json:"status"`
		Severity        Severity       `json:"severity"`
		Title           string         `json:"title"`
		Description     string         `json:"description,omitempty"`
		OpenedAt        time.Time      `json:"opened_at"`
		ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
		AlertSentAt     *time.Time     `json:"alert_sent_at,omitempty"`
		AlertChannels   []string       `json:"alert_channels,omitempty"`
	}
)

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"

	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// SeverityFor maps a run status to the severity of the incident it raises.
// Outright failure is critical; degradation is a warning
func SeverityFor(status RunStatus) Severity {
	if status == RunFailed {
		return SeverityCritical
	}
	return SeverityWarning
}
