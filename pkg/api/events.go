package api

import "time"

type (
	// EventType identifies a domain event published by the engine
	EventType string

	// Event is the envelope delivered to event subscribers. FlowID is
	// empty for events that are not scoped to a single flow
	Event struct {
		Type      EventType `json:"type"`
		FlowID    FlowID    `json:"flow_id,omitempty"`
		Timestamp time.Time `json:"ts"`
		Payload   any       `json:"payload,omitempty"`
	}

	// RunStartedEvent is published when a flow execution begins
	RunStartedEvent struct {
		FlowID   FlowID `json:"flow_id"`
		FlowName string `json:"flow_name"`
	}

	// StepCompletedEvent is published for each step result as a run is
	// recorded
	StepCompletedEvent struct {
		RunID     RunID      `json:"run_id"`
		FlowID    FlowID     `json:"flow_id"`
		Position  int        `json:"position"`
		Status    StepStatus `json:"status"`
		LatencyMs *int64     `json:"latency_ms"`
		Error     string     `json:"error,omitempty"`
	}

	// RunCompletedEvent is published once a run has been recorded
	RunCompletedEvent struct {
		RunID      RunID     `json:"run_id"`
		FlowID     FlowID    `json:"flow_id"`
		FlowName   string    `json:"flow_name"`
		Status     RunStatus `json:"status"`
		DurationMs int64     `json:"duration_ms"`
	}

	// IncidentOpenedEvent is published when a new incident is raised
	IncidentOpenedEvent struct {
		IncidentID IncidentID `json:"incident_id"`
		FlowID     FlowID     `json:"flow_id"`
		FlowName   string     `json:"flow_name"`
		Severity   Severity   `json:"severity"`
		Title      string     `json:"title"`
	}

	// IncidentResolvedEvent is published when an open incident resolves
	IncidentResolvedEvent struct {
		IncidentID IncidentID `json:"incident_id"`
		FlowID     FlowID     `json:"flow_id"`
		FlowName   string     `json:"flow_name"`
		Title      string     `json:"title"`
	}

	// StatsUpdatedEvent carries refreshed global dashboard counters
	StatsUpdatedEvent struct {
		TotalFlows    int `json:"total_flows"`
		PassingFlows  int `json:"passing_flows"`
		FailingFlows  int `json:"failing_flows"`
		OpenIncidents int `json:"open_incidents"`
	}
)

const (
	EventRunStarted       EventType = "run:started"
	EventStepCompleted    EventType = "step:completed"
	EventRunCompleted     EventType = "run:completed"
	EventIncidentOpened   EventType = "incident:opened"
	EventIncidentResolved EventType = "incident:resolved"
	EventStatsUpdated     EventType = "stats:updated"
)

// NewEvent wraps a payload in an event envelope stamped with the current
// time
func NewEvent(t EventType, flowID FlowID, payload any) *Event {
	return &Event{
		Type:      t,
		FlowID:    flowID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
