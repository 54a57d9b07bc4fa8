package api

type (
	// ErrorResponse is the standard error envelope for API responses
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}

	// HealthResponse reports service liveness and store reachability
	HealthResponse struct {
		Service  string `json:"service"`
		Version  string `json:"version"`
		Status   string `json:"status"`
		Database string `json:"database"`
	}

	// FlowsListResponse wraps a flow listing
	FlowsListResponse struct {
		Flows []*Flow `json:"flows"`
		Count int     `json:"count"`
	}

	// IncidentsListResponse wraps an incident listing
	IncidentsListResponse struct {
		Incidents []*Incident `json:"incidents"`
		Count     int         `json:"count"`
	}

	// FlowMetricsResponse wraps the hourly series for one flow
	FlowMetricsResponse struct {
		FlowID  FlowID          `json:"flow_id"`
		Metrics []*HourlyMetric `json:"metrics"`
	}

	// TriggerResponse acknowledges a manual trigger request. Started is
	// false when the flow already has a run in flight
	TriggerResponse struct {
		FlowID  FlowID `json:"flow_id"`
		Started bool   `json:"started"`
	}

	// DiagnosisResponse carries an LLM diagnosis of an incident
	DiagnosisResponse struct {
		IncidentID IncidentID `json:"incident_id"`
		Diagnosis  string     `json:"diagnosis"`
	}

	// SubscribeRequest is the message a WebSocket client sends to scope
	// its event stream to particular flows. An empty FlowIDs list
	// restores the unfiltered stream
	SubscribeRequest struct {
		Type    string   `json:"type"`
		FlowIDs []FlowID `json:"flow_ids,omitempty"`
	}
)
