package api

import "time"

type (
	// RunID is a unique identifier for a run
	RunID string

	// RunStatus classifies a completed run
	RunStatus string

	// StepStatus classifies one step's outcome within a run
	StepStatus string

	// RunResult is produced by one complete execution of a flow. ID is
	// assigned by the executor before the result is submitted
	RunResult struct {
		ID          RunID         `json:"id"`
		FlowID      FlowID        `json:"flow_id"`
		Status      RunStatus     `json:"status"`
		StartedAt   time.Time     `json:"started_at"`
		CompletedAt time.Time     `json:"completed_at"`
		DurationMs  int64         `json:"duration_ms"`
		Steps       []*StepResult `json:"step_results"`
		Error       string        `json:"error,omitempty"`
	}

	// StepResult is the per-step telemetry captured during a run. Latency
	// is nil for skipped steps, which never execute
	StepResult struct {
		Position     int        `json:"position"`
		Status       StepStatus `json:"status"`
		LatencyMs    *int64     `json:"latency_ms"`
		StartedAt    time.Time  `json:"started_at"`
		CompletedAt  time.Time  `json:"completed_at"`
		Error        string     `json:"error,omitempty"`
		Logs         []string   `json:"logs,omitempty"`
		HTTPStatus   int        `json:"http_status,omitempty"`
		ResponseBody string     `json:"response_body,omitempty"`
		Screenshot   string     `json:"screenshot,omitempty"`
	}
)

const (
	RunPassed   RunStatus = "passed"
	RunFailed   RunStatus = "failed"
	RunDegraded RunStatus = "degraded"

	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSlow    StepStatus = "slow"
	StepSkipped StepStatus = "skipped"
)

// SkippedError is the synthetic error recorded on steps that never ran
// because an earlier step failed
const SkippedError = "skipped: previous step failed"

// NewSkippedResult produces the StepResult recorded for a step that was
// never executed
func NewSkippedResult(position int) *StepResult {
	now := time.Now()
	return &StepResult{
		Position:    position,
		Status:      StepSkipped,
		StartedAt:   now,
		CompletedAt: now,
		Error:       SkippedError,
	}
}

// FirstProblem returns the first failed step result, or failing that the
// first slow one. Returns nil when every step passed
func (r *RunResult) FirstProblem() *StepResult {
	var slow *StepResult
	for _, sr := range r.Steps {
		if sr.Status == StepFailed {
			return sr
		}
		if sr.Status == StepSlow && slow == nil {
			slow = sr
		}
	}
	return slow
}

// IsHealthy reports whether the run completed without failure or
// degradation
func (r *RunResult) IsHealthy() bool {
	return r.Status == RunPassed
}
