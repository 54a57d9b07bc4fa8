package api

import "time"

type (
	// LatencySummary holds the percentile aggregates derived from a window
	// of step latency samples. Values are nil when the window is empty
	LatencySummary struct {
		P50Ms       *int64  `json:"p50_ms"`
		P95Ms       *int64  `json:"p95_ms"`
		P99Ms       *int64  `json:"p99_ms"`
		AvgMs       *int64  `json:"avg_ms"`
		ErrorRate   float64 `json:"error_rate"`
		SampleCount int     `json:"sample_count"`
	}

	// HourlyMetric is a pre-aggregated latency summary for one step and
	// one wall-clock hour bucket. Upserts are keyed by (step, hour), so
	// recomputing a bucket from the same samples is idempotent
	HourlyMetric struct {
		FlowID FlowID    `json:"flow_id"`
		StepID StepID    `json:"step_id"`
		Hour   time.Time `json:"hour"`
		LatencySummary
	}
)

// HourBucket truncates a timestamp to its wall-clock hour
func HourBucket(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}
