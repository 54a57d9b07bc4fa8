package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

type (
	// SampleSource reads the latency samples and failure count recorded
	// for one step within an hour bucket
	SampleSource interface {
		HourlySamples(ctx context.Context, stepID api.StepID,
			hour time.Time) ([]int64, int, error)
	}

	// Writer persists recomputed hourly metrics
	Writer interface {
		UpsertHourlyMetric(ctx context.Context, m *api.HourlyMetric) error
	}

	// Aggregator recomputes the hourly metric bucket for each step that
	// produced a latency sample in a completed run
	Aggregator struct {
		source SampleSource
		writer Writer
		logger *slog.Logger
	}
)

// NewAggregator creates an Aggregator
func NewAggregator(
	source SampleSource, writer Writer, logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		source: source,
		writer: writer,
		logger: logger,
	}
}

// RecordRun refreshes the hourly bucket of every step touched by the
// run. Skipped steps carry no sample and leave their bucket untouched.
// Buckets are keyed by (step, hour), so replaying the same run is
// idempotent
func (a *Aggregator) RecordRun(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
) error {
	hour := api.HourBucket(res.StartedAt)

	for _, sr := range res.Steps {
		if sr.Status == api.StepSkipped {
			continue
		}
		step := flow.StepAt(sr.Position)
		if step == nil {
			continue
		}

		latencies, failures, err := a.source.HourlySamples(
			ctx, step.ID, hour)
		if err != nil {
			return fmt.Errorf("sampling step %s: %w", step.ID, err)
		}

		metric := &api.HourlyMetric{
			FlowID:         flow.ID,
			StepID:         step.ID,
			Hour:           hour,
			LatencySummary: Summarize(latencies, failures),
		}
		if err := a.writer.UpsertHourlyMetric(ctx, metric); err != nil {
			return fmt.Errorf("upserting metric for %s: %w", step.ID, err)
		}

		a.logger.Debug("hourly metric refreshed",
			log.FlowID(flow.ID), log.StepID(step.ID),
			slog.Time("hour", hour),
			slog.Int("samples", metric.SampleCount))
	}
	return nil
}
