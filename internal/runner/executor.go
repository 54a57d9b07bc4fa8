package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/internal/events"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

type (
	// ResultSink receives completed runs for recording. Implementations
	// persist the run, update incident state, and refresh metrics
	ResultSink interface {
		SubmitRun(
			ctx context.Context, flow *api.Flow, res *api.RunResult,
		) error
	}

	// Executor dispatches a flow to the runner for its kind, downgrades
	// runner crashes to failed results, and submits the outcome
	Executor struct {
		runners       map[api.FlowKind]Runner
		sink          ResultSink
		hub           *events.Hub
		submitTimeout time.Duration
		logger        *slog.Logger
	}
)

// NewExecutor creates an Executor
func NewExecutor(
	runners map[api.FlowKind]Runner, sink ResultSink, hub *events.Hub,
	submitTimeout time.Duration, logger *slog.Logger,
) *Executor {
	return &Executor{
		runners:       runners,
		sink:          sink,
		hub:           hub,
		submitTimeout: submitTimeout,
		logger:        logger,
	}
}

// Execute runs one flow end to end. It never returns an error; every
// failure mode ends in a recorded failed run or a logged submission
// failure
func (e *Executor) Execute(ctx context.Context, flow *api.Flow) {
	e.hub.Publish(api.NewEvent(api.EventRunStarted, flow.ID,
		&api.RunStartedEvent{
			FlowID:   flow.ID,
			FlowName: flow.Name,
		}))

	res := e.run(ctx, flow)
	res.ID = api.RunID(uuid.NewString())

	e.logger.Info("run completed",
		log.FlowID(flow.ID), log.RunID(res.ID),
		log.Status(res.Status),
		slog.Int64("duration_ms", res.DurationMs))

	e.submit(flow, res)

	for _, sr := range res.Steps {
		e.hub.Publish(api.NewEvent(api.EventStepCompleted, flow.ID,
			&api.StepCompletedEvent{
				RunID:     res.ID,
				FlowID:    flow.ID,
				Position:  sr.Position,
				Status:    sr.Status,
				LatencyMs: sr.LatencyMs,
				Error:     sr.Error,
			}))
	}
	e.hub.Publish(api.NewEvent(api.EventRunCompleted, flow.ID,
		&api.RunCompletedEvent{
			RunID:      res.ID,
			FlowID:     flow.ID,
			FlowName:   flow.Name,
			Status:     res.Status,
			DurationMs: res.DurationMs,
		}))
}

// run dispatches to the kind's runner, turning a missing runner or a
// runner panic into a failed result rather than a crashed process
func (e *Executor) run(
	ctx context.Context, flow *api.Flow,
) (res *api.RunResult) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("runner crashed",
				log.FlowID(flow.ID), slog.Any("panic", r))
			res = failedRun(flow.ID, started,
				"runner crashed: %v", r)
		}
	}()

	runner, ok := e.runners[flow.Kind]
	if !ok {
		return failedRun(flow.ID, started,
			"no runner for flow kind %q", flow.Kind)
	}
	return runner.Run(ctx, flow)
}

// submit hands the result to the sink on a detached context so that
// recording survives engine shutdown. Failures are logged, not retried
func (e *Executor) submit(flow *api.Flow, res *api.RunResult) {
	ctx, cancel := context.WithTimeout(
		context.Background(), e.submitTimeout)
	defer cancel()

	if err := e.sink.SubmitRun(ctx, flow, res); err != nil {
		e.logger.Error("run submission failed",
			log.FlowID(flow.ID), log.RunID(res.ID), log.Error(err))
	}
}

func failedRun(
	flowID api.FlowID, started time.Time, format string, args ...any,
) *api.RunResult {
	res := finishRun(flowID, started, nil)
	res.Status = api.RunFailed
	res.Error = fmt.Sprintf(format, args...)
	return res
}
