// Package schedule decides when each monitored flow runs. A polling loop
// checks every enabled flow against its next-due time and launches due
// flows concurrently, with an in-flight guard preventing overlapping
// executions of the same flow
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
	"github.com/vigilhq/vigil/pkg/util"
)

type (
	// Clock provides the current time for due-date bookkeeping
	Clock func() time.Time

	// Source provides the current set of enabled flow definitions
	Source interface {
		EnabledFlows(ctx context.Context) ([]*api.Flow, error)
	}

	// Launcher executes one flow to completion
	Launcher interface {
		Execute(ctx context.Context, flow *api.Flow)
	}

	// Scheduler drives the polling loop. A flow first seen is due
	// immediately; after that it runs on its own interval. The next-due
	// time is recomputed before a run launches, so a slow execution
	// never pushes back the following cycle
	Scheduler struct {
		source   Source
		launcher Launcher
		interval time.Duration
		now      Clock
		logger   *slog.Logger

		mu        sync.Mutex
		nextDueAt map[api.FlowID]time.Time
		inFlight  util.Set[api.FlowID]
		wg        sync.WaitGroup
	}
)

// New creates a Scheduler polling on the given interval
func New(
	source Source, launcher Launcher, interval time.Duration,
	now Clock, logger *slog.Logger,
) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		source:    source,
		launcher:  launcher,
		interval:  interval,
		now:       now,
		logger:    logger,
		nextDueAt: map[api.FlowID]time.Time{},
		inFlight:  util.Set[api.FlowID]{},
	}
}

// Run polls until the context is cancelled, then waits for in-flight
// runs to finish
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. A failing definitions source is logged
// and retried on the next tick; it never stops the loop
func (s *Scheduler) Tick(ctx context.Context) {
	flows, err := s.source.EnabledFlows(ctx)
	if err != nil {
		s.logger.Error("skipping tick, flow source unreachable",
			log.Error(err))
		return
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := util.Set[api.FlowID]{}
	for _, flow := range flows {
		seen.Add(flow.ID)
		if s.inFlight.Contains(flow.ID) {
			continue
		}
		if now.Before(s.nextDueAt[flow.ID]) {
			continue
		}
		s.launchLocked(ctx, flow, now)
	}

	// Forget flows that were disabled or deleted
	for id := range s.nextDueAt {
		if !seen.Contains(id) && !s.inFlight.Contains(id) {
			delete(s.nextDueAt, id)
		}
	}
}

// TriggerNow launches a flow immediately, outside its schedule. It
// reports false when the flow is already in flight
func (s *Scheduler) TriggerNow(ctx context.Context, flow *api.Flow) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight.Contains(flow.ID) {
		return false
	}
	s.launchLocked(ctx, flow, s.now())
	return true
}

// InFlight reports whether a flow is currently executing
func (s *Scheduler) InFlight(id api.FlowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight.Contains(id)
}

// launchLocked recomputes the due time, marks the flow in flight, and
// starts its execution. Callers hold s.mu
func (s *Scheduler) launchLocked(
	ctx context.Context, flow *api.Flow, now time.Time,
) {
	s.nextDueAt[flow.ID] =
		now.Add(time.Duration(flow.IntervalSec) * time.Second)
	s.inFlight.Add(flow.ID)

	s.logger.Debug("launching flow",
		log.FlowID(flow.ID),
		slog.Time("next_due", s.nextDueAt[flow.ID]))

	// Runs are never canceled mid-flight: they finish or hit their own
	// step timeouts even when the triggering request or the scheduler
	// loop goes away. The Run loop still exits on its ctx, and wg.Wait
	// drains launched runs
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearInFlight(flow.ID)
		s.launcher.Execute(runCtx, flow)
	}()
}

func (s *Scheduler) clearInFlight(id api.FlowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight.Remove(id)
}
