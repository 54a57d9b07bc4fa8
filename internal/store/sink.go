package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vigilhq/vigil/internal/events"
	"github.com/vigilhq/vigil/internal/incident"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

// Sink records completed runs: it persists the result, refreshes hourly
// metrics, advances incident state, and publishes refreshed dashboard
// counters. Only the persistence step is fatal to submission; everything
// downstream is logged and carried on, so a flaky alert channel or
// metric write never loses the run itself
type Sink struct {
	store     *Store
	incidents *incident.Manager
	rollup    *metrics.Aggregator
	hub       *events.Hub
	logger    *slog.Logger
}

// NewSink creates a Sink
func NewSink(
	store *Store, incidents *incident.Manager,
	rollup *metrics.Aggregator, hub *events.Hub, logger *slog.Logger,
) *Sink {
	return &Sink{
		store:     store,
		incidents: incidents,
		rollup:    rollup,
		hub:       hub,
		logger:    logger,
	}
}

// SubmitRun records one completed run
func (s *Sink) SubmitRun(
	ctx context.Context, flow *api.Flow, res *api.RunResult,
) error {
	if err := s.store.InsertRun(ctx, flow, res); err != nil {
		return fmt.Errorf("persisting run: %w", err)
	}

	if err := s.rollup.RecordRun(ctx, flow, res); err != nil {
		s.logger.Error("metric rollup failed",
			log.FlowID(flow.ID), log.RunID(res.ID), log.Error(err))
	}

	if err := s.incidents.HandleRun(ctx, flow, res); err != nil {
		s.logger.Error("incident transition failed",
			log.FlowID(flow.ID), log.RunID(res.ID), log.Error(err))
	}

	stats, err := s.store.OverviewStats(ctx)
	if err != nil {
		s.logger.Error("stats refresh failed", log.Error(err))
		return nil
	}
	s.hub.Publish(api.NewEvent(api.EventStatsUpdated, "", stats))
	return nil
}
