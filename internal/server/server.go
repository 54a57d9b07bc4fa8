// Package server exposes the monitor's HTTP API: flow management,
// run and incident history, metrics, and a WebSocket event stream for
// the dashboard
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/vigilhq/vigil/internal/diagnose"
	"github.com/vigilhq/vigil/internal/events"
	"github.com/vigilhq/vigil/internal/schedule"
	"github.com/vigilhq/vigil/internal/store"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/util"
)

type (
	// Storage is the slice of the store the HTTP surface reads and
	// writes
	Storage interface {
		Ping(ctx context.Context) error

		ListFlows(ctx context.Context) ([]*api.Flow, error)
		CreateFlow(ctx context.Context, flow *api.Flow) error
		UpdateFlow(ctx context.Context, flow *api.Flow) error
		DeleteFlow(ctx context.Context, id api.FlowID) error
		GetFlow(ctx context.Context, id api.FlowID) (*api.Flow, error)

		ListRuns(
			ctx context.Context, flowID api.FlowID, limit int,
		) ([]*store.RunRecord, error)
		GetRun(ctx context.Context, id api.RunID) (*api.RunResult, error)

		ListIncidents(
			ctx context.Context, status api.IncidentStatus, limit int,
		) ([]*api.Incident, error)
		FlowIncidents(
			ctx context.Context, flowID api.FlowID, limit int,
		) ([]*api.Incident, error)
		GetIncident(
			ctx context.Context, id api.IncidentID,
		) (*api.Incident, error)

		StepWindow(
			ctx context.Context, stepID api.StepID,
		) (*api.LatencySummary, error)
		FlowMetrics(
			ctx context.Context, flowID api.FlowID, since time.Time,
		) ([]*api.HourlyMetric, error)
		OverviewStats(ctx context.Context) (*api.StatsUpdatedEvent, error)
	}

	// Trigger launches a manual run for a flow
	Trigger interface {
		TriggerNow(ctx context.Context, flow *api.Flow) bool
	}

	// Server implements the HTTP API for the monitor
	Server struct {
		store     Storage
		scheduler Trigger
		hub       *events.Hub
		diagnoser diagnose.Diagnoser
		version   string
		sockets   util.Set[*Client]
		mu        sync.Mutex
	}
)

var (
	_ Storage = (*store.Store)(nil)
	_ Trigger = (*schedule.Scheduler)(nil)
)

// NewServer creates a new HTTP API server. The diagnoser may be nil, in
// which case the diagnosis endpoint reports itself unavailable
func NewServer(
	st Storage, sched Trigger, hub *events.Hub,
	diag diagnose.Diagnoser, version string,
) *Server {
	return &Server{
		store:     st,
		scheduler: sched,
		hub:       hub,
		diagnoser: diag,
		version:   version,
		sockets:   util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		// Flow endpoints
		v1.GET("/flows", s.listFlows)
		v1.POST("/flows", s.createFlow)
		v1.GET("/flows/:flowID", s.getFlow)
		v1.PUT("/flows/:flowID", s.updateFlow)
		v1.DELETE("/flows/:flowID", s.deleteFlow)
		v1.POST("/flows/:flowID/trigger", s.triggerFlow)
		v1.GET("/flows/:flowID/metrics", s.flowMetrics)

		// Run endpoints
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:runID", s.getRun)

		// Incident endpoints
		v1.GET("/incidents", s.listIncidents)
		v1.GET("/incidents/:incidentID", s.getIncident)
		v1.POST("/incidents/:incidentID/diagnose", s.diagnoseIncident)

		// Dashboard counters
		v1.GET("/stats", s.handleStats)

		// WebSocket
		v1.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
