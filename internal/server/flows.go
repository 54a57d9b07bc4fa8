package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vigilhq/vigil/internal/store"
	"github.com/vigilhq/vigil/pkg/api"
)

type (
	// stepDetail is a step enriched with its trailing 24h latency window
	stepDetail struct {
		*api.Step
		Window *api.LatencySummary `json:"window"`
	}

	// flowDetail is the enriched single-flow view consumed by the
	// dashboard: the definition plus per-step latency windows, recent
	// runs, and recent incidents
	flowDetail struct {
		*api.Flow
		StepDetails []*stepDetail      `json:"step_details"`
		RecentRuns  []*store.RunRecord `json:"recent_runs"`
		Incidents   []*api.Incident    `json:"incidents"`
	}
)

const (
	recentRunLimit    = 20
	flowIncidentLimit = 10
	defaultListLimit  = 50
	maxListLimit      = 200
)

var (
	ErrInvalidJSON = errors.New("invalid JSON request")
	ErrListFlows   = errors.New("failed to list flows")
	ErrGetFlow     = errors.New("failed to get flow")
	ErrSaveFlow    = errors.New("failed to save flow")
	ErrDeleteFlow  = errors.New("failed to delete flow")
)

func (s *Server) listFlows(c *gin.Context) {
	flows, err := s.store.ListFlows(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrListFlows, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.FlowsListResponse{
		Flows: flows,
		Count: len(flows),
	})
}

func (s *Server) createFlow(c *gin.Context) {
	var flow api.Flow
	if err := c.ShouldBindJSON(&flow); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	if err := flow.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusBadRequest,
		})
		return
	}

	if err := s.store.CreateFlow(c.Request.Context(), &flow); err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrSaveFlow, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, &flow)
}

func (s *Server) getFlow(c *gin.Context) {
	ctx := c.Request.Context()
	flowID := api.FlowID(c.Param("flowID"))

	flow, err := s.store.GetFlow(ctx, flowID)
	if err != nil {
		s.flowError(c, flowID, err)
		return
	}

	detail := &flowDetail{
		Flow:        flow,
		StepDetails: make([]*stepDetail, 0, len(flow.Steps)),
	}
	for _, step := range flow.Steps {
		window, err := s.store.StepWindow(ctx, step.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{
				Error:  fmt.Sprintf("%s: %v", ErrGetFlow, err),
				Status: http.StatusInternalServerError,
			})
			return
		}
		detail.StepDetails = append(detail.StepDetails, &stepDetail{
			Step:   step,
			Window: window,
		})
	}

	detail.RecentRuns, err = s.store.ListRuns(ctx, flowID, recentRunLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrGetFlow, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	detail.Incidents, err = s.store.FlowIncidents(
		ctx, flowID, flowIncidentLimit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrGetFlow, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (s *Server) updateFlow(c *gin.Context) {
	flowID := api.FlowID(c.Param("flowID"))

	var flow api.Flow
	if err := c.ShouldBindJSON(&flow); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	if flow.ID != "" && flow.ID != flowID {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  "Flow ID in URL does not match flow ID in body",
			Status: http.StatusBadRequest,
		})
		return
	}
	flow.ID = flowID

	if err := flow.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusBadRequest,
		})
		return
	}

	if err := s.store.UpdateFlow(c.Request.Context(), &flow); err != nil {
		s.flowError(c, flowID, err)
		return
	}

	c.JSON(http.StatusOK, &flow)
}

func (s *Server) deleteFlow(c *gin.Context) {
	flowID := api.FlowID(c.Param("flowID"))

	if err := s.store.DeleteFlow(c.Request.Context(), flowID); err != nil {
		s.flowError(c, flowID, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// triggerFlow accepts a manual run request. The run is launched
// asynchronously; a flow that is already in flight is reported as not
// started rather than queued
func (s *Server) triggerFlow(c *gin.Context) {
	flowID := api.FlowID(c.Param("flowID"))

	flow, err := s.store.GetFlow(c.Request.Context(), flowID)
	if err != nil {
		s.flowError(c, flowID, err)
		return
	}

	// The request context dies as soon as the 202 is written; the run
	// must not die with it
	started := s.scheduler.TriggerNow(
		context.WithoutCancel(c.Request.Context()), flow,
	)
	c.JSON(http.StatusAccepted, api.TriggerResponse{
		FlowID:  flowID,
		Started: started,
	})
}

func (s *Server) flowError(c *gin.Context, flowID api.FlowID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("flow not found: %s", flowID),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetFlow, err),
		Status: http.StatusInternalServerError,
	})
}
