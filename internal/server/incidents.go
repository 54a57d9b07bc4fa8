package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vigilhq/vigil/internal/diagnose"
	"github.com/vigilhq/vigil/internal/store"
	"github.com/vigilhq/vigil/pkg/api"
)

var (
	ErrListIncidents = errors.New("failed to list incidents")
	ErrGetIncident   = errors.New("failed to get incident")
	ErrDiagnose      = errors.New("failed to diagnose incident")
)

func (s *Server) listIncidents(c *gin.Context) {
	status := api.IncidentStatus(c.Query("status"))
	limit := listLimit(c)

	incidents, err := s.store.ListIncidents(
		c.Request.Context(), status, limit,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrListIncidents, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.IncidentsListResponse{
		Incidents: incidents,
		Count:     len(incidents),
	})
}

func (s *Server) getIncident(c *gin.Context) {
	incidentID := api.IncidentID(c.Param("incidentID"))

	inc, err := s.store.GetIncident(c.Request.Context(), incidentID)
	if err != nil {
		s.incidentError(c, incidentID, err)
		return
	}

	c.JSON(http.StatusOK, inc)
}

// diagnoseIncident asks the configured LLM for a root-cause analysis of
// one incident. Reports 501 when no diagnoser is configured
func (s *Server) diagnoseIncident(c *gin.Context) {
	if s.diagnoser == nil {
		c.JSON(http.StatusNotImplemented, api.ErrorResponse{
			Error:  "diagnosis is not configured; set GEMINI_API_KEY",
			Status: http.StatusNotImplemented,
		})
		return
	}

	ctx := c.Request.Context()
	incidentID := api.IncidentID(c.Param("incidentID"))

	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		s.incidentError(c, incidentID, err)
		return
	}

	flow, err := s.store.GetFlow(ctx, inc.FlowID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrDiagnose, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	req := &diagnose.Request{
		Incident: inc,
		Flow:     flow,
	}
	if inc.RunID != "" {
		run, err := s.store.GetRun(ctx, inc.RunID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{
				Error:  fmt.Sprintf("%s: %v", ErrDiagnose, err),
				Status: http.StatusInternalServerError,
			})
			return
		}
		req.Run = run
	}

	diagnosis, err := s.diagnoser.Diagnose(ctx, req)
	if err != nil {
		c.JSON(http.StatusBadGateway, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrDiagnose, err),
			Status: http.StatusBadGateway,
		})
		return
	}

	c.JSON(http.StatusOK, api.DiagnosisResponse{
		IncidentID: incidentID,
		Diagnosis:  diagnosis,
	})
}

func (s *Server) incidentError(
	c *gin.Context, id api.IncidentID, err error,
) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("incident not found: %s", id),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetIncident, err),
		Status: http.StatusInternalServerError,
	})
}
