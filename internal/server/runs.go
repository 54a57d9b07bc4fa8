package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vigilhq/vigil/internal/store"
	"github.com/vigilhq/vigil/pkg/api"
)

// runsListResponse wraps a run listing
type runsListResponse struct {
	Runs  []*store.RunRecord `json:"runs"`
	Count int                `json:"count"`
}

var ErrListRuns = errors.New("failed to list runs")

func (s *Server) listRuns(c *gin.Context) {
	flowID := api.FlowID(c.Query("flow_id"))
	limit := listLimit(c)

	runs, err := s.store.ListRuns(c.Request.Context(), flowID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrListRuns, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, runsListResponse{
		Runs:  runs,
		Count: len(runs),
	})
}

func (s *Server) getRun(c *gin.Context) {
	runID := api.RunID(c.Param("runID"))

	run, err := s.store.GetRun(c.Request.Context(), runID)
	if err == nil {
		c.JSON(http.StatusOK, run)
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("run not found: %s", runID),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("failed to get run: %v", err),
		Status: http.StatusInternalServerError,
	})
}

// listLimit parses the optional limit query parameter, clamped to
// sensible bounds
func listLimit(c *gin.Context) int {
	s := c.Query("limit")
	if s == "" {
		return defaultListLimit
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultListLimit
	}
	return min(v, maxListLimit)
}
