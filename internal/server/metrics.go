package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigilhq/vigil/pkg/api"
)

const (
	defaultMetricHours = 24
	maxMetricHours     = 24 * 7
)

var (
	ErrGetStats   = errors.New("failed to get stats")
	ErrGetMetrics = errors.New("failed to get metrics")
)

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.OverviewStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrGetStats, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// flowMetrics returns the hourly latency series for one flow, trailing
// the requested number of hours
func (s *Server) flowMetrics(c *gin.Context) {
	flowID := api.FlowID(c.Param("flowID"))

	hours := defaultMetricHours
	if h := c.Query("hours"); h != "" {
		v, err := strconv.Atoi(h)
		if err != nil || v <= 0 || v > maxMetricHours {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error:  fmt.Sprintf("invalid hours: %q", h),
				Status: http.StatusBadRequest,
			})
			return
		}
		hours = v
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	series, err := s.store.FlowMetrics(c.Request.Context(), flowID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrGetMetrics, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.FlowMetricsResponse{
		FlowID:  flowID,
		Metrics: series,
	})
}
