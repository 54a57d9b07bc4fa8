package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vigilhq/vigil/pkg/api"
)

const serviceName = "vigil"

func (s *Server) handleHealth(c *gin.Context) {
	res := api.HealthResponse{
		Service:  serviceName,
		Version:  s.version,
		Status:   "healthy",
		Database: "ok",
	}

	if err := s.store.Ping(c.Request.Context()); err != nil {
		res.Status = "degraded"
		res.Database = err.Error()
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	c.JSON(http.StatusOK, res)
}
