package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medreport/db"
)

// recentTaskLimit is how many recent tasks /api/metrics returns.
const recentTaskLimit = 20

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"capabilities": s.caps.Features(),
		"hosted_model": s.caps.HostedModel,
		"checkpoint":   s.caps.CheckpointPath,
	})
}

func (s *Server) metricsSnapshot(c *gin.Context) {
	if s.metrics == nil {
		OK(c, gin.H{})
		return
	}
	OK(c, s.metrics.Snapshot(recentTaskLimit))
}

func (s *Server) listRuns(c *gin.Context) {
	limit := db.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.repo.ListPipelineRuns(c.Request.Context(), Owner(c), limit)
	if err != nil {
		s.logger.Error("failed to list pipeline runs", zap.Error(err))
		InternalError(c)
		return
	}
	OK(c, runs)
}
