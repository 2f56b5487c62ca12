package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleRunSweep triggers a single maturity sweep pass immediately
func (s *Server) handleRunSweep(c *gin.Context) {
	if s.sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "SWEEP_DISABLED",
			"message": "maturity sweep is not configured",
		})
		return
	}

	result, err := s.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleSweepStatus reports the sweep scheduler's state
func (s *Server) handleSweepStatus(c *gin.Context) {
	if s.sweeper == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":  true,
		"running":  s.sweeper.IsRunning(),
		"interval": s.sweeper.Interval().String(),
	})
}
