package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	pingStatusHealthy     = "Healthy"
	pingStatusHealthyBusy = "HealthyBusy"
)

// pingHandler handles GET /ping. Unauthenticated; reports whether any turn
// is running and when the last event was emitted (unix ms, process start
// when none).
func (s *Server) pingHandler(c *gin.Context) {
	status := pingStatusHealthy
	if s.coordinator.Busy() {
		status = pingStatusHealthyBusy
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              status,
		"time_of_last_update": s.coordinator.LastUpdate(),
	})
}
