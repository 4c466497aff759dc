package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck 健康检查；降级期间仍然可用，但要把状态讲清楚
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := "ok"
	storageState := "primary"
	if err := h.store.Ping(c.Request.Context()); err != nil {
		status = "degraded"
		storageState = "unavailable"
	} else if h.store.Degraded() {
		status = "degraded"
		storageState = "fallback"
	}

	code := http.StatusOK
	if storageState == "unavailable" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"storage":        storageState,
		"activeSessions": h.coord.ActiveSessions(),
	})
}
