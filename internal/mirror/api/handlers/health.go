package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trigg3rX/triggerx-mirror-sync/internal/mirror"
)

// Health reports whether the state store answers and holds a state.
func (h *MirrorHandler) Health(c *gin.Context) {
	s, err := h.mirror.State(c.Request.Context())
	if err != nil {
		status := "unhealthy"
		if errors.Is(err, mirror.ErrNotInitialized) {
			status = "uninitialized"
		}
		h.logger.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    status,
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"handler":         h.mirror.Config().Name,
		"version":         s.Version,
		"last_trigger_id": s.LastTriggerID,
		"timestamp":       time.Now().UTC(),
	})
}

// Metrics serves the default prometheus registry.
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
