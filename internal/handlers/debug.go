package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/middleware"
	"chat-core/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		user, _ := middleware.CurrentUser(c)
		emitAudit(c, emitter, user, "audit_test", "debug", 0)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

