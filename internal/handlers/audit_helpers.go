package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-core/internal/middleware"
	"chat-core/internal/models"
	"chat-core/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func currentUser(c *gin.Context) (models.CurrentUser, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok || user.ID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return models.CurrentUser{}, false
	}
	return user, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (string, int, bool) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return "", 0, false
		}
		limit = n
	}
	return c.Query("cursor"), limit, true
}

func emitAudit(c *gin.Context, emitter *telemetry.AuditEmitter, user models.CurrentUser, action, resource string, resourceID int64) {
	emitter.Emit(c.Request.Context(), telemetry.AuditRecord{
		Level:      "INFO",
		Text:       action + " " + resource + " " + strconv.FormatInt(resourceID, 10),
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		RequestID:  requestIDFromContext(c),
		UserID:     user.ID,
	})
}
