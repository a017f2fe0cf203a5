package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/apperr"
)

// respondError maps a service error to its HTTP status. Conflicts are
// idempotent no-ops and answer 200 with a message.
func respondError(c *gin.Context, err error) {
	msg := apperr.MessageOf(err)
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
	case apperr.CodeForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": msg})
	case apperr.CodeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
	case apperr.CodeConflict:
		c.JSON(http.StatusOK, gin.H{"message": msg})
	case apperr.CodeUnauthenticated:
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
