package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"taskboard/backend/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// RecoveryWithLog turns a handler panic into a 500 envelope and logs the stack.
func RecoveryWithLog(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(c.Request.Context(), "panic_recovered",
					"panic", r,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": apperrors.InternalMessage,
					"data":    nil,
				})
			}
		}()
		c.Next()
	}
}
