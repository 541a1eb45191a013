package handlers

import (
	"log/slog"

	"taskboard/backend/internal/apperrors"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success   bool                   `json:"success"`
	Message   string                 `json:"message"`
	Data      interface{}            `json:"data"`
	Errors    []apperrors.FieldError `json:"errors,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
}

func requestIDFrom(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.GetHeader("X-Request-Id")
}

func Respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RespondError renders err with the status of its kind. Internal failures
// are logged and replaced by a generic message.
func RespondError(c *gin.Context, logger *slog.Logger, err error) {
	appErr := apperrors.From(err)
	status := apperrors.HTTPStatus(appErr.Kind)

	if appErr.Kind == apperrors.KindInternal {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(c.Request.Context(), "request_failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", requestIDFrom(c),
			"err", err,
		)
	}

	c.JSON(status, Envelope{
		Success:   false,
		Message:   appErr.Message,
		Data:      nil,
		Errors:    appErr.Fields,
		RequestID: requestIDFrom(c),
	})
}
