package http

import (
	"errors"
	"net/http"

	"github.com/NTGPC/ntglogin-sub000/internal/domain/workflow"
	"github.com/NTGPC/ntglogin-sub000/internal/shared/errs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusOf maps a domain error to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body. Server-side failures are logged.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	body := gin.H{"success": false, "error": err.Error()}

	var issues workflow.Issues
	if errors.As(err, &issues) {
		body["issues"] = issues
	}

	if status >= http.StatusInternalServerError {
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		}
		if h.dev {
			fields = append(fields, zap.Stack("stack"))
		}
		h.logger.Error("request failed", fields...)
	}
	c.JSON(status, body)
}
