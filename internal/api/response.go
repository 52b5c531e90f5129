package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// Response is the envelope of every /api answer
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Message: message})
}

// fail writes a failed envelope; title is the short error kind and message
// the detail shown to the caller
func fail(c *gin.Context, status int, title, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: title, Message: message})
}

// respondError maps err onto a status and envelope
func (s *Server) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	rerr, isRecon := errors.AsReconcilerError(err)
	if !isRecon {
		s.log.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Error("Unexpected error")
		fail(c, http.StatusInternalServerError, "Internal server error", "An error occurred while processing the request")
		return
	}

	status := rerr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logger.Fields{
			"request_id": c.GetString(requestIDKey),
			"category":   rerr.Category,
			"code":       rerr.Code,
		}).Error("Request failed")
	}

	fail(c, status, errorTitle(rerr), rerr.Message)
}

func errorTitle(rerr *errors.ReconcilerError) string {
	if inner, ok := errors.AsReconcilerError(rerr.Cause); ok && inner != rerr && rerr.Category == errors.CategoryReconciliation {
		rerr = inner
	}

	switch rerr.Category {
	case errors.CategoryFile, errors.CategoryParse, errors.CategoryValidation:
		return "Invalid input"
	case errors.CategoryEmbedding:
		return "Embedding provider unavailable"
	case errors.CategoryConversion, errors.CategoryNetwork:
		return "Upstream service error"
	case errors.CategoryConfiguration:
		return "Service not configured"
	default:
		return "Internal server error"
	}
}
