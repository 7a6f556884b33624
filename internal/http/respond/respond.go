// Package respond writes the standard error body returned by every endpoint.
package respond

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
)

// ErrorBody is the JSON shape of a failed request.
type ErrorBody struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
}

// Error aborts the request with the status and message err maps to.
// Unexpected errors are attached to the gin context for the request logger.
func Error(c *gin.Context, err error) {
	status := oauth.Status(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		accesslog.Record(c.Request.Context(), accesslog.Fields{
			Error:      err.Error(),
			StatusCode: status,
		}, "Unexpected error while processing request")
	}
	Status(c, status, oauth.Message(err))
}

// Status aborts the request with an explicit status and message.
func Status(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Path:      c.Request.URL.Path,
	})
}
