package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/accesslog"
)

const (
	HeaderRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 36
)

// RequestLogger assigns the request id, opens the request's access-log buffer
// for audited paths and logs each request with latency and organization.
func RequestLogger(logger *zap.Logger, logs *accesslog.Service) gin.HandlerFunc {
	if logger == nil {
		logger = zap.L()
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFrom(c.Request.Header.Get(HeaderRequestID))
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(HeaderRequestID, requestID)

		path := c.Request.URL.Path
		var buf *accesslog.Buffer
		if logs != nil && audited(path) {
			buf = logs.NewBuffer(requestID, c.ClientIP(), c.Request.UserAgent())
			c.Request = c.Request.WithContext(accesslog.WithBuffer(c.Request.Context(), buf))
			buf.Add(accesslog.Fields{}, "Request started: %s %s", c.Request.Method, path)
			defer func() {
				status := c.Writer.Status()
				rec := recover()
				if rec != nil {
					status = http.StatusInternalServerError
				}
				f := accesslog.Fields{StatusCode: status}
				if org, ok := GetOrganization(c); ok {
					f.OrganizationID = org.ID
				}
				buf.Add(f, "Request finished: %s %s", c.Request.Method, path)
				buf.Flush()
				if rec != nil {
					panic(rec)
				}
			}()
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		org, hasOrg := GetOrganization(c)

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if hasOrg {
			fields = append(fields, zap.String("organization_id", org.ID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func requestIDFrom(header string) string {
	id := strings.TrimSpace(header)
	if id != "" && len(id) <= maxRequestIDLen {
		return id
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func audited(path string) bool {
	return strings.HasPrefix(path, "/oauth") || strings.HasPrefix(path, "/.well-known")
}
