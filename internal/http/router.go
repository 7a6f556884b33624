package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/authbox/internal/http/middleware"
	"github.com/smallbiznis/authbox/internal/http/respond"
	"github.com/smallbiznis/authbox/internal/middleware"
	"github.com/smallbiznis/authbox/internal/org"
	"github.com/smallbiznis/authbox/internal/telemetry"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

// Served without an organization.
var untenantedPaths = []string{healthPath, metricsPath}

// NewRouter wires Gin routes and middleware. Every route except the health
// and metrics endpoints resolves the organization from the Host header, so
// CORS preflights reach OrgCORS even though no OPTIONS route is registered.
func NewRouter(
	cfg config.Config,
	h *handler.Handler,
	resolver *org.Resolver,
	rateLimiter *middleware.RateLimiter,
	logs *accesslog.Service,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger, logs))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpmiddleware.Except(httpmiddleware.Org(resolver), untenantedPaths...))
	r.Use(httpmiddleware.Except(middleware.OrgCORS(cfg), untenantedPaths...))
	r.SetHTMLTemplate(handler.Templates())

	r.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET(metricsPath, gin.WrapH(metrics.Handler()))
	}

	r.POST("/oauth/token", h.Token)
	r.GET("/oauth/introspection", h.Introspect)
	r.POST("/oauth/introspection", h.Introspect)
	r.GET("/oauth/user", h.UserInfo)
	r.POST("/oauth/user", h.UserInfo)

	r.GET("/oauth/authorize", h.Authorize)
	r.POST("/oauth/authorize", h.AuthorizeCredentials)
	r.POST("/oauth/authorize/2fa", h.AuthorizeSecondFactor)
	r.POST("/oauth/authorize/finish", h.AuthorizeFinish)

	r.GET("/.well-known/jwks.json", h.JWKS)
	r.GET("/.well-known/oauth-authorization-server", h.Metadata)

	r.NoRoute(func(c *gin.Context) {
		respond.Status(c, http.StatusNotFound, "No handler found for "+c.Request.Method+" "+c.Request.URL.Path)
	})
	r.NoMethod(func(c *gin.Context) {
		respond.Status(c, http.StatusMethodNotAllowed, "Request method "+c.Request.Method+" not supported for "+c.Request.URL.Path)
	})

	return r
}
