// Package handler exposes the OAuth2 endpoints over gin.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/authorize"
	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/credentials"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/grant"
	"github.com/smallbiznis/authbox/internal/http/middleware"
	"github.com/smallbiznis/authbox/internal/http/respond"
	"github.com/smallbiznis/authbox/internal/introspect"
)

// Handler orchestrates the tenant-scoped endpoints.
type Handler struct {
	grants      *grant.Registry
	introspect  *introspect.Resolver
	flow        *authorize.Flow
	credentials *credentials.Parser
	cfg         config.Config
	logger      *zap.Logger
}

func NewHandler(
	grants *grant.Registry,
	introspector *introspect.Resolver,
	flow *authorize.Flow,
	parser *credentials.Parser,
	cfg config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		grants:      grants,
		introspect:  introspector,
		flow:        flow,
		credentials: parser,
		cfg:         cfg,
		logger:      logger.Named("handler"),
	}
}

// organization returns the tenant resolved by middleware.Org. A route
// registered outside the tenant group is a wiring bug.
func organization(c *gin.Context) (domain.Organization, bool) {
	org, ok := middleware.GetOrganization(c)
	if !ok {
		respond.Error(c, oauth.New(oauth.ErrInvalidRequest, "Organization not resolved"))
	}
	return org, ok
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return strings.ToLower(scheme)
}

// issuer keeps the port so metadata URLs stay reachable in development.
func issuer(r *http.Request) string {
	return schemeOnly(r) + "://" + r.Host
}
