package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/http/respond"
	"github.com/smallbiznis/authbox/internal/introspect"
)

// Introspect reports whether a presented access token is active.
func (h *Handler) Introspect(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: org.ID}, "Starting Oauth2 token introspection")

	presented := introspect.TokenFromRequest(c.Request)
	caller, err := h.caller(c, org, presented)
	if err != nil {
		respond.Error(c, err)
		return
	}
	details, err := h.introspect.Introspect(ctx, org, presented, caller)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// UserInfo returns the profile of the user behind an access token.
func (h *Handler) UserInfo(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: org.ID}, "Starting Oauth2 user info lookup")

	presented := introspect.TokenFromRequest(c.Request)
	if _, err := h.caller(c, org, presented); err != nil {
		respond.Error(c, err)
		return
	}
	info, err := h.introspect.UserInfo(ctx, org, presented)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// caller authenticates the requesting client unless token details are open
// to anonymous callers. Nothing is checked when no token was presented; the
// resolver rejects that case itself.
func (h *Handler) caller(c *gin.Context, org domain.Organization, presented string) (*domain.OauthClient, error) {
	if presented == "" || h.cfg.AllowTokenDetailsWithoutClientCredentials {
		return nil, nil
	}
	client, err := h.credentials.ResolveClient(c.Request.Context(), c.Request, org)
	if err != nil {
		return nil, err
	}
	return &client, nil
}
