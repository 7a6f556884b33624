package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/grant"
	"github.com/smallbiznis/authbox/internal/http/respond"
)

// Token exchanges a grant for an access token.
func (h *Handler) Token(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	grantType := c.PostForm(grant.ParamGrantType)
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: org.ID}, "Starting Oauth2 token generation (grant_type: '%s')", grantType)

	resp, err := h.grants.Process(ctx, org, c.Request)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}
