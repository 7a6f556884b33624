package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authbox/internal/authorize"
	"github.com/smallbiznis/authbox/internal/http/respond"
)

const (
	authorizePath = "/oauth/authorize"
	paramCode2FA  = "code2fa"
	paramUsername = "username"
	paramPassword = "password"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the authorize pages for gin's HTML renderer.
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

// Authorize renders the credential form.
func (h *Handler) Authorize(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	p, err := authorize.ParamsFromRequest(c.Request)
	if err != nil {
		respond.Error(c, err)
		return
	}
	res, err := h.flow.Start(c.Request.Context(), org, p)
	h.render(c, res, err)
}

// AuthorizeCredentials verifies the submitted username and password.
func (h *Handler) AuthorizeCredentials(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	p, err := authorize.ParamsFromRequest(c.Request)
	if err != nil {
		respond.Error(c, err)
		return
	}
	res, err := h.flow.SubmitCredentials(c.Request.Context(), org, p,
		c.PostForm(paramUsername), c.PostForm(paramPassword), h.sessionID(c))
	h.render(c, res, err)
}

// AuthorizeSecondFactor verifies the TOTP code.
func (h *Handler) AuthorizeSecondFactor(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	p, err := authorize.ParamsFromRequest(c.Request)
	if err != nil {
		respond.Error(c, err)
		return
	}
	res, err := h.flow.SubmitSecondFactor(c.Request.Context(), org, p, c.PostForm(paramCode2FA), h.sessionID(c))
	h.render(c, res, err)
}

// AuthorizeFinish issues the code for the consented scopes.
func (h *Handler) AuthorizeFinish(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	p, err := authorize.ParamsFromRequest(c.Request)
	if err != nil {
		respond.Error(c, err)
		return
	}
	res, err := h.flow.Finish(c.Request.Context(), org, p, h.sessionID(c))
	h.render(c, res, err)
}

func (h *Handler) sessionID(c *gin.Context) string {
	id, err := c.Cookie(h.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return id
}

func (h *Handler) render(c *gin.Context, res *authorize.Result, err error) {
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.SetSameSite(http.SameSiteLaxMode)
	secure := schemeOnly(c.Request) == "https"
	switch {
	case res.Session != nil:
		c.SetCookie(h.cfg.SessionCookie, res.Session.ID, int(h.cfg.SessionTTL.Seconds()), authorizePath, "", secure, true)
	case res.ClearSession:
		c.SetCookie(h.cfg.SessionCookie, "", -1, authorizePath, "", secure, true)
	}

	if res.RedirectURL != "" {
		c.Redirect(http.StatusFound, res.RedirectURL)
		return
	}
	c.HTML(http.StatusOK, res.View, res.Data)
}
