package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/codec"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/http/respond"
	"github.com/smallbiznis/authbox/internal/jwt"
)

// ServerMetadata is the RFC 8414 authorization server document.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethods          []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValues []string `json:"token_endpoint_auth_signing_alg_values_supported"`
}

// Metadata serves the authorization server document for the request host.
func (h *Handler) Metadata(c *gin.Context) {
	if _, ok := organization(c); !ok {
		return
	}
	base := issuer(c.Request)
	c.JSON(http.StatusOK, ServerMetadata{
		Issuer:                 base,
		AuthorizationEndpoint:  base + "/oauth/authorize",
		TokenEndpoint:          base + "/oauth/token",
		IntrospectionEndpoint:  base + "/oauth/introspection",
		UserinfoEndpoint:       base + "/oauth/user",
		JWKSURI:                base + "/.well-known/jwks.json",
		ResponseTypesSupported: []string{"code"},
		GrantTypesSupported: []string{
			string(domain.GrantAuthorizationCode),
			string(domain.GrantClientCredentials),
			string(domain.GrantPassword),
			string(domain.GrantRefreshToken),
		},
		TokenEndpointAuthMethods:          []string{"client_secret_basic", "client_secret_post"},
		TokenEndpointAuthSigningAlgValues: []string{"RS384"},
	})
}

// JWKS publishes the public key a JWT client's tokens are signed with.
func (h *Handler) JWKS(c *gin.Context) {
	org, ok := organization(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	clientID := c.Query("client_id")
	if clientID == "" {
		respond.Error(c, oauth.New(oauth.ErrInvalidRequest, "client_id is required"))
		return
	}

	client, err := h.credentials.LookupClient(ctx, clientID, org)
	if err != nil {
		respond.Error(c, err)
		return
	}
	f := accesslog.Fields{OrganizationID: org.ID, ClientID: client.ID}
	if client.TokenFormat != domain.TokenFormatJWT || client.PublicKey == "" {
		accesslog.Record(ctx, f, "Oauth2 client does not sign JWT access tokens")
		respond.Error(c, oauth.New(oauth.ErrNotFound, "No signing key for client"))
		return
	}

	pub, err := codec.ParsePublicKey(client.PublicKey)
	if err != nil {
		respond.Error(c, fmt.Errorf("parse client public key: %w", err))
		return
	}
	c.JSON(http.StatusOK, jwt.JWKS(client.ID, pub))
}
