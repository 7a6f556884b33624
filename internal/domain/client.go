package domain

import (
	"strings"
	"time"
)

// TokenFormat selects how access tokens are rendered for a client.
type TokenFormat string

const (
	TokenFormatJWT      TokenFormat = "JWT"
	TokenFormatStandard TokenFormat = "STANDARD"
)

// GrantType enumerates the OAuth2 grants served by the token endpoint.
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

// OauthClient represents a registered application permitted to request tokens.
type OauthClient struct {
	ID                string
	OrganizationID    string
	Secret            string
	Description       string
	GrantTypes        []GrantType
	RedirectURLs      []string
	Enabled           bool
	TokenFormat       TokenFormat
	Expiration        time.Duration
	RefreshExpiration time.Duration
	PrivateKey        string
	PublicKey         string
	CreateTime        time.Time
}

func (c OauthClient) AllowsGrant(g GrantType) bool {
	for _, allowed := range c.GrantTypes {
		if allowed == g {
			return true
		}
	}
	return false
}

// AllowsRedirect reports whether target starts with one of the registered redirect URLs.
func (c OauthClient) AllowsRedirect(target string) bool {
	if target == "" {
		return false
	}
	for _, prefix := range c.RedirectURLs {
		if prefix != "" && strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}
