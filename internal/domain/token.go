package domain

import "time"

// TokenType distinguishes the rows kept in the token store.
type TokenType string

const (
	TokenTypeAuthorizationCode TokenType = "AUTHORIZATION_CODE"
	TokenTypeAccess            TokenType = "ACCESS_TOKEN"
	TokenTypeRefresh           TokenType = "REFRESH_TOKEN"
)

// OauthToken persists the hash of an issued token or code, never its value.
type OauthToken struct {
	ID             string
	CreateTime     time.Time
	Hash           string
	OrganizationID string
	ClientID       string
	Expiration     time.Time
	Scopes         []string
	UserID         string
	TokenType      TokenType
	IP             string
	UserAgent      string
	RequestID      string
	LinkedTokenID  string
}

// Expired reports whether now is past the expiration instant.
func (t OauthToken) Expired(now time.Time) bool {
	return now.After(t.Expiration)
}

// Linked reports whether the token has already been redeemed.
func (t OauthToken) Linked() bool {
	return t.LinkedTokenID != ""
}
