// Package introspect validates presented access tokens and reports their
// claims.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/codec"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/jwt"
	"github.com/smallbiznis/authbox/internal/repository"
	"github.com/smallbiznis/authbox/internal/scope"
)

// Claim names used in introspection and user info responses.
const (
	ClaimActive         = "active"
	ClaimExpiresIn      = "expires_in"
	ClaimExpires        = "expires"
	ClaimScope          = "scope"
	ClaimClientID       = "client_id"
	ClaimOrganizationID = "organization_id"
	ClaimUserID         = "user_id"
	ClaimUsername       = "username"
	ClaimMetadata       = "metadata"
)

// TokenFromRequest returns the access_token or token parameter, falling back
// to a Bearer authorization header.
func TokenFromRequest(r *http.Request) string {
	if v := r.FormValue("access_token"); v != "" {
		return v
	}
	if v := r.FormValue("token"); v != "" {
		return v
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Resolver answers introspection and user info queries.
type Resolver struct {
	tokens  repository.TokenRepository
	clients repository.ClientRepository
	users   repository.UserRepository
	clock   clock.Clock
}

func NewResolver(tokens repository.TokenRepository, clients repository.ClientRepository, users repository.UserRepository, clk clock.Clock) *Resolver {
	return &Resolver{tokens: tokens, clients: clients, users: users, clock: clk}
}

// Introspect validates presented against org and, when caller is set, the
// calling client. An expired token yields {active:false} rather than an error.
func (r *Resolver) Introspect(ctx context.Context, org domain.Organization, presented string, caller *domain.OauthClient) (map[string]any, error) {
	f := accesslog.Fields{OrganizationID: org.ID}
	accesslog.Record(ctx, f, "Validating Oauth2 access token details")

	if presented == "" {
		return nil, unauthorized(ctx, f, "Oauth2 access token is not provided")
	}

	hash := codec.Hash(presented)
	row, err := r.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized(ctx, f, "Unable to find Oauth2 token by hash='%s'", hash)
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	f.TokenID = row.ID
	f.ClientID = row.ClientID

	if row.TokenType != domain.TokenTypeAccess {
		return nil, unauthorized(ctx, f, "Oauth2 token is not an access token, type='%s'", row.TokenType)
	}
	if row.OrganizationID != org.ID {
		return nil, unauthorized(ctx, f, "Oauth2 token organization id='%s' does not match request organization id='%s'", row.OrganizationID, org.ID)
	}
	accesslog.Record(ctx, f, "Oauth2 token validated")

	client, err := r.clients.GetByID(ctx, row.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized(ctx, f, "Unable to find Oauth2 client by client id='%s'", row.ClientID)
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if !client.Enabled {
		return nil, unauthorized(ctx, f, "Oauth2 client is disabled. client id='%s'", client.ID)
	}
	if caller != nil && caller.ID != row.ClientID {
		return nil, unauthorized(ctx, f, "Oauth2 client provided (client id: %s) does not correspond to Oauth2 client associated with provided token (client id: %s)", caller.ID, row.ClientID)
	}
	if client.OrganizationID != org.ID {
		return nil, unauthorized(ctx, f, "Oauth2 client organization id='%s' does not match request organization id='%s'", client.OrganizationID, org.ID)
	}

	if isJWT(presented) {
		return r.jwtDetails(ctx, f, client, row, presented)
	}
	return r.standardDetails(ctx, f, row)
}

func (r *Resolver) jwtDetails(ctx context.Context, f accesslog.Fields, client domain.OauthClient, row domain.OauthToken, presented string) (map[string]any, error) {
	if client.PublicKey == "" {
		f.Error = oauth.ErrInvalidRequest.Error()
		f.StatusCode = http.StatusBadRequest
		accesslog.Record(ctx, f, "Client with oauth_client_id='%s' does not have public key to validate JWT token", client.ID)
		return nil, oauth.New(oauth.ErrInvalidRequest, "")
	}
	key, err := codec.ParsePublicKey(client.PublicKey)
	if err != nil {
		f.Error = oauth.ErrInvalidRequest.Error()
		f.StatusCode = http.StatusBadRequest
		accesslog.Record(ctx, f, "Unable to parse public key: %s", err)
		return nil, oauth.New(oauth.ErrInvalidRequest, err.Error())
	}

	now := r.clock.Now()
	std, custom, err := jwt.Validate(key, presented, now)
	if errors.Is(err, jwt.ErrExpired) {
		accesslog.Record(ctx, f, "Oauth2 JWT token is expired")
		return inactive(), nil
	}
	if err != nil {
		return nil, unauthorized(ctx, f, "Unable to verify JWT token: %s", err)
	}
	accesslog.Record(ctx, f, "Successfully validated JWT token and signature")

	if custom.OrganizationID != row.OrganizationID {
		return nil, unauthorized(ctx, f, "Oauth2 token id='%s' does not match JWT organization id='%s'", row.ID, custom.OrganizationID)
	}

	exp := std.Expiry.Time()
	result := active(now, exp)
	result[ClaimScope] = custom.Scope
	result[ClaimClientID] = std.Subject
	result[ClaimOrganizationID] = custom.OrganizationID
	if custom.UserID != "" {
		if err := r.attachUser(ctx, f, result, custom.UserID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *Resolver) standardDetails(ctx context.Context, f accesslog.Fields, row domain.OauthToken) (map[string]any, error) {
	now := r.clock.Now()
	if row.Expired(now) {
		accesslog.Record(ctx, f, "Oauth2 token is expired")
		return inactive(), nil
	}
	result := active(now, row.Expiration)
	if len(row.Scopes) > 0 {
		result[ClaimScope] = scope.Join(row.Scopes)
	}
	result[ClaimClientID] = row.ClientID
	result[ClaimOrganizationID] = row.OrganizationID
	if row.UserID != "" {
		if err := r.attachUser(ctx, f, result, row.UserID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *Resolver) attachUser(ctx context.Context, f accesslog.Fields, result map[string]any, userID string) error {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return unauthorized(ctx, f, "Oauth2 user not found by id='%s'", userID)
		}
		return fmt.Errorf("load user: %w", err)
	}
	if !user.Enabled {
		return unauthorized(ctx, f, "Oauth2 user disabled. id='%s'", user.ID)
	}
	result[ClaimUserID] = user.ID
	result[ClaimUsername] = user.Username
	result[ClaimMetadata] = user.MetadataValue()
	return nil
}

// UserInfo returns the profile of the user an access token was issued to.
func (r *Resolver) UserInfo(ctx context.Context, org domain.Organization, presented string) (map[string]any, error) {
	f := accesslog.Fields{OrganizationID: org.ID}
	accesslog.Record(ctx, f, "Processing user info request")

	if presented == "" {
		return nil, unauthorized(ctx, f, "Access token is not provided")
	}

	hash := codec.Hash(presented)
	row, err := r.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalidToken(ctx, f, "Access token hash='%s' not found", hash)
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	f.TokenID = row.ID
	f.ClientID = row.ClientID

	switch {
	case row.TokenType != domain.TokenTypeAccess:
		return nil, invalidToken(ctx, f, "Provided token is not ACCESS_TOKEN. type='%s'", row.TokenType)
	case row.OrganizationID != org.ID:
		return nil, invalidToken(ctx, f, "Token does not belong to organization id='%s'", org.ID)
	case row.Expired(r.clock.Now()):
		return nil, invalidToken(ctx, f, "Access token expired at %s", row.Expiration)
	case row.UserID == "":
		return nil, invalidToken(ctx, f, "Access token hash='%s' is not linked to a oauth user", hash)
	}

	user, err := r.users.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized(ctx, f, "Oauth2 user not found by id='%s'", row.UserID)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Enabled {
		return nil, unauthorized(ctx, f, "Oauth2 user is disabled. id='%s'", user.ID)
	}

	client, err := r.clients.GetByID(ctx, row.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthorized(ctx, f, "Oauth2 client not found by id='%s'", row.ClientID)
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if !client.Enabled {
		return nil, unauthorized(ctx, f, "Oauth2 client is disabled. id='%s'", client.ID)
	}

	accesslog.Record(ctx, f, "User info request finished")
	return map[string]any{
		"id":                user.ID,
		ClaimUsername:       user.Username,
		ClaimOrganizationID: user.OrganizationID,
		ClaimMetadata:       user.MetadataValue(),
	}, nil
}

// isJWT reports whether value has the two separators of a compact JWS.
func isJWT(value string) bool {
	first := strings.IndexByte(value, '.')
	return first > 0 && strings.LastIndexByte(value, '.') > first
}

func inactive() map[string]any {
	return map[string]any{ClaimActive: false}
}

func active(now, exp time.Time) map[string]any {
	return map[string]any{
		ClaimActive:    true,
		ClaimExpiresIn: int64(math.Floor(exp.Sub(now).Seconds())),
		ClaimExpires:   exp.Unix(),
	}
}

func unauthorized(ctx context.Context, f accesslog.Fields, format string, args ...any) error {
	return fail(ctx, f, oauth.ErrUnauthorized, format, args...)
}

func invalidToken(ctx context.Context, f accesslog.Fields, format string, args ...any) error {
	return fail(ctx, f, oauth.ErrInvalidToken, format, args...)
}

func fail(ctx context.Context, f accesslog.Fields, kind error, format string, args ...any) error {
	f.Error = kind.Error()
	f.StatusCode = oauth.Status(kind)
	accesslog.Record(ctx, f, format, args...)
	return oauth.New(kind, "")
}
