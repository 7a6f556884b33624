package grant

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/codec"
	"github.com/smallbiznis/authbox/internal/credentials"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/repository"
	"github.com/smallbiznis/authbox/internal/token"
)

// AuthorizationCode redeems a code issued by the authorize flow.
type AuthorizationCode struct {
	clients *credentials.Parser
	tokens  repository.TokenRepository
	users   repository.UserRepository
	minter  *token.Minter
	clock   clock.Clock
}

func NewAuthorizationCode(clients *credentials.Parser, tokens repository.TokenRepository, users repository.UserRepository, minter *token.Minter, clk clock.Clock) *AuthorizationCode {
	return &AuthorizationCode{clients: clients, tokens: tokens, users: users, minter: minter, clock: clk}
}

func (p *AuthorizationCode) GrantType() domain.GrantType { return domain.GrantAuthorizationCode }

func (p *AuthorizationCode) Process(ctx context.Context, org domain.Organization, r *http.Request) (*token.Response, error) {
	client, err := authenticate(ctx, p.clients, org, r, p.GrantType())
	if err != nil {
		return nil, err
	}
	f := fields(org, client)

	value := r.FormValue("code")
	if value == "" {
		return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Request missing code")
	}

	code, err := p.tokens.GetByHash(ctx, codec.Hash(value))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ctx, f, oauth.ErrInvalidToken, "Authorization code not found")
		}
		return nil, fmt.Errorf("load authorization code: %w", err)
	}
	f.TokenID = code.ID

	switch {
	case code.TokenType != domain.TokenTypeAuthorizationCode:
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Token type '%s' is not an authorization code", code.TokenType)
	case code.OrganizationID != org.ID:
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Authorization code organization does not match request organization")
	case code.ClientID != client.ID:
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Authorization code was issued to a different client")
	case code.Linked():
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Authorization code was already used, linked token id='%s'", code.LinkedTokenID)
	case code.Expired(p.clock.Now()):
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Authorization code expired at %s", code.Expiration)
	case code.UserID == "":
		return nil, reject(ctx, f, oauth.ErrUnauthorized, "Authorization code has no user attached")
	}

	user, err := p.users.GetByID(ctx, code.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ctx, f, oauth.ErrUnauthorized, "Oauth2 user not found by id='%s'", code.UserID)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Enabled || user.OrganizationID != org.ID {
		return nil, reject(ctx, f, oauth.ErrUnauthorized, "Oauth2 user id='%s' is disabled or belongs to another organization", user.ID)
	}

	return p.minter.Mint(ctx, token.Request{
		Organization: org,
		Client:       client,
		User:         &user,
		Scopes:       code.Scopes,
		GrantType:    p.GrantType(),
		Redeems:      code.ID,
	})
}
