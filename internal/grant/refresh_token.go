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

// RefreshToken rotates a refresh token: the presented one is spent and a new
// pair is returned.
type RefreshToken struct {
	clients *credentials.Parser
	tokens  repository.TokenRepository
	users   repository.UserRepository
	minter  *token.Minter
	clock   clock.Clock
}

func NewRefreshToken(clients *credentials.Parser, tokens repository.TokenRepository, users repository.UserRepository, minter *token.Minter, clk clock.Clock) *RefreshToken {
	return &RefreshToken{clients: clients, tokens: tokens, users: users, minter: minter, clock: clk}
}

func (p *RefreshToken) GrantType() domain.GrantType { return domain.GrantRefreshToken }

func (p *RefreshToken) Process(ctx context.Context, org domain.Organization, r *http.Request) (*token.Response, error) {
	client, err := authenticate(ctx, p.clients, org, r, p.GrantType())
	if err != nil {
		return nil, err
	}
	f := fields(org, client)

	value := r.FormValue("refresh_token")
	if value == "" {
		return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Request missing refresh_token")
	}

	refresh, err := p.tokens.GetByHash(ctx, codec.Hash(value))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ctx, f, oauth.ErrInvalidToken, "Refresh token not found")
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	f.TokenID = refresh.ID

	switch {
	case refresh.TokenType != domain.TokenTypeRefresh:
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Token type '%s' is not a refresh token", refresh.TokenType)
	case refresh.OrganizationID != org.ID:
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Refresh token organization does not match request organization")
	case refresh.ClientID != client.ID:
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Refresh token was issued to a different client")
	case refresh.Expired(p.clock.Now()):
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Refresh token expired at %s", refresh.Expiration)
	case refresh.Linked():
		return nil, reject(ctx, f, oauth.ErrInvalidToken, "Refresh token was already used, linked token id='%s'", refresh.LinkedTokenID)
	}

	user, err := p.users.GetByID(ctx, refresh.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Oauth2 user not found by id='%s'", refresh.UserID)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.OrganizationID != org.ID {
		return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Oauth2 user organization does not match request organization")
	}

	return p.minter.Mint(ctx, token.Request{
		Organization: org,
		Client:       client,
		User:         &user,
		Scopes:       refresh.Scopes,
		GrantType:    p.GrantType(),
		Redeems:      refresh.ID,
	})
}
