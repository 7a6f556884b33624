package grant

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/credentials"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/password"
	"github.com/smallbiznis/authbox/internal/repository"
	"github.com/smallbiznis/authbox/internal/scope"
	"github.com/smallbiznis/authbox/internal/token"
)

// Password exchanges a username and password for tokens.
type Password struct {
	clients *credentials.Parser
	scopes  *scope.Resolver
	users   repository.UserRepository
	minter  *token.Minter
	logger  *zap.Logger
}

func NewPassword(clients *credentials.Parser, scopes *scope.Resolver, users repository.UserRepository, minter *token.Minter, logger *zap.Logger) *Password {
	return &Password{clients: clients, scopes: scopes, users: users, minter: minter, logger: logger}
}

func (p *Password) GrantType() domain.GrantType { return domain.GrantPassword }

func (p *Password) Process(ctx context.Context, org domain.Organization, r *http.Request) (*token.Response, error) {
	client, err := authenticate(ctx, p.clients, org, r, p.GrantType())
	if err != nil {
		return nil, err
	}
	f := fields(org, client)

	username, plain, ok := credentials.FormPair(r, "username", "password")
	if !ok || username == "" {
		return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Request missing username/password")
	}

	user, err := p.users.GetByUsername(ctx, org.ID, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Oauth2 user not found by username='%s'", username)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.OrganizationID != org.ID {
		return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Oauth2 user organization does not match request organization")
	}
	if !user.Enabled {
		return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Oauth2 user id='%s' is disabled", user.ID)
	}
	match, err := password.Verify(plain, user.Password)
	if err != nil {
		p.logger.Warn("unusable password hash", zap.String("user_id", user.ID), zap.Error(err))
	}
	if !match {
		return nil, reject(ctx, f, oauth.ErrInvalidRequest, "Oauth2 user password does not match")
	}

	scopes, err := p.scopes.Resolve(ctx, r.FormValue("scope"), client)
	if err != nil {
		return nil, err
	}
	return p.minter.Mint(ctx, token.Request{
		Organization: org,
		Client:       client,
		User:         &user,
		Scopes:       scopes,
		GrantType:    p.GrantType(),
	})
}
