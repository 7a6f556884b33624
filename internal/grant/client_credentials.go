package grant

import (
	"context"
	"net/http"

	"github.com/smallbiznis/authbox/internal/credentials"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/scope"
	"github.com/smallbiznis/authbox/internal/token"
)

// ClientCredentials issues an access token to the client itself.
type ClientCredentials struct {
	clients *credentials.Parser
	scopes  *scope.Resolver
	minter  *token.Minter
}

func NewClientCredentials(clients *credentials.Parser, scopes *scope.Resolver, minter *token.Minter) *ClientCredentials {
	return &ClientCredentials{clients: clients, scopes: scopes, minter: minter}
}

func (p *ClientCredentials) GrantType() domain.GrantType { return domain.GrantClientCredentials }

func (p *ClientCredentials) Process(ctx context.Context, org domain.Organization, r *http.Request) (*token.Response, error) {
	client, err := authenticate(ctx, p.clients, org, r, p.GrantType())
	if err != nil {
		return nil, err
	}
	scopes, err := p.scopes.Resolve(ctx, r.FormValue("scope"), client)
	if err != nil {
		return nil, err
	}
	return p.minter.Mint(ctx, token.Request{
		Organization: org,
		Client:       client,
		Scopes:       scopes,
		GrantType:    p.GrantType(),
	})
}
