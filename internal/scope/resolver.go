// Package scope narrows a requested scope string to the scopes a client carries.
package scope

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/repository"
)

// Parse splits a space separated scope parameter.
func Parse(raw string) []string {
	return strings.Fields(raw)
}

// Join renders scope names as an OAuth2 scope parameter.
func Join(names []string) string {
	return strings.Join(names, " ")
}

// Names extracts the scope strings.
func Names(scopes []domain.OauthScope) []string {
	names := make([]string, 0, len(scopes))
	for _, s := range scopes {
		names = append(names, s.Scope)
	}
	return names
}

// Filter returns the client scopes named in requested, sorted by scope string.
// An empty request yields an empty result; any unknown name fails with
// oauth.ErrInvalidScope.
func Filter(requested string, clientScopes []domain.OauthScope) ([]domain.OauthScope, error) {
	wanted := Parse(requested)
	if len(wanted) == 0 {
		return []domain.OauthScope{}, nil
	}

	byName := make(map[string]domain.OauthScope, len(clientScopes))
	for _, s := range clientScopes {
		byName[s.Scope] = s
	}

	seen := make(map[string]struct{}, len(wanted))
	res := make([]domain.OauthScope, 0, len(wanted))
	for _, name := range wanted {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", oauth.ErrInvalidScope, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Scope < res[j].Scope })
	return res, nil
}

// Resolver loads client scopes and filters requests against them.
type Resolver struct {
	scopes repository.ScopeRepository
}

func NewResolver(scopes repository.ScopeRepository) *Resolver {
	return &Resolver{scopes: scopes}
}

// ClientScopes lists every scope assigned to the client.
func (r *Resolver) ClientScopes(ctx context.Context, clientID string) ([]domain.OauthScope, error) {
	scopes, err := r.scopes.ListByClientID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list client scopes: %w", err)
	}
	return scopes, nil
}

// Resolve returns the sorted scope names granted for requested.
func (r *Resolver) Resolve(ctx context.Context, requested string, client domain.OauthClient) ([]string, error) {
	scopes, err := r.ResolveScopes(ctx, requested, client)
	if err != nil {
		return nil, err
	}
	return Names(scopes), nil
}

// ResolveScopes is Resolve keeping the full scope records, for consent pages.
func (r *Resolver) ResolveScopes(ctx context.Context, requested string, client domain.OauthClient) ([]domain.OauthScope, error) {
	if len(Parse(requested)) == 0 {
		return []domain.OauthScope{}, nil
	}
	clientScopes, err := r.ClientScopes(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	resolved, err := Filter(requested, clientScopes)
	if err != nil {
		accesslog.Record(ctx, accesslog.Fields{
			OrganizationID: client.OrganizationID,
			ClientID:       client.ID,
			Error:          oauth.ErrInvalidScope.Error(),
			StatusCode:     400,
		}, "Requested scope='%s' is not found in Oauth2 client scopes=[%s]", requested, Join(Names(clientScopes)))
		return nil, oauth.New(oauth.ErrInvalidScope, "")
	}
	return resolved, nil
}
