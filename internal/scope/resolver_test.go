package scope_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/repository"
	"github.com/smallbiznis/authbox/internal/scope"
)

var clientScopes = []domain.OauthScope{
	{ID: "1", Scope: "some/scope"},
	{ID: "2", Scope: "another/scope"},
	{ID: "3", Scope: "third"},
}

func TestFilter(t *testing.T) {
	cases := []struct {
		name      string
		requested string
		want      []string
	}{
		{"empty", "", []string{}},
		{"blank", "   ", []string{}},
		{"subset sorted", "some/scope another/scope", []string{"another/scope", "some/scope"}},
		{"single", "third", []string{"third"}},
		{"duplicates", "third third", []string{"third"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scope.Filter(tc.requested, clientScopes)
			require.NoError(t, err)
			require.Equal(t, tc.want, scope.Names(got))
		})
	}
}

func TestFilterUnknownScope(t *testing.T) {
	_, err := scope.Filter("some/scope unknown/scope", clientScopes)
	require.ErrorIs(t, err, oauth.ErrInvalidScope)
}

func TestResolverUsesClientAssignments(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryScopeRepo()
	for _, s := range clientScopes {
		require.NoError(t, repo.Create(ctx, s))
	}
	require.NoError(t, repo.AssignToClient(ctx, "c1", "1"))

	resolver := scope.NewResolver(repo)
	client := domain.OauthClient{ID: "c1", OrganizationID: "o1"}

	got, err := resolver.Resolve(ctx, "some/scope", client)
	require.NoError(t, err)
	require.Equal(t, []string{"some/scope"}, got)

	_, err = resolver.Resolve(ctx, "third", client)
	require.ErrorIs(t, err, oauth.ErrInvalidScope)
	require.Equal(t, 400, oauth.Status(err))

	got, err = resolver.Resolve(ctx, "", client)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestJoin(t *testing.T) {
	require.Equal(t, "a b", scope.Join([]string{"a", "b"}))
	require.Equal(t, "", scope.Join(nil))
}
