package org_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/org"
	"github.com/smallbiznis/authbox/internal/repository"
)

func TestPrefix(t *testing.T) {
	cases := []struct {
		host, base, want string
	}{
		{"acme.auth.example.com", "auth.example.com", "acme"},
		{"acme.auth.example.com:8443", "auth.example.com", "acme"},
		{"ACME.Auth.Example.com", "auth.example.com", "acme"},
		{"127.0.0.1:8080", "auth.example.com", "127.0.0.1"},
		{"[::1]:8080", "auth.example.com", "::1"},
		{"localhost.", "", "localhost"},
		{"acme.localhost", "localhost", "acme"},
		{"other.example.org", "auth.example.com", "other.example.org"},
	}
	for _, tc := range cases {
		t.Run(tc.host, func(t *testing.T) {
			require.Equal(t, tc.want, org.Prefix(tc.host, tc.base))
		})
	}
}

func TestResolverResolve(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryOrganizationRepo()
	require.NoError(t, repo.Create(ctx, domain.Organization{ID: "org-1", DomainPrefix: "acme", Enabled: true}))
	require.NoError(t, repo.Create(ctx, domain.Organization{ID: "org-2", DomainPrefix: "closed", Enabled: false}))

	resolver := org.NewResolver(repo, config.Config{BaseDomain: "auth.example.com"}, zap.NewNop())

	got, err := resolver.Resolve(ctx, "acme.auth.example.com:8080")
	require.NoError(t, err)
	require.Equal(t, "org-1", got.ID)

	_, err = resolver.Resolve(ctx, "closed.auth.example.com")
	require.ErrorIs(t, err, oauth.ErrInvalidRequest)
	require.Equal(t, "Domain prefix unknown: closed", oauth.Message(err))

	_, err = resolver.Resolve(ctx, "127.0.0.1")
	require.ErrorIs(t, err, oauth.ErrInvalidRequest)
	require.Equal(t, "Domain prefix unknown: 127.0.0.1", oauth.Message(err))
}
