package bootstrap_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/bootstrap"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/codec"
	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/password"
	"github.com/smallbiznis/authbox/internal/repository"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewManual(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	repos := bootstrap.Repositories{
		Organizations: repository.NewMemoryOrganizationRepo(),
		Clients:       repository.NewMemoryClientRepo(),
		Scopes:        repository.NewMemoryScopeRepo(),
		Users:         repository.NewMemoryUserRepo(),
	}
	seed := config.Seed{
		Enabled:      true,
		DomainPrefix: "acme",
		OrgName:      "Acme",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		TokenFormat:  "JWT",
		RedirectURL:  "https://app.example.com/callback",
		Scopes:       []string{"read", "write"},
		Username:     "alice",
		Password:     "hunter2",
	}

	require.NoError(t, bootstrap.Seed(ctx, seed, repos, node, clk, zap.NewNop()))
	require.NoError(t, bootstrap.Seed(ctx, seed, repos, node, clk, zap.NewNop()))

	org, err := repos.Organizations.GetByDomainPrefix(ctx, "acme")
	require.NoError(t, err)
	require.True(t, org.Enabled)

	client, err := repos.Clients.GetByID(ctx, "client-1")
	require.NoError(t, err)
	require.Equal(t, org.ID, client.OrganizationID)
	require.Equal(t, domain.TokenFormatJWT, client.TokenFormat)
	require.True(t, client.AllowsGrant(domain.GrantAuthorizationCode))
	_, err = codec.ParsePublicKey(client.PublicKey)
	require.NoError(t, err)

	scopes, err := repos.Scopes.ListByClientID(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, scopes, 2)

	user, err := repos.Users.GetByUsername(ctx, org.ID, "alice")
	require.NoError(t, err)
	ok, err := password.Verify("hunter2", user.Password)
	require.NoError(t, err)
	require.True(t, ok)
}
