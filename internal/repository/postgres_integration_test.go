//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/repository"
)

func TestPostgresRepositories(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, repository.Migrate(ctx, pool))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	orgID := node.Generate().String()
	clientID := node.Generate().String()

	orgs := repository.NewPostgresOrganizationRepo(pool)
	require.NoError(t, orgs.Create(ctx, domain.Organization{ID: orgID, Name: "it", DomainPrefix: "it-" + orgID, Enabled: true}))
	org, err := orgs.GetByDomainPrefix(ctx, "it-"+orgID)
	require.NoError(t, err)
	require.Equal(t, orgID, org.ID)

	clients := repository.NewPostgresClientRepo(pool)
	require.NoError(t, clients.Create(ctx, domain.OauthClient{
		ID:             clientID,
		OrganizationID: orgID,
		Secret:         "secret",
		GrantTypes:     []domain.GrantType{domain.GrantClientCredentials},
		Enabled:        true,
		TokenFormat:    domain.TokenFormatStandard,
		Expiration:     time.Hour,
	}))
	client, err := clients.GetByID(ctx, clientID)
	require.NoError(t, err)
	require.Equal(t, time.Hour, client.Expiration)
	require.True(t, client.AllowsGrant(domain.GrantClientCredentials))

	tokens := repository.NewPostgresTokenRepo(pool)
	tokenID := node.Generate().String()
	require.NoError(t, tokens.Insert(ctx, domain.OauthToken{
		ID:             tokenID,
		CreateTime:     time.Now().UTC(),
		Hash:           "hash-" + tokenID,
		OrganizationID: orgID,
		ClientID:       clientID,
		Expiration:     time.Now().Add(time.Minute).UTC(),
		Scopes:         []string{"a"},
		TokenType:      domain.TokenTypeAuthorizationCode,
	}))
	require.NoError(t, tokens.LinkToken(ctx, tokenID, "next"))
	require.ErrorIs(t, tokens.LinkToken(ctx, tokenID, "again"), repository.ErrAlreadyLinked)

	_, err = tokens.GetByHash(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
