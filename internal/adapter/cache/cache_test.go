package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/adapter/cache"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/repository"
)

func newRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisStore(client, "authbox:"), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute))
	require.True(t, mr.Exists("authbox:k"))

	var got map[string]string
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", got["a"])

	mr.FastForward(2 * time.Minute)
	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Delete(ctx, "missing"))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Unix(1700000000, 0))
	store := cache.NewMemoryStore(clk)

	require.NoError(t, store.Set(ctx, "k", "v", time.Second))
	var got string
	found, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", got)

	clk.Advance(time.Second)
	found, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, found)
}

type countingOrgs struct {
	repository.OrganizationRepository
	calls int
}

func (c *countingOrgs) GetByDomainPrefix(ctx context.Context, prefix string) (domain.Organization, error) {
	c.calls++
	return c.OrganizationRepository.GetByDomainPrefix(ctx, prefix)
}

func TestOrganizationsReadThrough(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	inner := &countingOrgs{OrganizationRepository: repository.NewMemoryOrganizationRepo()}
	orgs := cache.NewOrganizations(inner, store, time.Minute, zap.NewNop())

	_, err := orgs.GetByDomainPrefix(ctx, "acme")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, orgs.Create(ctx, domain.Organization{ID: "o1", DomainPrefix: "acme", Enabled: true}))
	for i := 0; i < 3; i++ {
		org, err := orgs.GetByDomainPrefix(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, "o1", org.ID)
	}
	require.Equal(t, 2, inner.calls)
}

func TestTokensLinkEvictsCachedRow(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	tokens := cache.NewTokens(repository.NewMemoryTokenRepo(), store, time.Minute, zap.NewNop())

	require.NoError(t, tokens.Insert(ctx, domain.OauthToken{ID: "t1", Hash: "h1", TokenType: domain.TokenTypeRefresh}))
	tok, err := tokens.GetByHash(ctx, "h1")
	require.NoError(t, err)
	require.False(t, tok.Linked())

	require.NoError(t, tokens.LinkToken(ctx, "t1", "t2"))
	tok, err = tokens.GetByHash(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, "t2", tok.LinkedTokenID)

	require.ErrorIs(t, tokens.LinkToken(ctx, "t1", "t3"), repository.ErrAlreadyLinked)
}

func TestStoreFailureFallsBackToRepository(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	users := repository.NewMemoryUserRepo()
	require.NoError(t, users.Create(ctx, domain.OauthUser{ID: "u1", OrganizationID: "o1", Username: "alice"}))
	cached := cache.NewUsers(users, store, time.Minute, zap.NewNop())

	mr.Close()
	user, err := cached.GetByUsername(ctx, "o1", "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
}
