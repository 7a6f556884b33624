package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/repository"
)

func TestMemoryTokenLinkSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTokenRepo()
	require.NoError(t, repo.Insert(ctx, domain.OauthToken{
		ID:         "code-1",
		Hash:       "h1",
		TokenType:  domain.TokenTypeAuthorizationCode,
		Expiration: time.Now().Add(time.Minute),
	}))

	var wins, other atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.LinkToken(ctx, "code-1", "access-"+string(rune('a'+i)))
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, repository.ErrAlreadyLinked):
				other.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Zero(t, other.Load())

	tok, err := repo.GetByHash(ctx, "h1")
	require.NoError(t, err)
	require.True(t, tok.Linked())

	require.ErrorIs(t, repo.LinkToken(ctx, "missing", "x"), repository.ErrNotFound)
}

func TestMemoryLookups(t *testing.T) {
	ctx := context.Background()
	orgs := repository.NewMemoryOrganizationRepo()
	require.NoError(t, orgs.Create(ctx, domain.Organization{ID: "o1", DomainPrefix: "acme", Enabled: true}))
	require.Error(t, orgs.Create(ctx, domain.Organization{ID: "o2", DomainPrefix: "acme"}))

	org, err := orgs.GetByDomainPrefix(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "o1", org.ID)
	_, err = orgs.GetByDomainPrefix(ctx, "nope")
	require.ErrorIs(t, err, repository.ErrNotFound)

	users := repository.NewMemoryUserRepo()
	require.NoError(t, users.Create(ctx, domain.OauthUser{ID: "u1", OrganizationID: "o1", Username: "alice"}))
	_, err = users.GetByUsername(ctx, "o2", "alice")
	require.ErrorIs(t, err, repository.ErrNotFound)
	u, err := users.GetByUsername(ctx, "o1", "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)

	scopes := repository.NewMemoryScopeRepo()
	require.NoError(t, scopes.Create(ctx, domain.OauthScope{ID: "s2", OrganizationID: "o1", Scope: "write"}))
	require.NoError(t, scopes.Create(ctx, domain.OauthScope{ID: "s1", OrganizationID: "o1", Scope: "read"}))
	require.NoError(t, scopes.AssignToClient(ctx, "c1", "s2"))
	require.NoError(t, scopes.AssignToClient(ctx, "c1", "s1"))
	require.NoError(t, scopes.AssignToClient(ctx, "c1", "s1"))
	list, err := scopes.ListByClientID(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "read", list[0].Scope)
}
