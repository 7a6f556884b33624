package authorize_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/adapter/cache"
	"github.com/smallbiznis/authbox/internal/authorize"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/codec"
	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/credentials"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/password"
	"github.com/smallbiznis/authbox/internal/repository"
	"github.com/smallbiznis/authbox/internal/scope"
	"github.com/smallbiznis/authbox/internal/token"
	"github.com/smallbiznis/authbox/internal/totp"
)

const callback = "https://app.example.com/callback"

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	flow   *authorize.Flow
	tokens *repository.MemoryTokenRepo
	clock  *clock.Manual
	org    domain.Organization
	secret string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewManual(start)

	clients := repository.NewMemoryClientRepo()
	scopes := repository.NewMemoryScopeRepo()
	users := repository.NewMemoryUserRepo()
	tokens := repository.NewMemoryTokenRepo()

	org := domain.Organization{ID: "org-1", Name: "Acme", DomainPrefix: "acme", Enabled: true}
	client := domain.OauthClient{
		ID:             "client-1",
		OrganizationID: org.ID,
		Secret:         "s3cret",
		Enabled:        true,
		TokenFormat:    domain.TokenFormatStandard,
		Expiration:     time.Hour,
		GrantTypes:     []domain.GrantType{domain.GrantAuthorizationCode},
		RedirectURLs:   []string{callback},
	}
	require.NoError(t, clients.Create(ctx, client))
	for _, s := range []domain.OauthScope{
		{ID: "s1", OrganizationID: org.ID, Scope: "some/scope", Description: "Some"},
		{ID: "s2", OrganizationID: org.ID, Scope: "another/scope", Description: "Another"},
	} {
		require.NoError(t, scopes.Create(ctx, s))
		require.NoError(t, scopes.AssignToClient(ctx, client.ID, s.ID))
	}

	hash, err := password.Hash("hunter2")
	require.NoError(t, err)
	const secret = "JBSWY3DPEHPK3PXP"
	require.NoError(t, users.Create(ctx, domain.OauthUser{ID: "u1", OrganizationID: org.ID, Username: "alice", Password: hash, Enabled: true}))
	require.NoError(t, users.Create(ctx, domain.OauthUser{ID: "u2", OrganizationID: org.ID, Username: "bob", Password: hash, Enabled: true, Using2FA: true, Secret: secret}))
	require.NoError(t, users.Create(ctx, domain.OauthUser{ID: "u3", OrganizationID: org.ID, Username: "carol", Password: hash, Enabled: false}))

	sessions := authorize.NewSessions(cache.NewMemoryStore(clk), time.Minute*15, clk)
	flow := authorize.NewFlow(
		credentials.NewParser(clients),
		scope.NewResolver(scopes),
		users,
		sessions,
		token.NewMinter(tokens, clk, node, nil),
		clk,
		config.Config{AuthorizationCodeTTL: time.Minute},
		zap.NewNop(),
	)
	return &fixture{flow: flow, tokens: tokens, clock: clk, org: org, secret: secret}
}

func params(scopeParam string) authorize.Params {
	return authorize.Params{
		ResponseType: "code",
		ClientID:     "client-1",
		RedirectURI:  callback,
		State:        "xyz",
		Scope:        scopeParam,
	}
}

func TestParamsFromRequest(t *testing.T) {
	body := "client_id=abc&scope=a%2Fread&scope=b%2Fwrite"
	req := httptest.NewRequest(http.MethodPost, "/oauth/authorize/finish?state=xyz&response_type=code", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p, err := authorize.ParamsFromRequest(req)
	require.NoError(t, err)
	require.Equal(t, "abc", p.ClientID)
	require.Equal(t, "xyz", p.State)
	require.Equal(t, "code", p.ResponseType)
	require.Equal(t, "a/read b/write", p.Scope)

	req = httptest.NewRequest(http.MethodPost, "/oauth/authorize", strings.NewReader("client_id=abc&%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = authorize.ParamsFromRequest(req)
	require.ErrorIs(t, err, oauth.ErrInvalidRequest)
}

func TestStartRendersCredentialForm(t *testing.T) {
	f := newFixture(t)
	p := params("some/scope")
	p.State = ""

	res, err := f.flow.Start(context.Background(), f.org, p)
	require.NoError(t, err)
	require.Equal(t, authorize.ViewAuthorize, res.View)
	require.Empty(t, res.Data.ErrorMessage)
	require.NotEmpty(t, res.Data.State)
	require.Equal(t, "Acme", res.Data.OrganizationName)
	require.Equal(t, "some/scope", res.Data.Scope)
}

func TestStartRedirectMismatchRendersError(t *testing.T) {
	f := newFixture(t)
	p := params("")
	p.RedirectURI = "https://evil.example.com/callback"

	res, err := f.flow.Start(context.Background(), f.org, p)
	require.NoError(t, err)
	require.Equal(t, authorize.ViewAuthorize, res.View)
	require.Equal(t, authorize.MsgRedirectMismatch, res.Data.ErrorMessage)
}

func TestTerminalValidationFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := params("")
	p.ClientID = "unknown"
	_, err := f.flow.Start(ctx, f.org, p)
	require.ErrorIs(t, err, oauth.ErrInvalidRequest)

	p = params("")
	p.State = ""
	_, err = f.flow.SubmitCredentials(ctx, f.org, p, "alice", "hunter2", "")
	require.ErrorIs(t, err, oauth.ErrInvalidRequest)

	p = params("")
	p.ResponseType = "token"
	_, err = f.flow.Start(ctx, f.org, p)
	require.ErrorIs(t, err, oauth.ErrInvalidRequest)

	_, err = f.flow.Start(ctx, f.org, params("unknown/scope"))
	require.ErrorIs(t, err, oauth.ErrInvalidScope)
}

func TestCredentialErrorsRenderInline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitCredentials(ctx, f.org, params(""), "alice", "wrong", "")
	require.NoError(t, err)
	require.Equal(t, authorize.MsgBadCredentials, res.Data.ErrorMessage)
	require.Nil(t, res.Session)

	res, err = f.flow.SubmitCredentials(ctx, f.org, params(""), "nobody", "hunter2", "")
	require.NoError(t, err)
	require.Equal(t, authorize.MsgBadCredentials, res.Data.ErrorMessage)

	res, err = f.flow.SubmitCredentials(ctx, f.org, params(""), "carol", "hunter2", "")
	require.NoError(t, err)
	require.Equal(t, authorize.MsgAccessDenied, res.Data.ErrorMessage)
}

func TestConsentThenFinishRedirectsWithCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitCredentials(ctx, f.org, params("some/scope another/scope"), "alice", "hunter2", "")
	require.NoError(t, err)
	require.Equal(t, authorize.ViewScopes, res.View)
	require.Len(t, res.Data.ScopeList, 2)
	require.NotNil(t, res.Session)

	res, err = f.flow.Finish(ctx, f.org, params("some/scope"), res.Session.ID)
	require.NoError(t, err)
	require.True(t, res.ClearSession)

	target, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "app.example.com", target.Host)
	require.Equal(t, "xyz", target.Query().Get("state"))
	code := target.Query().Get("code")
	require.Len(t, code, 64)

	row, err := f.tokens.GetByHash(ctx, codec.Hash(code))
	require.NoError(t, err)
	require.Equal(t, domain.TokenTypeAuthorizationCode, row.TokenType)
	require.Equal(t, []string{"some/scope"}, row.Scopes)
	require.Equal(t, "u1", row.UserID)
	require.Equal(t, start.Add(time.Minute), row.Expiration)
}

func TestNoScopesRedirectsImmediately(t *testing.T) {
	f := newFixture(t)

	res, err := f.flow.SubmitCredentials(context.Background(), f.org, params(""), "alice", "hunter2", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.RedirectURL)
	require.Nil(t, res.Session)
}

func TestFinishWithoutSession(t *testing.T) {
	f := newFixture(t)

	res, err := f.flow.Finish(context.Background(), f.org, params(""), "missing")
	require.NoError(t, err)
	require.Equal(t, authorize.ViewAuthorize, res.View)
	require.Equal(t, authorize.MsgBadCredentials, res.Data.ErrorMessage)
}

func TestSessionIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitCredentials(ctx, f.org, params("some/scope"), "alice", "hunter2", "")
	require.NoError(t, err)
	id := res.Session.ID

	res, err = f.flow.Finish(ctx, f.org, params("some/scope"), id)
	require.NoError(t, err)
	require.NotEmpty(t, res.RedirectURL)

	res, err = f.flow.Finish(ctx, f.org, params("some/scope"), id)
	require.NoError(t, err)
	require.Equal(t, authorize.MsgBadCredentials, res.Data.ErrorMessage)
}

func TestTwoFactorStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.flow.SubmitCredentials(ctx, f.org, params("some/scope"), "bob", "hunter2", "")
	require.NoError(t, err)
	require.Equal(t, authorize.ViewTwoFactor, res.View)
	id := res.Session.ID

	_, err = f.flow.Finish(ctx, f.org, params("some/scope"), id)
	require.ErrorIs(t, err, oauth.ErrInvalidRequest)
	require.Equal(t, "2FA verification code session attribute not found", oauth.Message(err))

	res, err = f.flow.SubmitSecondFactor(ctx, f.org, params("some/scope"), "000000", id)
	require.NoError(t, err)
	require.Equal(t, authorize.ViewTwoFactor, res.View)
	require.Equal(t, authorize.MsgBadCode, res.Data.ErrorMessage)

	code, err := totp.Generate(f.secret, f.clock.Now())
	require.NoError(t, err)
	res, err = f.flow.SubmitSecondFactor(ctx, f.org, params("some/scope"), code, id)
	require.NoError(t, err)
	require.Equal(t, authorize.ViewScopes, res.View)

	res, err = f.flow.Finish(ctx, f.org, params("some/scope"), id)
	require.NoError(t, err)
	require.NotEmpty(t, res.RedirectURL)
}

func TestSessionsExpireInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	clk := clock.NewManual(start)
	sessions := authorize.NewSessions(cache.NewRedisStore(client, "authbox:"), time.Minute, clk)
	ctx := context.Background()

	sess := sessions.New("org-1", "client-1")
	sess.Username = "alice"
	sess.PasswordVerified = true
	require.NoError(t, sessions.Save(ctx, sess))

	got, ok, err := sessions.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", got.Username)
	require.True(t, got.PasswordVerified)

	mr.FastForward(2 * time.Minute)
	_, ok, err = sessions.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, ok)
}
