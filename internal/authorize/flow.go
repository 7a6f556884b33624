// Package authorize drives the interactive authorization code flow: the
// credential form, the optional TOTP step, scope consent and the final
// redirect carrying the code.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/clock"
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

// Views rendered by the flow.
const (
	ViewAuthorize = "authorize"
	ViewTwoFactor = "authorize-2fa"
	ViewScopes    = "authorize-scopes"
)

// Inline messages shown on the current step.
const (
	MsgRedirectMismatch = "Client approved redirect urls do not match requested redirect_url"
	MsgBadCredentials   = "Invalid username and password combination."
	MsgAccessDenied     = "User access denied"
	MsgBadCode          = "Invalid verification code"
)

const ResponseTypeCode = "code"

// Params are the query or form fields repeated on every step.
type Params struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	State        string
	Scope        string
}

// ParamsFromRequest reads the flow fields from the query and form. Repeated
// scope fields, as submitted by the consent checkboxes, are joined. A body
// that does not parse is an invalid request.
func ParamsFromRequest(r *http.Request) (Params, error) {
	if err := r.ParseForm(); err != nil {
		accesslog.Record(r.Context(), accesslog.Fields{}, "Unable to parse authorize parameters: %v", err)
		return Params{}, oauth.New(oauth.ErrInvalidRequest, "Malformed request parameters")
	}
	return Params{
		ResponseType: r.Form.Get("response_type"),
		ClientID:     r.Form.Get("client_id"),
		RedirectURI:  r.Form.Get("redirect_uri"),
		State:        r.Form.Get("state"),
		Scope:        strings.Join(r.Form["scope"], " "),
	}, nil
}

// ViewData feeds the HTML templates.
type ViewData struct {
	OrganizationID   string
	OrganizationName string
	ResponseType     string
	ClientID         string
	RedirectURI      string
	Scope            string
	State            string
	ScopeList        []domain.OauthScope
	ErrorMessage     string
}

// Result is either a view to render or a redirect. Session is set when the
// caller must hand a new session id to the browser; ClearSession when the
// browser's session has been consumed.
type Result struct {
	View         string
	Data         ViewData
	RedirectURL  string
	Session      *Session
	ClearSession bool
}

// Flow implements each step of the authorize endpoint.
type Flow struct {
	clients  *credentials.Parser
	scopes   *scope.Resolver
	users    repository.UserRepository
	sessions *Sessions
	minter   *token.Minter
	clock    clock.Clock
	codeTTL  time.Duration
	logger   *zap.Logger
}

func NewFlow(
	clients *credentials.Parser,
	scopes *scope.Resolver,
	users repository.UserRepository,
	sessions *Sessions,
	minter *token.Minter,
	clk clock.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Flow {
	return &Flow{
		clients:  clients,
		scopes:   scopes,
		users:    users,
		sessions: sessions,
		minter:   minter,
		clock:    clk,
		codeTTL:  cfg.AuthorizationCodeTTL,
		logger:   logger.Named("authorize"),
	}
}

// step is the validated request state shared by every flow step.
type step struct {
	org    domain.Organization
	client domain.OauthClient
	params Params
	scopes []domain.OauthScope
	data   ViewData
}

func (s *step) fields() accesslog.Fields {
	return accesslog.Fields{OrganizationID: s.org.ID, ClientID: s.client.ID}
}

func (s *step) view(name string, withScopes bool, message string) *Result {
	data := s.data
	if withScopes {
		data.ScopeList = s.scopes
	}
	data.ErrorMessage = message
	return &Result{View: name, Data: data}
}

// Start renders the credential form. A missing state is generated.
func (f *Flow) Start(ctx context.Context, org domain.Organization, p Params) (*Result, error) {
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: org.ID}, "Starting Oauth2 authorization process")
	if p.State == "" {
		p.State = uuid.NewString()
	}
	st, res, err := f.prepare(ctx, org, p, false)
	if err != nil || res != nil {
		return res, err
	}
	accesslog.Record(ctx, st.fields(), "Displaying authorize HTML page")
	return st.view(ViewAuthorize, false, ""), nil
}

// SubmitCredentials checks username and password and opens a session.
func (f *Flow) SubmitCredentials(ctx context.Context, org domain.Organization, p Params, username, plain, sessionID string) (*Result, error) {
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: org.ID}, "Starting Oauth2 authorization process (validate credentials)")
	st, res, err := f.prepare(ctx, org, p, true)
	if err != nil || res != nil {
		return res, err
	}

	user, res, err := f.loadUser(ctx, st, username)
	if err != nil || res != nil {
		return res, err
	}
	match, err := password.Verify(plain, user.Password)
	if err != nil {
		f.logger.Warn("unusable password hash", zap.String("user_id", user.ID), zap.Error(err))
	}
	if !match {
		accesslog.Record(ctx, st.fields(), "Oauth2 user password does not match request password")
		return st.view(ViewAuthorize, false, MsgBadCredentials), nil
	}

	if err := f.sessions.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	sess := f.sessions.New(org.ID, st.client.ID)
	sess.UserID = user.ID
	sess.Username = user.Username
	sess.PasswordVerified = true
	if err := f.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	if user.Using2FA {
		accesslog.Record(ctx, st.fields(), "Displaying 2FA authorize HTML page")
		res = st.view(ViewTwoFactor, true, "")
	} else {
		res, err = f.next(ctx, st, sess)
		if err != nil {
			return nil, err
		}
	}
	if res.RedirectURL == "" {
		res.Session = &sess
	}
	return res, nil
}

// SubmitSecondFactor verifies the TOTP code for the session's user.
func (f *Flow) SubmitSecondFactor(ctx context.Context, org domain.Organization, p Params, code, sessionID string) (*Result, error) {
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: org.ID}, "Starting Oauth2 authorization process (2FA code verification)")
	st, res, err := f.prepare(ctx, org, p, true)
	if err != nil || res != nil {
		return res, err
	}

	sess, res, err := f.loadSession(ctx, st, sessionID)
	if err != nil || res != nil {
		return res, err
	}
	user, res, err := f.loadUser(ctx, st, sess.Username)
	if err != nil || res != nil {
		return res, err
	}
	if !sess.PasswordVerified || sess.UserID != user.ID {
		accesslog.Record(ctx, st.fields(), "Session does not carry verified credentials for username='%s'", user.Username)
		return st.view(ViewAuthorize, false, MsgBadCredentials), nil
	}

	if !totp.Verify(user.Secret, code, f.clock.Now()) {
		sess.TwoFactorPassed = false
		if err := f.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		accesslog.Record(ctx, st.fields(), "User provided invalid 2FA verification code")
		return st.view(ViewTwoFactor, true, MsgBadCode), nil
	}

	sess.TwoFactorPassed = true
	if err := f.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	accesslog.Record(ctx, st.fields(), "2FA verification code validated")
	return f.next(ctx, st, sess)
}

// Finish issues the authorization code for the consented scopes and redirects
// back to the client.
func (f *Flow) Finish(ctx context.Context, org domain.Organization, p Params, sessionID string) (*Result, error) {
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: org.ID}, "Starting Oauth2 authorization process (redirect with authorization code)")
	st, res, err := f.prepare(ctx, org, p, true)
	if err != nil || res != nil {
		return res, err
	}
	sess, res, err := f.loadSession(ctx, st, sessionID)
	if err != nil || res != nil {
		return res, err
	}
	return f.finish(ctx, st, sess)
}

// next shows the consent page when scopes were requested, else finishes.
func (f *Flow) next(ctx context.Context, st *step, sess Session) (*Result, error) {
	if len(st.scopes) > 0 {
		accesslog.Record(ctx, st.fields(), "Displaying scopes authorize HTML page")
		return st.view(ViewScopes, true, ""), nil
	}
	return f.finish(ctx, st, sess)
}

func (f *Flow) finish(ctx context.Context, st *step, sess Session) (*Result, error) {
	user, res, err := f.loadUser(ctx, st, sess.Username)
	if err != nil || res != nil {
		return res, err
	}
	if !sess.PasswordVerified || sess.UserID != user.ID {
		accesslog.Record(ctx, st.fields(), "Session does not carry verified credentials for username='%s'", user.Username)
		return st.view(ViewAuthorize, false, MsgBadCredentials), nil
	}
	if user.Using2FA && !sess.TwoFactorPassed {
		const msg = "2FA verification code session attribute not found"
		return nil, reject(ctx, st.fields(), oauth.New(oauth.ErrInvalidRequest, msg), msg)
	}

	code, err := f.minter.IssueAuthorizationCode(ctx, token.Request{
		Organization: st.org,
		Client:       st.client,
		User:         &user,
		Scopes:       scope.Names(st.scopes),
		GrantType:    domain.GrantAuthorizationCode,
	}, f.codeTTL)
	if err != nil {
		return nil, err
	}
	if err := f.sessions.Delete(ctx, sess.ID); err != nil {
		f.logger.Warn("failed to delete authorize session", zap.Error(err))
	}

	accesslog.Record(ctx, st.fields(), "Oauth2 authorization process finished")
	return &Result{RedirectURL: redirectWithCode(st.params.RedirectURI, code, st.params.State), ClearSession: true}, nil
}

// prepare validates the parameters shared by every step. A non-nil Result
// means the step must re-render the credential form.
func (f *Flow) prepare(ctx context.Context, org domain.Organization, p Params, requireState bool) (*step, *Result, error) {
	orgFields := accesslog.Fields{OrganizationID: org.ID, ClientID: p.ClientID}
	if p.ResponseType != ResponseTypeCode {
		return nil, nil, reject(ctx, orgFields, oauth.New(oauth.ErrInvalidRequest, ""),
			"Unsupported response_type='%s'", p.ResponseType)
	}

	client, err := f.clients.LookupClient(ctx, p.ClientID, org)
	if err != nil {
		return nil, nil, err
	}
	st := &step{org: org, client: client, params: p}

	if requireState && p.State == "" {
		return nil, nil, reject(ctx, st.fields(), oauth.New(oauth.ErrInvalidRequest, ""),
			"Authorization state parameter is not provided")
	}
	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return nil, nil, reject(ctx, st.fields(), oauth.New(oauth.ErrInvalidRequest, ""),
			"Oauth2 client is not allowed to use grant_type='%s'", domain.GrantAuthorizationCode)
	}

	st.scopes, err = f.scopes.ResolveScopes(ctx, p.Scope, client)
	if err != nil {
		return nil, nil, err
	}
	st.data = ViewData{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		ResponseType:     p.ResponseType,
		ClientID:         client.ID,
		RedirectURI:      p.RedirectURI,
		Scope:            scope.Join(scope.Names(st.scopes)),
		State:            p.State,
	}

	if !client.AllowsRedirect(p.RedirectURI) {
		accesslog.Record(ctx, st.fields(), "Oauth2 client approved redirect urls=[%s] does not match requested redirect url='%s'",
			strings.Join(client.RedirectURLs, ", "), p.RedirectURI)
		return nil, st.view(ViewAuthorize, false, MsgRedirectMismatch), nil
	}
	return st, nil, nil
}

func (f *Flow) loadUser(ctx context.Context, st *step, username string) (domain.OauthUser, *Result, error) {
	user, err := f.users.GetByUsername(ctx, st.org.ID, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			accesslog.Record(ctx, st.fields(), "Oauth2 user not found by username='%s' and organization id='%s'", username, st.org.ID)
			return domain.OauthUser{}, st.view(ViewAuthorize, false, MsgBadCredentials), nil
		}
		return domain.OauthUser{}, nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Enabled {
		accesslog.Record(ctx, st.fields(), "Oauth2 user is disabled; username='%s' and organization id='%s'", username, st.org.ID)
		return domain.OauthUser{}, st.view(ViewAuthorize, false, MsgAccessDenied), nil
	}
	if user.OrganizationID != st.org.ID {
		return domain.OauthUser{}, nil, reject(ctx, st.fields(), oauth.New(oauth.ErrInvalidRequest, ""),
			"Oauth2 user organization id='%s' does not match request organization id='%s'", user.OrganizationID, st.org.ID)
	}
	return user, nil, nil
}

func (f *Flow) loadSession(ctx context.Context, st *step, id string) (Session, *Result, error) {
	sess, ok, err := f.sessions.Load(ctx, id)
	if err != nil {
		return Session{}, nil, err
	}
	if !ok || sess.OrganizationID != st.org.ID || sess.ClientID != st.client.ID {
		accesslog.Record(ctx, st.fields(), "Authorization session not found or bound to another client")
		return Session{}, st.view(ViewAuthorize, false, MsgBadCredentials), nil
	}
	return sess, nil, nil
}

func reject(ctx context.Context, f accesslog.Fields, err error, format string, args ...any) error {
	f.Error = oauth.Message(err)
	f.StatusCode = oauth.Status(err)
	accesslog.Record(ctx, f, format, args...)
	return err
}

func redirectWithCode(redirectURI, code, state string) string {
	q := url.Values{}
	q.Set("code", code)
	q.Set("state", state)
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return redirectURI + sep + q.Encode()
}
