// Package token mints access tokens, refresh tokens and authorization codes.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/codec"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/jwt"
	"github.com/smallbiznis/authbox/internal/repository"
	"github.com/smallbiznis/authbox/internal/scope"
	"github.com/smallbiznis/authbox/internal/telemetry"
)

const TypeBearer = "bearer"

// Response is the token endpoint success body.
type Response struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Request describes a token to mint.
type Request struct {
	Organization domain.Organization
	Client       domain.OauthClient
	User         *domain.OauthUser
	Scopes       []string
	GrantType    domain.GrantType
	// Redeems is the id of the code or refresh token being exchanged. It is
	// claimed before anything is written.
	Redeems string
}

// IssuesRefreshToken reports whether a grant returns a refresh token.
func IssuesRefreshToken(g domain.GrantType) bool {
	switch g {
	case domain.GrantPassword, domain.GrantAuthorizationCode, domain.GrantRefreshToken:
		return true
	default:
		return false
	}
}

// Minter writes token rows and renders token values.
type Minter struct {
	tokens  repository.TokenRepository
	clock   clock.Clock
	node    *snowflake.Node
	metrics *telemetry.Metrics
}

func NewMinter(tokens repository.TokenRepository, clk clock.Clock, node *snowflake.Node, metrics *telemetry.Metrics) *Minter {
	return &Minter{tokens: tokens, clock: clk, node: node, metrics: metrics}
}

// Mint issues an access token and, when the grant warrants it, a refresh token.
func (m *Minter) Mint(ctx context.Context, req Request) (*Response, error) {
	now := m.clock.Now()
	accessID := m.node.Generate().String()
	fields := accesslog.Fields{OrganizationID: req.Organization.ID, ClientID: req.Client.ID, TokenID: accessID}

	if req.Redeems != "" {
		if err := m.tokens.LinkToken(ctx, req.Redeems, accessID); err != nil {
			if errors.Is(err, repository.ErrAlreadyLinked) || errors.Is(err, repository.ErrNotFound) {
				accesslog.Record(ctx, withError(fields, oauth.ErrInvalidToken, http.StatusUnauthorized),
					"Token id='%s' was already redeemed", req.Redeems)
				return nil, oauth.New(oauth.ErrInvalidToken, "")
			}
			return nil, fmt.Errorf("link token: %w", err)
		}
		accesslog.Record(ctx, fields, "Linked token id='%s' to access token id='%s'", req.Redeems, accessID)
	}

	resp := &Response{
		TokenType: TypeBearer,
		ExpiresIn: int64(req.Client.Expiration / time.Second),
		Scope:     scope.Join(req.Scopes),
	}

	if IssuesRefreshToken(req.GrantType) {
		value := codec.NewOpaqueValue()
		refresh := m.row(ctx, req, m.node.Generate().String(), codec.Hash(value), domain.TokenTypeRefresh, now, now.Add(req.Client.RefreshExpiration))
		accesslog.Record(ctx, accesslog.Fields{OrganizationID: req.Organization.ID, ClientID: req.Client.ID, TokenID: refresh.ID},
			"Inserting refresh token into DB")
		if err := m.tokens.Insert(ctx, refresh); err != nil {
			return nil, fmt.Errorf("insert refresh token: %w", err)
		}
		m.metrics.TokenIssued(string(req.GrantType), string(domain.TokenTypeRefresh))
		resp.RefreshToken = value
	}

	expiration := now.Add(req.Client.Expiration)
	var value string
	switch req.Client.TokenFormat {
	case domain.TokenFormatJWT:
		signed, err := m.signJWT(ctx, req, fields, now, expiration)
		if err != nil {
			return nil, err
		}
		value = signed
		accesslog.Record(ctx, fields, "Inserting JWT access token into DB")
	default:
		value = codec.NewOpaqueValue()
		accesslog.Record(ctx, fields, "Inserting Oauth2 token object into DB")
	}

	access := m.row(ctx, req, accessID, codec.Hash(value), domain.TokenTypeAccess, now, expiration)
	if err := m.tokens.Insert(ctx, access); err != nil {
		return nil, fmt.Errorf("insert access token: %w", err)
	}
	m.metrics.TokenIssued(string(req.GrantType), string(domain.TokenTypeAccess))

	resp.AccessToken = value
	return resp, nil
}

// IssueAuthorizationCode stores a single-use code and returns its value.
func (m *Minter) IssueAuthorizationCode(ctx context.Context, req Request, ttl time.Duration) (string, error) {
	now := m.clock.Now()
	value := codec.NewOpaqueValue()
	code := m.row(ctx, req, m.node.Generate().String(), codec.Hash(value), domain.TokenTypeAuthorizationCode, now, now.Add(ttl))
	accesslog.Record(ctx, accesslog.Fields{OrganizationID: req.Organization.ID, ClientID: req.Client.ID, TokenID: code.ID},
		"Inserting authorization code into DB")
	if err := m.tokens.Insert(ctx, code); err != nil {
		return "", fmt.Errorf("insert authorization code: %w", err)
	}
	m.metrics.TokenIssued(string(domain.GrantAuthorizationCode), string(domain.TokenTypeAuthorizationCode))
	return value, nil
}

func (m *Minter) signJWT(ctx context.Context, req Request, fields accesslog.Fields, now, expiration time.Time) (string, error) {
	accesslog.Record(ctx, fields, "Preparing private key for JWT token creation")
	key, err := codec.ParsePrivateKey(req.Client.PrivateKey)
	if err != nil {
		accesslog.Record(ctx, withError(fields, err, http.StatusInternalServerError), "Unable to parse client private key")
		return "", fmt.Errorf("client %s private key: %w", req.Client.ID, err)
	}

	claims := jwt.AccessTokenClaims{
		Scope:          scope.Join(req.Scopes),
		OrganizationID: req.Organization.ID,
	}
	if req.User != nil {
		claims.UserID = req.User.ID
		claims.Metadata = req.User.MetadataValue()
	}

	accesslog.Record(ctx, fields, "Signing JWT access token using private key")
	signed, err := jwt.Sign(key, jwt.StandardClaims(req.Organization.ID, req.Client.ID, now, expiration), claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (m *Minter) row(ctx context.Context, req Request, id, hash string, tokenType domain.TokenType, now, expiration time.Time) domain.OauthToken {
	t := domain.OauthToken{
		ID:             id,
		CreateTime:     now,
		Hash:           hash,
		OrganizationID: req.Organization.ID,
		ClientID:       req.Client.ID,
		Expiration:     expiration,
		Scopes:         append([]string{}, req.Scopes...),
		TokenType:      tokenType,
	}
	if req.User != nil {
		t.UserID = req.User.ID
	}
	if b := accesslog.FromContext(ctx); b != nil {
		t.IP = b.IP()
		t.UserAgent = b.UserAgent()
		t.RequestID = b.RequestID()
	}
	return t
}

func withError(f accesslog.Fields, err error, status int) accesslog.Fields {
	f.Error = err.Error()
	f.StatusCode = status
	return f
}
