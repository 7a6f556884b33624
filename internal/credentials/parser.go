// Package credentials extracts client credentials from requests and validates
// them against the resolved organization.
package credentials

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/repository"
)

const (
	ParamClientID     = "client_id"
	ParamClientSecret = "client_secret"
	basicPrefix       = "Basic "
)

// Credentials is a client id/secret pair as presented by the caller.
type Credentials struct {
	ClientID string
	Secret   string
}

// Extract reads credentials from the Basic authorization header, falling back
// to client_id/client_secret form or query parameters.
func Extract(r *http.Request) (Credentials, bool) {
	if creds, ok := FromBasicHeader(r.Header.Get("Authorization")); ok {
		return creds, true
	}
	id, secret, ok := FormPair(r, ParamClientID, ParamClientSecret)
	if !ok {
		return Credentials{}, false
	}
	return Credentials{ClientID: id, Secret: secret}, true
}

// FromBasicHeader decodes "Basic base64(id:secret)". Anything else yields false.
func FromBasicHeader(header string) (Credentials, bool) {
	if !strings.HasPrefix(header, basicPrefix) {
		return Credentials{}, false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(header, basicPrefix)))
	if err != nil {
		return Credentials{}, false
	}
	parts := strings.Split(string(decoded), ":")
	if len(parts) != 2 || parts[0] == "" {
		return Credentials{}, false
	}
	return Credentials{ClientID: parts[0], Secret: parts[1]}, true
}

// FormPair returns two form or query values when both are present.
func FormPair(r *http.Request, first, second string) (string, string, bool) {
	if err := r.ParseForm(); err != nil {
		return "", "", false
	}
	a, okA := r.Form[first]
	b, okB := r.Form[second]
	if !okA || !okB || len(a) == 0 || len(b) == 0 {
		return "", "", false
	}
	return a[0], b[0], true
}

// Parser validates clients for an organization.
type Parser struct {
	clients repository.ClientRepository
}

func NewParser(clients repository.ClientRepository) *Parser {
	return &Parser{clients: clients}
}

// ResolveClient authenticates the calling client. Every failure is reported
// to the caller as a generic invalid request.
func (p *Parser) ResolveClient(ctx context.Context, r *http.Request, org domain.Organization) (domain.OauthClient, error) {
	creds, ok := Extract(r)
	if !ok {
		accesslog.Record(ctx, invalid(org.ID, ""), "Request missing client credentials")
		return domain.OauthClient{}, oauth.New(oauth.ErrInvalidRequest, "")
	}
	return p.Authenticate(ctx, creds, org)
}

// Authenticate validates presented credentials.
func (p *Parser) Authenticate(ctx context.Context, creds Credentials, org domain.Organization) (domain.OauthClient, error) {
	client, err := p.LookupClient(ctx, creds.ClientID, org)
	if err != nil {
		return domain.OauthClient{}, err
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(creds.Secret)) != 1 {
		accesslog.Record(ctx, invalid(org.ID, client.ID), "Oauth2 client secret does not match provided value")
		return domain.OauthClient{}, oauth.New(oauth.ErrInvalidRequest, "")
	}
	return client, nil
}

// LookupClient checks that clientID names an enabled client of org, without
// looking at a secret.
func (p *Parser) LookupClient(ctx context.Context, clientID string, org domain.Organization) (domain.OauthClient, error) {
	if clientID == "" {
		accesslog.Record(ctx, invalid(org.ID, ""), "Request missing client credentials")
		return domain.OauthClient{}, oauth.New(oauth.ErrInvalidRequest, "")
	}
	client, err := p.clients.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			accesslog.Record(ctx, invalid(org.ID, ""), "Oauth2 client not found by id='%s'", clientID)
			return domain.OauthClient{}, oauth.New(oauth.ErrInvalidRequest, "")
		}
		return domain.OauthClient{}, fmt.Errorf("load oauth client: %w", err)
	}
	if !client.Enabled {
		accesslog.Record(ctx, invalid(org.ID, client.ID), "Oauth2 client is disabled")
		return domain.OauthClient{}, oauth.New(oauth.ErrInvalidRequest, "")
	}
	if client.OrganizationID != org.ID {
		accesslog.Record(ctx, invalid("", client.ID),
			"Oauth2 client organization details do not match domain prefix specified in request: '%s'", org.DomainPrefix)
		return domain.OauthClient{}, oauth.New(oauth.ErrInvalidRequest, "")
	}
	return client, nil
}

func invalid(orgID, clientID string) accesslog.Fields {
	return accesslog.Fields{
		OrganizationID: orgID,
		ClientID:       clientID,
		Error:          oauth.ErrInvalidRequest.Error(),
		StatusCode:     http.StatusBadRequest,
	}
}
