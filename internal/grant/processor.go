// Package grant implements the token endpoint grant types.
package grant

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/credentials"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/telemetry"
	"github.com/smallbiznis/authbox/internal/token"
)

const ParamGrantType = "grant_type"

// Processor handles one grant type.
type Processor interface {
	GrantType() domain.GrantType
	Process(ctx context.Context, org domain.Organization, r *http.Request) (*token.Response, error)
}

// Registry dispatches token requests to the processor registered for their grant type.
type Registry struct {
	processors map[domain.GrantType]Processor
	tracer     trace.Tracer
}

func NewRegistry(tracer trace.Tracer, processors ...Processor) *Registry {
	m := make(map[domain.GrantType]Processor, len(processors))
	for _, p := range processors {
		m[p.GrantType()] = p
	}
	return &Registry{processors: m, tracer: tracer}
}

// Lookup returns the processor for raw, or an invalid request error.
func (r *Registry) Lookup(raw string) (Processor, bool) {
	p, ok := r.processors[domain.GrantType(raw)]
	return p, ok
}

// Process reads grant_type from the request and runs the matching processor.
func (r *Registry) Process(ctx context.Context, org domain.Organization, req *http.Request) (*token.Response, error) {
	raw := req.FormValue(ParamGrantType)
	p, ok := r.Lookup(raw)
	if !ok {
		accesslog.Record(ctx, accesslog.Fields{
			OrganizationID: org.ID,
			Error:          "invalid grant_type",
			StatusCode:     http.StatusBadRequest,
		}, "Unknown grant_type='%s'", raw)
		return nil, oauth.New(oauth.ErrInvalidRequest, "invalid grant_type")
	}

	ctx, span := telemetry.StartSpan(ctx, r.tracer, "grant."+raw)
	defer span.End()
	span.SetAttributes(attribute.String("organization.id", org.ID), attribute.String("grant.type", raw))

	resp, err := p.Process(ctx, org, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

// authenticate resolves the calling client and checks it may use grant.
func authenticate(ctx context.Context, parser *credentials.Parser, org domain.Organization, r *http.Request, grant domain.GrantType) (domain.OauthClient, error) {
	client, err := parser.ResolveClient(ctx, r, org)
	if err != nil {
		return domain.OauthClient{}, err
	}
	if !client.AllowsGrant(grant) {
		return domain.OauthClient{}, reject(ctx, fields(org, client), oauth.ErrInvalidRequest,
			"Oauth2 client is not allowed to use grant_type='%s'", grant)
	}
	return client, nil
}

func fields(org domain.Organization, client domain.OauthClient) accesslog.Fields {
	return accesslog.Fields{OrganizationID: org.ID, ClientID: client.ID}
}

// reject records a failed validation and returns the matching caller error.
func reject(ctx context.Context, f accesslog.Fields, kind error, format string, args ...any) error {
	f.Error = kind.Error()
	f.StatusCode = oauth.Status(kind)
	accesslog.Record(ctx, f, format, args...)
	return oauth.New(kind, "")
}
