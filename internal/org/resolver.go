// Package org maps request hosts to the organization they address.
package org

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/accesslog"
	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/domain/oauth"
	"github.com/smallbiznis/authbox/internal/repository"
)

// Resolver loads the organization selected by a host's domain prefix.
type Resolver struct {
	orgs       repository.OrganizationRepository
	baseDomain string
	logger     *zap.Logger
}

// NewResolver creates an org resolver.
func NewResolver(orgs repository.OrganizationRepository, cfg config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{orgs: orgs, baseDomain: strings.ToLower(cfg.BaseDomain), logger: logger}
}

// Prefix strips the port and the base domain from host. IP hosts are
// returned unchanged.
func Prefix(host, baseDomain string) string {
	cleaned := strings.ToLower(strings.TrimSpace(stripPort(host)))
	if cleaned == "localhost." {
		return "localhost"
	}
	if baseDomain == "" || net.ParseIP(cleaned) != nil {
		return cleaned
	}
	return strings.TrimSuffix(cleaned, "."+baseDomain)
}

// Resolve returns the enabled organization addressed by host.
func (r *Resolver) Resolve(ctx context.Context, host string) (domain.Organization, error) {
	prefix := Prefix(host, r.baseDomain)

	org, err := r.orgs.GetByDomainPrefix(ctx, prefix)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		r.logger.Error("failed to resolve organization", zap.String("prefix", prefix), zap.Error(err))
		return domain.Organization{}, fmt.Errorf("resolve organization: %w", err)
	}
	if err != nil || !org.Enabled {
		r.logger.Debug("organization not found or disabled", zap.String("prefix", prefix))
		accesslog.Record(ctx, accesslog.Fields{
			Error:      oauth.ErrInvalidRequest.Error(),
			StatusCode: oauth.Status(oauth.ErrInvalidRequest),
		}, "Organization not found by domain prefix='%s' or disabled", prefix)
		return domain.Organization{}, oauth.New(oauth.ErrInvalidRequest, "Domain prefix unknown: "+prefix)
	}
	return org, nil
}

func stripPort(host string) string {
	if strings.Contains(host, ":") {
		h, _, err := net.SplitHostPort(host)
		if err == nil {
			return h
		}
	}
	return host
}
