// Package bootstrap creates the configured development tenant on startup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/codec"
	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/password"
	"github.com/smallbiznis/authbox/internal/repository"
)

const (
	seedExpiration        = time.Hour
	seedRefreshExpiration = 30 * 24 * time.Hour
)

// Repositories groups the stores the seed writes to.
type Repositories struct {
	fx.In

	Organizations repository.OrganizationRepository
	Clients       repository.ClientRepository
	Scopes        repository.ScopeRepository
	Users         repository.UserRepository
}

// EnsureSeed registers the seed on the fx start hook when enabled.
func EnsureSeed(lc fx.Lifecycle, cfg config.Config, repos Repositories, node *snowflake.Node, clk clock.Clock, logger *zap.Logger) {
	if !cfg.Seed.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return Seed(ctx, cfg.Seed, repos, node, clk, logger)
		},
	})
}

// Seed creates the organization, client, scopes and user described by s.
// Records that already exist are left untouched.
func Seed(ctx context.Context, s config.Seed, repos Repositories, node *snowflake.Node, clk clock.Clock, logger *zap.Logger) error {
	now := clk.Now()

	org, err := repos.Organizations.GetByDomainPrefix(ctx, s.DomainPrefix)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		org = domain.Organization{
			ID:           node.Generate().String(),
			Name:         s.OrgName,
			DomainPrefix: s.DomainPrefix,
			Enabled:      true,
			CreateTime:   now,
		}
		if err := repos.Organizations.Create(ctx, org); err != nil {
			return fmt.Errorf("seed organization: %w", err)
		}
		logger.Info("seed organization created", zap.String("organization_id", org.ID), zap.String("domain_prefix", org.DomainPrefix))
	case err != nil:
		return fmt.Errorf("seed organization lookup: %w", err)
	}

	scopeIDs := make([]string, 0, len(s.Scopes))
	for _, name := range s.Scopes {
		sc, err := repos.Scopes.GetByScope(ctx, org.ID, name)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			sc = domain.OauthScope{ID: node.Generate().String(), OrganizationID: org.ID, Scope: name, CreateTime: now}
			if err := repos.Scopes.Create(ctx, sc); err != nil {
				return fmt.Errorf("seed scope %q: %w", name, err)
			}
		case err != nil:
			return fmt.Errorf("seed scope lookup %q: %w", name, err)
		}
		scopeIDs = append(scopeIDs, sc.ID)
	}

	if err := seedClient(ctx, s, org, scopeIDs, repos, now, logger); err != nil {
		return err
	}
	return seedUser(ctx, s, org, repos, node, now, logger)
}

func seedClient(ctx context.Context, s config.Seed, org domain.Organization, scopeIDs []string, repos Repositories, now time.Time, logger *zap.Logger) error {
	_, err := repos.Clients.GetByID(ctx, s.ClientID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("seed client lookup: %w", err)
	}

	client := domain.OauthClient{
		ID:             s.ClientID,
		OrganizationID: org.ID,
		Secret:         s.ClientSecret,
		Description:    "Seed client",
		GrantTypes: []domain.GrantType{
			domain.GrantClientCredentials,
			domain.GrantPassword,
			domain.GrantAuthorizationCode,
			domain.GrantRefreshToken,
		},
		Enabled:           true,
		TokenFormat:       domain.TokenFormat(s.TokenFormat),
		Expiration:        seedExpiration,
		RefreshExpiration: seedRefreshExpiration,
		CreateTime:        now,
	}
	if s.RedirectURL != "" {
		client.RedirectURLs = []string{s.RedirectURL}
	}
	if client.TokenFormat == domain.TokenFormatJWT {
		client.PrivateKey, client.PublicKey, err = codec.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("seed client key pair: %w", err)
		}
	}
	if err := repos.Clients.Create(ctx, client); err != nil {
		return fmt.Errorf("seed client: %w", err)
	}
	for _, id := range scopeIDs {
		if err := repos.Scopes.AssignToClient(ctx, client.ID, id); err != nil {
			return fmt.Errorf("seed client scope: %w", err)
		}
	}
	logger.Info("seed client created", zap.String("client_id", client.ID), zap.String("token_format", string(client.TokenFormat)))
	return nil
}

func seedUser(ctx context.Context, s config.Seed, org domain.Organization, repos Repositories, node *snowflake.Node, now time.Time, logger *zap.Logger) error {
	if s.Username == "" || s.Password == "" {
		return nil
	}
	_, err := repos.Users.GetByUsername(ctx, org.ID, s.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("seed user lookup: %w", err)
	}

	hashed, err := password.Hash(s.Password)
	if err != nil {
		return fmt.Errorf("seed hash password: %w", err)
	}
	user := domain.OauthUser{
		ID:             node.Generate().String(),
		OrganizationID: org.ID,
		Username:       s.Username,
		Password:       hashed,
		Enabled:        true,
		CreateTime:     now,
		LastUpdated:    now,
	}
	if err := repos.Users.Create(ctx, user); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	logger.Info("seed user created", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return nil
}
