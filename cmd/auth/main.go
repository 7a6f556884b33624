package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/authbox/internal/accesslog"
	cacheadapter "github.com/smallbiznis/authbox/internal/adapter/cache"
	"github.com/smallbiznis/authbox/internal/authorize"
	"github.com/smallbiznis/authbox/internal/bootstrap"
	"github.com/smallbiznis/authbox/internal/clock"
	"github.com/smallbiznis/authbox/internal/config"
	"github.com/smallbiznis/authbox/internal/credentials"
	"github.com/smallbiznis/authbox/internal/domain"
	"github.com/smallbiznis/authbox/internal/grant"
	httptransport "github.com/smallbiznis/authbox/internal/http"
	"github.com/smallbiznis/authbox/internal/http/handler"
	"github.com/smallbiznis/authbox/internal/introspect"
	apimiddleware "github.com/smallbiznis/authbox/internal/middleware"
	"github.com/smallbiznis/authbox/internal/org"
	"github.com/smallbiznis/authbox/internal/repository"
	"github.com/smallbiznis/authbox/internal/scope"
	"github.com/smallbiznis/authbox/internal/server"
	"github.com/smallbiznis/authbox/internal/telemetry"
	"github.com/smallbiznis/authbox/internal/token"
)

const cachePrefix = "authbox:"

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newTracer,
			newSnowflake,
			newClock,
			telemetry.NewMetrics,
			newCacheStore,
			newRepositories,
			newAccessLog,
			credentials.NewParser,
			scope.NewResolver,
			token.NewMinter,
			newSessions,
			authorize.NewFlow,
			introspect.NewResolver,
			newGrantRegistry,
			org.NewResolver,
			newRateLimiter,
			handler.NewHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(bootstrap.EnsureSeed, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newTracer(provider *telemetry.Provider) trace.Tracer {
	return provider.Tracer()
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func newClock() clock.Clock {
	return clock.System{}
}

func newCacheStore(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, logger *zap.Logger) (cacheadapter.Store, error) {
	if cfg.RedisAddr == "" {
		logger.Info("redis not configured, using in-process cache")
		return cacheadapter.NewMemoryStore(clk), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisStore(client, cachePrefix), nil
}

type repositories struct {
	fx.Out

	Organizations repository.OrganizationRepository
	Clients       repository.ClientRepository
	Scopes        repository.ScopeRepository
	Users         repository.UserRepository
	Tokens        repository.TokenRepository
	AccessLogs    repository.AccessLogRepository
}

// newRepositories opens the configured store and puts the read-mostly
// repositories behind the cache.
func newRepositories(lc fx.Lifecycle, cfg config.Config, store cacheadapter.Store, logger *zap.Logger) (repositories, error) {
	var raw repositories
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := newPGXPool(lc, cfg, logger)
		if err != nil {
			return repositories{}, err
		}
		raw = repositories{
			Organizations: repository.NewPostgresOrganizationRepo(pool),
			Clients:       repository.NewPostgresClientRepo(pool),
			Scopes:        repository.NewPostgresScopeRepo(pool),
			Users:         repository.NewPostgresUserRepo(pool),
			Tokens:        repository.NewPostgresTokenRepo(pool),
			AccessLogs:    repository.NewPostgresAccessLogRepo(pool),
		}
	default:
		logger.Warn("using in-memory storage, data is lost on restart")
		raw = repositories{
			Organizations: repository.NewMemoryOrganizationRepo(),
			Clients:       repository.NewMemoryClientRepo(),
			Scopes:        repository.NewMemoryScopeRepo(),
			Users:         repository.NewMemoryUserRepo(),
			Tokens:        repository.NewMemoryTokenRepo(),
			AccessLogs:    repository.NewMemoryAccessLogRepo(),
		}
	}

	ttl := cfg.CacheTTL
	return repositories{
		Organizations: cacheadapter.NewOrganizations(raw.Organizations, store, ttl, logger),
		Clients:       cacheadapter.NewClients(raw.Clients, store, ttl, logger),
		Scopes:        cacheadapter.NewScopes(raw.Scopes, store, ttl, logger),
		Users:         cacheadapter.NewUsers(raw.Users, store, ttl, logger),
		Tokens:        cacheadapter.NewTokens(raw.Tokens, store, ttl, logger),
		AccessLogs:    raw.AccessLogs,
	}, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.DatabaseMigrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newAccessLog(
	lc fx.Lifecycle,
	cfg config.Config,
	repo repository.AccessLogRepository,
	clk clock.Clock,
	node *snowflake.Node,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *accesslog.Service {
	svc := accesslog.NewService(repo, clk, node, accesslog.Config{
		Source:    domain.AccessLogSource(cfg.AccessLogSource),
		QueueSize: cfg.AccessLogQueueSize,
	}, logger.Named("accesslog"))
	metrics.ObserveAccessLog(svc.QueueLen, svc.Dropped)

	lc.Append(fx.Hook{
		OnStart: svc.Start,
		OnStop:  svc.Stop,
	})
	return svc
}

func newSessions(store cacheadapter.Store, cfg config.Config, clk clock.Clock) *authorize.Sessions {
	return authorize.NewSessions(store, cfg.SessionTTL, clk)
}

func newGrantRegistry(
	tracer trace.Tracer,
	parser *credentials.Parser,
	scopes *scope.Resolver,
	users repository.UserRepository,
	tokens repository.TokenRepository,
	minter *token.Minter,
	clk clock.Clock,
	logger *zap.Logger,
) *grant.Registry {
	return grant.NewRegistry(tracer,
		grant.NewClientCredentials(parser, scopes, minter),
		grant.NewPassword(parser, scopes, users, minter, logger),
		grant.NewAuthorizationCode(parser, tokens, users, minter, clk),
		grant.NewRefreshToken(parser, tokens, users, minter, clk),
	)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			logger.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
