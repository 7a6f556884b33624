package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/authbox/internal/config"
)

func TestLoadMemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("BASE_DOMAIN", ".auth.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.StorageMemory, cfg.StorageDriver)
	require.Equal(t, "auth.example.com", cfg.BaseDomain)
	require.Equal(t, 60*time.Second, cfg.AuthorizationCodeTTL)
	require.Equal(t, "Oauth2Server", cfg.AccessLogSource)
	require.False(t, cfg.AllowTokenDetailsWithoutClientCredentials)
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mysql")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadSeedValidation(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SEED_ENABLED", "true")
	t.Setenv("SEED_DOMAIN_PREFIX", "acme")
	t.Setenv("SEED_CLIENT_ID", "")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("SEED_CLIENT_ID", "client")
	t.Setenv("SEED_CLIENT_SECRET", "secret")
	t.Setenv("SEED_SCOPES", "read, write ,")
	t.Setenv("SEED_TOKEN_FORMAT", "jwt")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, []string{"read", "write"}, cfg.Seed.Scopes)
	require.Equal(t, "JWT", cfg.Seed.TokenFormat)
}
