package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, "development", cfg.Env)
	require.True(t, cfg.Database.AutoMigrate)
	require.Error(t, cfg.RequireDatabase())
	require.Error(t, cfg.RequireServer())
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"POSTGRES_CONN":  "postgres://u:p@localhost/db?sslmode=disable",
		"SERVER_ADDRESS": ":9090",
		"JWT_SECRET":     "dev",
		"JWT_TTL":        "90m",
		"NATS_URL":       "nats://localhost:4222",
		"AUTO_MIGRATE":   "false",
	}))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Address)
	require.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	require.False(t, cfg.Database.AutoMigrate)
	require.NoError(t, cfg.RequireServer())
}

func TestInvalidValues(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"JWT_TTL": "soon", "DB_MAX_OPEN_CONNS": "-1"}))
	require.ErrorContains(t, err, "JWT_TTL")
	require.ErrorContains(t, err, "DB_MAX_OPEN_CONNS")
}

func TestProductionSecretLength(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"APP_ENV": "production", "POSTGRES_CONN": "x", "JWT_SECRET": "short",
	}))
	require.NoError(t, err)
	require.ErrorContains(t, cfg.RequireServer(), "32 characters")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_ADDRESS=127.0.0.1:7000\n"), 0o600))
	t.Setenv("SERVER_ADDRESS", "")
	os.Unsetenv("SERVER_ADDRESS")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.Server.Address)
}

func TestLogRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg, err := FromEnv(env(map[string]string{"JWT_SECRET": "top-secret", "POSTGRES_CONN": "postgres://u:pw@h/db"}))
	require.NoError(t, err)

	cfg.Log(zap.New(core))

	fields := logs.All()[0].ContextMap()
	for _, v := range fields {
		if s, ok := v.(string); ok {
			require.NotContains(t, s, "top-secret")
			require.NotContains(t, s, "pw@")
		}
	}
	require.Equal(t, true, fields["database_configured"])
}
