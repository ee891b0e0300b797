package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platefeed/server/pkg/config"
)

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("PLATEFEED_JWT_SECRET", "")
	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoadDefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("PLATEFEED_JWT_SECRET", "s3cret")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, ":8090", cfg.ListenAddr)
	require.Equal(t, "platefeed.db", cfg.DatabasePath)
	require.Equal(t, "s3cret", cfg.JWTSecret)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("PLATEFEED_JWT_SECRET", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_addr: \":9000\"\n"+
			"database_path: \"feed.db\"\n"+
			"jwt_secret: \"from-file\"\n"+
			"token_ttl: 2h\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, "feed.db", cfg.DatabasePath)
	require.Equal(t, "from-file", cfg.JWTSecret)
	require.Equal(t, 2*time.Hour, cfg.TokenTTL)
	// Unset keys keep their defaults.
	require.Equal(t, "blobs", cfg.BlobRoot)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"listen_addr: \":9000\"\njwt_secret: \"from-file\"\n"), 0o644))

	t.Setenv("PLATEFEED_LISTEN_ADDR", ":9001")
	t.Setenv("PLATEFEED_JWT_SECRET", "from-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9001", cfg.ListenAddr)
	require.Equal(t, "from-env", cfg.JWTSecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
