package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/logging"
	"github.com/alexjbarnes/sitegate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"ENVIRONMENT",
		"LOG_LEVEL",
		"LISTEN_ADDR",
		"DATA_DIR",
		"CREDENTIALS_FILE",
		"SESSIONS_FILE",
		"STORE_TYPE",
		"SESSION_STORE",
		"BOLT_PATH",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_PREFIX",
		"TRUST_FORWARDED_FOR",
		"WATCH_DOCUMENTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// --- Load: defaults ---

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Empty(t, cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, store.TypeFile, cfg.StoreType)
	assert.Equal(t, store.TypeFile, cfg.SessionStore)
	assert.Equal(t, filepath.Join(dir, "credentials.json"), cfg.CredentialsFile)
	assert.Equal(t, filepath.Join(dir, "sessions.json"), cfg.SessionsFile)
	assert.Equal(t, filepath.Join(dir, "sessions.db"), cfg.BoltPath)
	assert.False(t, cfg.TrustForwardedFor)
	assert.True(t, cfg.WatchDocuments)
}

func TestLoad_LogLevelFollowsEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())
	ctx := context.Background()

	cfg, err := Load()
	require.NoError(t, err)
	dev := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	assert.True(t, dev.Handler().Enabled(ctx, slog.LevelDebug))

	t.Setenv("ENVIRONMENT", "production")
	cfg, err = Load()
	require.NoError(t, err)
	prod := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	assert.False(t, prod.Handler().Enabled(ctx, slog.LevelDebug))
	assert.True(t, prod.Handler().Enabled(ctx, slog.LevelInfo))

	t.Setenv("LOG_LEVEL", "warn")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, logging.NewLogger(cfg.Environment, cfg.LogLevel).Handler().Enabled(ctx, slog.LevelInfo))
}

func TestLoad_DefaultDataDir(t *testing.T) {
	clearConfigEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".sitegate"), cfg.DataDir)
}

func TestLoad_RelativeDataDirResolved(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATA_DIR", "relative/data")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.True(t, filepath.IsAbs(cfg.CredentialsFile))
}

func TestLoad_AbsoluteDocumentPathsUnchanged(t *testing.T) {
	clearConfigEnv(t)
	other := t.TempDir()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("CREDENTIALS_FILE", filepath.Join(other, "creds.json"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(other, "creds.json"), cfg.CredentialsFile)
}

// --- Load: backends ---

func TestLoad_UnsupportedCredentialStore(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("STORE_TYPE", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStoreNotSupported))
	assert.Contains(t, err.Error(), "STORE_TYPE")
}

func TestLoad_UnsupportedSessionStore(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SESSION_STORE", "memcached")

	_, err := Load()
	assert.True(t, errors.Is(err, apperrors.ErrStoreNotSupported))
}

func TestLoad_RedisRequiresAddr(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SESSION_STORE", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.SessionOptions()
	assert.Equal(t, store.TypeRedis, opts.Type)
	assert.Equal(t, "localhost:6379", opts.RedisAddr)
	assert.Equal(t, 2, opts.RedisDB)
}

func TestLoad_InvalidBool(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("TRUST_FORWARDED_FOR", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

// --- WatchedDocuments ---

func TestWatchedDocuments(t *testing.T) {
	cfg := &Config{CredentialsFile: "/d/c.json", SessionsFile: "/d/s.json", SessionStore: store.TypeFile}
	assert.Equal(t, []string{"/d/c.json", "/d/s.json"}, cfg.WatchedDocuments())

	cfg.SessionStore = store.TypeBolt
	assert.Equal(t, []string{"/d/c.json"}, cfg.WatchedDocuments())
}

// --- IsProduction ---

func TestIsProduction_True(t *testing.T) {
	cfg := &Config{Environment: "production"}
	assert.True(t, cfg.IsProduction())
}

func TestIsProduction_False(t *testing.T) {
	cfg := &Config{Environment: "development"}
	assert.False(t, cfg.IsProduction())
}
