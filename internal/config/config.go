package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/store"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for sitegate.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	// LogLevel overrides the environment's default level (debug in
	// development, info in production) when set.
	LogLevel string `env:"LOG_LEVEL"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Directory holding the credential and session documents. Defaults
	// to ~/.sitegate.
	DataDir string `env:"DATA_DIR"`

	// Document paths. Relative defaults resolve inside DataDir.
	CredentialsFile string `env:"CREDENTIALS_FILE"`
	SessionsFile    string `env:"SESSIONS_FILE"`

	// Backend selection: STORE_TYPE for credentials (file only),
	// SESSION_STORE for sessions (file, bolt or redis).
	StoreType    string `env:"STORE_TYPE" envDefault:"file"`
	SessionStore string `env:"SESSION_STORE" envDefault:"file"`

	BoltPath string `env:"BOLT_PATH"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX"`

	// Take the client IP from X-Forwarded-For. Only enable behind a
	// proxy that sets it.
	TrustForwardedFor bool `env:"TRUST_FORWARDED_FOR" envDefault:"false"`

	// Log external edits of the document files.
	WatchDocuments bool `env:"WATCH_DOCUMENTS" envDefault:"true"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// resolvePaths fills in document paths under DataDir and makes them
// absolute, so the watcher can match fsnotify events against them.
func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return err
		}

		c.DataDir = dir
	}

	dataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("resolving data dir to absolute path: %w", err)
	}

	c.DataDir = dataDir

	for _, p := range []struct {
		field *string
		name  string
	}{
		{&c.CredentialsFile, "credentials.json"},
		{&c.SessionsFile, "sessions.json"},
		{&c.BoltPath, "sessions.db"},
	} {
		if *p.field == "" {
			*p.field = p.name
		}

		if !filepath.IsAbs(*p.field) {
			*p.field = filepath.Join(c.DataDir, *p.field)
		}
	}

	return nil
}

func (c *Config) validate() error {
	if c.StoreType != store.TypeFile {
		return fmt.Errorf("STORE_TYPE %q: %w", c.StoreType, apperrors.ErrStoreNotSupported)
	}

	switch c.SessionStore {
	case store.TypeFile, store.TypeBolt:
	case store.TypeRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_STORE is redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE %q: %w", c.SessionStore, apperrors.ErrStoreNotSupported)
	}

	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative")
	}

	return nil
}

// DefaultDataDir returns ~/.sitegate.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".sitegate"), nil
}

// SessionOptions returns the session backend selection.
func (c *Config) SessionOptions() store.SessionOptions {
	return store.SessionOptions{
		Type:          c.SessionStore,
		Path:          c.SessionsFile,
		BoltPath:      c.BoltPath,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisPrefix:   c.RedisPrefix,
	}
}

// WatchedDocuments lists the human-editable document files in use.
func (c *Config) WatchedDocuments() []string {
	paths := []string{c.CredentialsFile}
	if c.SessionStore == store.TypeFile {
		paths = append(paths, c.SessionsFile)
	}

	return paths
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
