// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads gatehouse settings from defaults, a YAML file, a
// dotenv file, the environment and command-line flags, in that order.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/token"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DefaultEnvFile is read when LoadOptions.EnvFile is empty and the file exists.
const DefaultEnvFile = ".env"

// Config is the full server configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Token   TokenConfig   `koanf:"token"`
	Hash    HashConfig    `koanf:"hash"`
	Cookie  CookieConfig  `koanf:"cookie"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig selects log format and level.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects the user directory backend.
type StoreConfig struct {
	Driver          string `koanf:"driver"`
	DatabaseURL     string `koanf:"database_url"`
	SQLitePath      string `koanf:"sqlite_path"`
	ConnectAttempts int    `koanf:"connect_attempts"`
}

// TokenConfig holds signing keys and token lifetimes.
type TokenConfig struct {
	Secret          string        `koanf:"secret"`
	PreviousSecrets []string      `koanf:"previous_secrets"`
	AccessTTL       time.Duration `koanf:"access_ttl"`
	RefreshTTL      time.Duration `koanf:"refresh_ttl"`
	Leeway          time.Duration `koanf:"leeway"`
	Issuer          string        `koanf:"issuer"`
}

// SigningKey derives the active key from Secret.
func (t TokenConfig) SigningKey() token.Key {
	return token.DeriveKey([]byte(t.Secret))
}

// VerifyOnlyKeys derives keys from PreviousSecrets that differ from Secret.
func (t TokenConfig) VerifyOnlyKeys() []token.Key {
	var keys []token.Key
	for _, s := range t.PreviousSecrets {
		if s == "" || s == t.Secret {
			continue
		}
		keys = append(keys, token.DeriveKey([]byte(s)))
	}
	return keys
}

// Session returns the issuer lifetimes.
func (t TokenConfig) Session() auth.SessionConfig {
	return auth.SessionConfig{AccessTTL: t.AccessTTL, RefreshTTL: t.RefreshTTL}
}

// HashConfig holds argon2id cost and the concurrent hashing bound.
type HashConfig struct {
	auth.HashParams `koanf:",squash"`
	// MaxConcurrency bounds concurrent hash computations; 0 means NumCPU.
	MaxConcurrency int `koanf:"max_concurrency"`
}

// CookieConfig shapes the refresh token cookie.
type CookieConfig struct {
	Secure bool   `koanf:"secure"`
	Domain string `koanf:"domain"`
}

// Default returns the built-in configuration. It has no token secret and
// so does not validate on its own.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store:   StoreConfig{Driver: DriverPostgres, SQLitePath: defaultSQLitePath(), ConnectAttempts: 5},
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     token.DefaultLeeway,
			Issuer:     "gatehouse",
		},
		Hash:   HashConfig{HashParams: auth.DefaultHashParams()},
		Cookie: CookieConfig{Secure: true},
	}
}

// defaultSQLitePath prefers the XDG data directory and falls back to the
// working directory when HOME is unknown.
func defaultSQLitePath() string {
	if path, err := xdg.SQLitePath(); err == nil {
		return path
	}
	return "gatehouse.db"
}

// LoadOptions names the sources Load reads beyond the process environment.
type LoadOptions struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string
	// EnvFile is an optional dotenv file. When empty, DefaultEnvFile is used
	// if it exists.
	EnvFile string
	// Flags are applied last; only flags the user set override.
	Flags *pflag.FlagSet
	// Environ replaces os.Environ, for tests.
	Environ func() []string
}

// Load merges every source over Default and validates the result.
func Load(opts LoadOptions) (Config, error) {
	cfg, err := Read(opts)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read merges every source over Default without validating. Commands that
// need only part of the configuration check what they use.
func Read(opts LoadOptions) (Config, error) {
	k := koanf.New(".")

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.ConfigFile).Wrap(err)
		}
	}

	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return Config{}, err
	}
	if err := k.Load(envProvider(dotenv), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "dotenv").Wrap(err)
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	if err := k.Load(envProvider(environMap(environ())), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if err := applyMinuteKeys(k); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").With("operation", "normalize durations").Wrap(err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err == nil {
		return values, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
}

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if name, value, ok := strings.Cut(kv, "="); ok {
			out[name] = value
		}
	}
	return out
}

// Validate checks the loaded configuration and names the first bad key.
func (c Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "listen address is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return invalid("log.format", "log format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return invalid("store.sqlite_path", "SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "store driver must be postgres, sqlite or memory, got %q", c.Store.Driver)
	}
	if c.Store.ConnectAttempts < 0 {
		return invalid("store.connect_attempts", "connect attempts must not be negative")
	}

	if len(c.Token.Secret) < token.MinSecretLength {
		return invalid("token.secret", "TOKEN_SECRET must be at least %d bytes", token.MinSecretLength)
	}
	for _, s := range c.Token.PreviousSecrets {
		if s != "" && len(s) < token.MinSecretLength {
			return invalid("token.previous_secrets", "previous secrets must be at least %d bytes", token.MinSecretLength)
		}
	}
	if c.Token.AccessTTL < time.Second {
		return invalid("token.access_ttl", "ACCESS_TOKEN_TTL must be at least 1s, got %s", c.Token.AccessTTL)
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return invalid("token.refresh_ttl", "REFRESH_TOKEN_TTL (%s) must exceed ACCESS_TOKEN_TTL (%s)",
			c.Token.RefreshTTL, c.Token.AccessTTL)
	}
	if c.Token.Leeway < 0 {
		return invalid("token.leeway", "leeway must not be negative")
	}

	if err := c.Hash.HashParams.Validate(); err != nil {
		return invalid("hash", "invalid hash parameters: %v", err)
	}
	if c.Hash.MaxConcurrency < 0 {
		return invalid("hash.max_concurrency", "max concurrency must not be negative")
	}
	return nil
}
