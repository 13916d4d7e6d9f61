// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

var testSecret = strings.Repeat("s", 32)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// noEnvFile points EnvFile at an empty dotenv so a stray .env in the
// package directory cannot leak in.
func noEnvFile(t *testing.T) string {
	return writeFile(t, "empty.env", "")
}

func TestLoad_DefaultsWithSecret(t *testing.T) {
	cfg, err := Load(LoadOptions{
		EnvFile: noEnvFile(t),
		Environ: environ("TOKEN_SECRET="+testSecret, "STORE_DRIVER=memory", "UNRELATED=1"),
	})
	require.NoError(t, err)

	want := Default()
	want.Token.Secret = testSecret
	want.Store.Driver = DriverMemory
	assert.Equal(t, want, cfg)
}

func TestLoad_EnvVariables(t *testing.T) {
	cfg, err := Load(LoadOptions{
		EnvFile: noEnvFile(t),
		Environ: environ(
			"TOKEN_SECRET="+testSecret,
			"TOKEN_PREVIOUS_SECRETS= "+strings.Repeat("p", 32)+" , ,"+strings.Repeat("q", 32),
			"ACCESS_TOKEN_TTL=30",
			"REFRESH_TOKEN_TTL=36h",
			"TOKEN_LEEWAY=2s",
			"HASH_MEMORY_KIB=19456",
			"HASH_ITERATIONS=2",
			"HASH_PARALLELISM=1",
			"HASH_MAX_CONCURRENCY=3",
			"DATABASE_URL=postgres://u:p@db:5432/gatehouse",
			"COOKIE_SECURE=false",
			"LOG_LEVEL=debug",
		),
	})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Token.AccessTTL, "bare integers are minutes")
	assert.Equal(t, 36*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, 2*time.Second, cfg.Token.Leeway)
	assert.Equal(t, []string{strings.Repeat("p", 32), strings.Repeat("q", 32)}, cfg.Token.PreviousSecrets)
	assert.Equal(t, uint32(19456), cfg.Hash.Memory)
	assert.Equal(t, uint32(2), cfg.Hash.Iterations)
	assert.Equal(t, uint8(1), cfg.Hash.Parallelism)
	assert.Equal(t, uint32(16), cfg.Hash.SaltLength, "unset hash fields keep defaults")
	assert.Equal(t, 3, cfg.Hash.MaxConcurrency)
	assert.Equal(t, "postgres://u:p@db:5432/gatehouse", cfg.Store.DatabaseURL)
	assert.False(t, cfg.Cookie.Secure)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Precedence(t *testing.T) {
	yamlFile := writeFile(t, "gatehouse.yaml", `
http:
  addr: ":7000"
log:
  format: text
  level: warn
store:
  driver: sqlite
  sqlite_path: /var/lib/gatehouse/file.db
token:
  secret: `+testSecret+`
  access_ttl: 10m
  refresh_ttl: 48h
`)
	envFile := writeFile(t, "test.env", "HTTP_ADDR=:7100\nLOG_LEVEL=error\nACCESS_TOKEN_TTL=20\n")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--http-addr", ":7300"}))

	cfg, err := Load(LoadOptions{
		ConfigFile: yamlFile,
		EnvFile:    envFile,
		Flags:      fs,
		Environ:    environ("HTTP_ADDR=:7200", "ACCESS_TOKEN_TTL=25m"),
	})
	require.NoError(t, err)

	assert.Equal(t, ":7300", cfg.HTTP.Addr, "flag beats env, dotenv and file")
	assert.Equal(t, 25*time.Minute, cfg.Token.AccessTTL, "env beats dotenv")
	assert.Equal(t, "error", cfg.Log.Level, "dotenv beats file")
	assert.Equal(t, "text", cfg.Log.Format, "file beats default")
	assert.Equal(t, 48*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver, "unset flag does not override file")
	assert.Equal(t, "/var/lib/gatehouse/file.db", cfg.Store.SQLitePath)
}

func TestLoad_BareMinutesFromYAML(t *testing.T) {
	yamlFile := writeFile(t, "gatehouse.yaml", `
token:
  secret: `+testSecret+`
  access_ttl: 15
  refresh_ttl: "1440"
store:
  driver: memory
`)

	cfg, err := Load(LoadOptions{ConfigFile: yamlFile, EnvFile: noEnvFile(t), Environ: environ()})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.Token.RefreshTTL)
}

func TestLoad_MissingFiles(t *testing.T) {
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"), EnvFile: noEnvFile(t)})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")

	_, err = Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_DefaultEnvFileIsOptional(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(LoadOptions{Environ: environ("TOKEN_SECRET="+testSecret, "STORE_DRIVER=memory")})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(DefaultEnvFile, []byte("STORE_DRIVER=sqlite\n"), 0o600))
	cfg, err := Load(LoadOptions{Environ: environ("TOKEN_SECRET=" + testSecret)})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(LoadOptions{
		EnvFile: noEnvFile(t),
		Environ: environ("TOKEN_SECRET="+testSecret, "STORE_DRIVER=memory", "ACCESS_TOKEN_TTL=0"),
	})
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "key", "token.access_ttl")
}

func TestRead_SkipsValidation(t *testing.T) {
	cfg, err := Read(LoadOptions{
		EnvFile: noEnvFile(t),
		Environ: environ("DATABASE_URL=postgres://localhost/gatehouse"),
	})
	require.NoError(t, err)
	assert.Empty(t, cfg.Token.Secret)
	assert.Equal(t, "postgres://localhost/gatehouse", cfg.Store.DatabaseURL)
	assert.Error(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Token.Secret = testSecret
		c.Store.Driver = DriverMemory
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"postgres without url", func(c *Config) { c.Store.Driver = DriverPostgres }, "store.database_url"},
		{"sqlite without path", func(c *Config) { c.Store.Driver, c.Store.SQLitePath = DriverSQLite, "" }, "store.sqlite_path"},
		{"negative attempts", func(c *Config) { c.Store.ConnectAttempts = -1 }, "store.connect_attempts"},
		{"short secret", func(c *Config) { c.Token.Secret = "short" }, "token.secret"},
		{"short previous secret", func(c *Config) { c.Token.PreviousSecrets = []string{"short"} }, "token.previous_secrets"},
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }, "token.access_ttl"},
		{"refresh not longer", func(c *Config) { c.Token.RefreshTTL = c.Token.AccessTTL }, "token.refresh_ttl"},
		{"negative leeway", func(c *Config) { c.Token.Leeway = -time.Second }, "token.leeway"},
		{"bad hash params", func(c *Config) { c.Hash.Iterations = 0 }, "hash"},
		{"negative concurrency", func(c *Config) { c.Hash.MaxConcurrency = -1 }, "hash.max_concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}
}

func TestTokenConfig_Keys(t *testing.T) {
	prev := strings.Repeat("p", 32)
	tc := TokenConfig{Secret: testSecret, PreviousSecrets: []string{prev, testSecret, ""}}

	signing := tc.SigningKey()
	assert.Equal(t, []byte(testSecret), signing.Secret)

	verify := tc.VerifyOnlyKeys()
	require.Len(t, verify, 1, "the active secret and blanks are skipped")
	assert.Equal(t, []byte(prev), verify[0].Secret)
	assert.NotEqual(t, signing.ID, verify[0].ID)
}

func TestEnvProvider_IgnoresUnknownVariables(t *testing.T) {
	m, err := envProvider(map[string]string{"PATH": "/bin", "HTTP_ADDR": ":1"}).Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"http": map[string]any{"addr": ":1"}}, m)
}
