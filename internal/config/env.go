// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package config

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envKeys maps recognized environment variables to config keys. Anything
// else in the environment is ignored.
var envKeys = map[string]string{
	"HTTP_ADDR":              "http.addr",
	"METRICS_ADDR":           "metrics.addr",
	"LOG_FORMAT":             "log.format",
	"LOG_LEVEL":              "log.level",
	"STORE_DRIVER":           "store.driver",
	"DATABASE_URL":           "store.database_url",
	"SQLITE_PATH":            "store.sqlite_path",
	"STORE_CONNECT_ATTEMPTS": "store.connect_attempts",
	"TOKEN_SECRET":           "token.secret",
	"TOKEN_PREVIOUS_SECRETS": "token.previous_secrets",
	"ACCESS_TOKEN_TTL":       "token.access_ttl",
	"REFRESH_TOKEN_TTL":      "token.refresh_ttl",
	"TOKEN_LEEWAY":           "token.leeway",
	"TOKEN_ISSUER":           "token.issuer",
	"HASH_MEMORY_KIB":        "hash.memory_kib",
	"HASH_ITERATIONS":        "hash.iterations",
	"HASH_PARALLELISM":       "hash.parallelism",
	"HASH_MAX_CONCURRENCY":   "hash.max_concurrency",
	"COOKIE_SECURE":          "cookie.secure",
	"COOKIE_DOMAIN":          "cookie.domain",
}

// minuteKeys accept a bare integer as a number of minutes, from any source.
var minuteKeys = []string{"token.access_ttl", "token.refresh_ttl"}

// applyMinuteKeys rewrites bare integers under minuteKeys as minute
// durations after every source is merged.
func applyMinuteKeys(k *koanf.Koanf) error {
	for _, key := range minuteKeys {
		n, ok := bareInteger(k.Get(key))
		if !ok {
			continue
		}
		if err := k.Set(key, strconv.FormatInt(n, 10)+"m"); err != nil {
			return err
		}
	}
	return nil
}

func bareInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float64:
		return int64(n), n == math.Trunc(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// flagKeys maps serve flags to config keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"store-driver": "store.driver",
	"database-url": "store.database_url",
	"sqlite-path":  "store.sqlite_path",
}

// RegisterFlags adds the flags Load understands to fs. Their defaults are
// display-only; unset flags never override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store-driver", d.Store.Driver, "user store (postgres, sqlite or memory)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("sqlite-path", d.Store.SQLitePath, "SQLite database file")
}

func flagKey(f *pflag.Flag) (string, any) {
	key, ok := flagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	return key, f.Value.String()
}

// mapProvider is a koanf.Provider over already-translated values.
type mapProvider map[string]any

// envProvider translates recognized variables from vars into nested config
// keys.
func envProvider(vars map[string]string) mapProvider {
	out := mapProvider{}
	for name, value := range vars {
		key, ok := envKeys[name]
		if !ok {
			continue
		}
		section, field, _ := strings.Cut(key, ".")
		inner, _ := out[section].(map[string]any)
		if inner == nil {
			inner = map[string]any{}
			out[section] = inner
		}
		inner[field] = envValue(key, value)
	}
	return out
}

func envValue(key, value string) any {
	value = strings.TrimSpace(value)
	if key == "token.previous_secrets" {
		var secrets []any
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				secrets = append(secrets, s)
			}
		}
		return secrets
	}
	return value
}

// ReadBytes is unsupported; mapProvider only yields parsed maps.
func (mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: map provider does not support ReadBytes")
}

// Read returns the nested map.
func (p mapProvider) Read() (map[string]any, error) {
	return p, nil
}
