// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package xdg resolves XDG Base Directory paths for gatehouse.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "gatehouse"

// ConfigDir returns $XDG_CONFIG_HOME/gatehouse, falling back to ~/.config.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/gatehouse, falling back to ~/.local/share.
func DataDir() (string, error) {
	return resolve("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ConfigFile returns the per-user config file if it exists, or "" when it
// does not.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("XDG_STAT_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

// SQLitePath returns the default SQLite database location.
func SQLitePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName+".db"), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

func resolve(envVar, homeRel string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", oops.Code("XDG_HOME_UNSET").With("env", envVar).Errorf("neither %s nor HOME is set", envVar)
		}
		base = filepath.Join(home, homeRel)
	}
	return filepath.Join(base, appName), nil
}
