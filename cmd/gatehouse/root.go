// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the gatehouse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse - email and password authentication service",
		Long: `Gatehouse signs users up with an email and password, verifies
credentials, and issues short-lived access tokens with refresh tokens.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file path (default: .env if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadOptions collects the persistent config sources plus cmd's own flags.
// Without --config the per-user XDG config file is used if present.
func loadOptions(cmd *cobra.Command, environ func() []string) (config.LoadOptions, error) {
	file := configFile
	if file == "" {
		found, err := xdg.ConfigFile()
		if err != nil {
			return config.LoadOptions{}, err
		}
		file = found
	}
	return config.LoadOptions{
		ConfigFile: file,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
		Environ:    environ,
	}, nil
}
