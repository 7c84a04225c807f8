// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the cobra commands of the authguard CLI.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/authguard/pkg/api"
	"github.com/stacklok/authguard/pkg/config"
	"github.com/stacklok/authguard/pkg/engine"
	"github.com/stacklok/authguard/pkg/logger"
	"github.com/stacklok/authguard/pkg/versions"
)

// NewRootCmd creates the root command of the authguard CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "authguard",
		DisableAutoGenTag: true,
		Short:             "Token exchange and OIDC server",
		Long: `authguard exchanges one credential for another: basic credentials for
sessions, access tokens, authorization codes or passwordless tokens, codes and
refresh tokens for new tokens, and applications for API keys. It serves the
exchanges together with an OIDC authorization code flow over HTTP.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the authguard configuration file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newExchangeCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// loadConfig loads the file named by --config, with environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		logger.Debugf("Loading configuration from: %s", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	return cfg, nil
}

// newEngine loads the configuration and builds the engine. The caller
// closes the returned engine.
func newEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return engine.New(cmd.Context(), cfg, engine.WithVersion(versions.GetVersionInfo().Version))
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the authguard HTTP server",
		Long: `Start the HTTP server. It runs until interrupted and then drains in-flight
requests for at most server.shutdownTimeout.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(context.WithoutCancel(cmd.Context())); err != nil {
			logger.Warnw("failed to release engine resources", "error", err)
		}
	}()
	e.Telemetry().SetGlobal()

	return api.Serve(cmd.Context(), e)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations",
		Long:  "Apply pending schema migrations to the database at storage.sqlite.path.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applied, version, err := engine.Migrate(cmd.Context(), cfg.Storage.SQLite.Path)
			if err != nil {
				return err
			}
			cmd.Printf("Applied %d migrations, schema version %d\n", applied, version)
			return nil
		},
	}
}
