// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/token"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API that handles signup, login and token refresh,
plus the metrics and health endpoints. SIGHUP reloads the token secret.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.DirectoryOpener == nil {
		deps.DirectoryOpener = openDirectory
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, checker, logger)
		}
	}
	if deps.Environ == nil {
		deps.Environ = os.Environ
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loadOpts, err := loadOptions(cmd, deps.Environ)
	if err != nil {
		return err
	}
	cfg, err := config.Load(loadOpts)
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	logger := logging.SetDefault(logging.Options{
		Service: "gatehouse",
		Version: cmd.Root().Version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	logger.Info("starting gatehouse",
		"http_addr", cfg.HTTP.Addr,
		"store_driver", cfg.Store.Driver,
	)

	dir, err := deps.DirectoryOpener(ctx, cfg.Store, logger)
	if err != nil {
		return oops.With("operation", "open user store").Wrap(err)
	}
	defer func() {
		if closeErr := dir.Close(); closeErr != nil {
			errutil.LogWarn(context.Background(), logger, "error closing user store", closeErr)
		}
	}()

	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, dir.Ping, logger)
	metrics := obsServer.Metrics()

	signer, err := token.New(cfg.Token.SigningKey(),
		token.WithVerifyOnlyKeys(cfg.Token.VerifyOnlyKeys()...),
		token.WithLeeway(cfg.Token.Leeway),
		token.WithIssuer(cfg.Token.Issuer),
	)
	if err != nil {
		return oops.With("operation", "create token signer").Wrap(err)
	}

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hash.HashParams)
	if err != nil {
		return oops.With("operation", "create password hasher").Wrap(err)
	}

	svc, err := auth.NewService(dir, hasher, signer, cfg.Token.Session(),
		auth.WithLogger(logger),
		auth.WithHashLimiter(auth.NewHashLimiter(cfg.Hash.MaxConcurrency, metrics.ObserveHashWait)),
	)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	api, err := httpapi.New(svc, httpapi.Options{
		Logger:       logger,
		Metrics:      metrics,
		CookieSecure: cfg.Cookie.Secure,
		CookieDomain: cfg.Cookie.Domain,
	})
	if err != nil {
		return oops.With("operation", "create HTTP server").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiErrChan, err := api.Start(cfg.HTTP.Addr)
	if err != nil {
		return oops.With("operation", "start HTTP server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "http", logger)
	logger.Info("HTTP server started", "addr", api.Addr())

	obsStarted := false
	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if stopErr := api.Stop(shutdownCtx); stopErr != nil {
				errutil.LogWarn(context.Background(), logger, "failed to stop HTTP server during cleanup", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		obsStarted = true
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	cmd.Println("Gatehouse started")
	logger.Info("gatehouse ready", "key_id", signer.KeyID())

wait:
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				reloadSigningKey(loadOpts, signer, metrics, logger)
				continue
			}
			logger.Info("received shutdown signal", "signal", sig.String())
			break wait
		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			break wait
		}
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := api.Stop(shutdownCtx); err != nil {
		errutil.LogWarn(context.Background(), logger, "error stopping HTTP server", err)
	}
	if obsStarted {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogWarn(context.Background(), logger, "error stopping observability server", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// keyRotator is the part of token.Signer a reload touches.
type keyRotator interface {
	KeyID() string
	SetKeys(signing token.Key, verifyOnly []token.Key) (bool, error)
}

// reloadSigningKey re-reads configuration and publishes the configured
// signing and verify-only keys. A replaced signing key keeps verifying so
// live tokens stay valid; previous secrets dropped from the config stop
// verifying. Other settings need a restart. It reports whether the signing
// key changed.
func reloadSigningKey(opts config.LoadOptions, signer keyRotator, metrics *observability.Metrics, logger *slog.Logger) bool {
	cfg, err := config.Load(opts)
	if err != nil {
		errutil.LogError(context.Background(), logger, "config reload failed; keeping current signing keys", err)
		metrics.KeyRotations.WithLabelValues(observability.ResultInvalid).Inc()
		return false
	}

	next := cfg.Token.SigningKey()
	verifyOnly := cfg.Token.VerifyOnlyKeys()
	previous := signer.KeyID()
	rotated, err := signer.SetKeys(next, verifyOnly)
	if err != nil {
		errutil.LogError(context.Background(), logger, "signing key reload failed", err)
		metrics.KeyRotations.WithLabelValues(observability.ResultInvalid).Inc()
		return false
	}
	if !rotated {
		logger.Info("config reloaded; signing key unchanged", "key_id", next.ID, "verify_only_keys", len(verifyOnly))
		return false
	}
	metrics.KeyRotations.WithLabelValues(observability.ResultSuccess).Inc()
	logger.Info("signing key rotated", "key_id", next.ID, "previous_key_id", previous, "verify_only_keys", len(verifyOnly))
	return true
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			errutil.LogError(ctx, logger, "server error, triggering shutdown", err, "server", serverName)
			cancel()
		}
	case <-ctx.Done():
	}
}
