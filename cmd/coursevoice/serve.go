// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/coursevoice/coursevoice/internal/auth"
	"github.com/coursevoice/coursevoice/internal/auth/postgres"
	"github.com/coursevoice/coursevoice/internal/config"
	"github.com/coursevoice/coursevoice/internal/httpapi"
	"github.com/coursevoice/coursevoice/internal/logging"
	"github.com/coursevoice/coursevoice/internal/tls"
	"github.com/coursevoice/coursevoice/pkg/errutil"
)

const (
	serviceName     = "coursevoice"
	shutdownTimeout = 10 * time.Second
)

// serveFlagKeys maps serve flags onto config keys.
var serveFlagKeys = map[string]string{
	"addr":         "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the authentication API",
		Long: `Serve the authentication API together with the metrics and health
endpoints. Runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig(cmd, serveFlagKeys, false)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, autoMigrate, cmd.ErrOrStderr(), deps)
		},
	}

	cmd.Flags().String("addr", ":8080", "API listen address")
	cmd.Flags().String("metrics-addr", ":9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.LogLevel(), w)
	slog.SetDefault(logger)
	return logger
}

// runServe wires every component and blocks until ctx is canceled, a
// termination signal arrives, or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, autoMigrate bool, logOut io.Writer, deps *Deps) error {
	deps = deps.withDefaults()
	logger := newLogger(cfg, logOut)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting coursevoice", "http_addr", cfg.HTTP.Addr, "version", version)

	var tlsConfig *cryptotls.Config
	if cfg.HTTP.TLSEnabled() {
		var err error
		if tlsConfig, err = tls.ServerConfig(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey); err != nil {
			return oops.Code("SERVE_FAILED").With("operation", "load tls").Wrap(err)
		}
	}

	if autoMigrate {
		if err := migrateUp(cfg.Database.URL, deps, logger); err != nil {
			return err
		}
	}

	db, err := deps.Connect(ctx, cfg.ConnectConfig(), logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "connect database").Wrap(err)
	}
	defer db.Close()

	users := postgres.NewUserRepository(db)
	resets := postgres.NewPasswordResetRepository(db)
	hasher := auth.NewArgon2idHasher()

	tokens, err := auth.NewTokenService(cfg.TokenConfig(), logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build token service").Wrap(err)
	}
	sessionMgr, err := auth.NewSessionManager(cfg.SessionConfig(), logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build session manager").Wrap(err)
	}
	authSvc, err := auth.NewAuthService(users, hasher, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build auth service").Wrap(err)
	}
	gate, err := auth.NewAccessGate(tokens, logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build access gate").Wrap(err)
	}

	sessionStore, closeStore, err := deps.OpenSessionStore(ctx, cfg.SessionStoreConfig(), logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "open session store").Wrap(err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("error closing session store", "error", err)
		}
	}()

	mailer, err := deps.NewMailer(cfg.MailConfig(), logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build mailer").Wrap(err)
	}
	defer func() {
		if err := mailer.Close(); err != nil {
			logger.Warn("error closing mailer", "error", err)
		}
	}()

	resetSvc, err := auth.NewPasswordResetService(users, resets, hasher, mailer, cfg.ResetConfig(), logger)
	if err != nil {
		return oops.Code("SERVE_FAILED").With("operation", "build reset service").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Background workers stop with ctx.
	var workers sync.WaitGroup
	workers.Go(func() {
		resetSvc.RunJanitor(ctx, cfg.Reset.PurgeInterval)
	})
	if mailer.Worker != nil {
		workers.Go(func() {
			if err := mailer.Worker.Run(ctx); err != nil {
				errutil.LogError(logger, "mail worker failed", err)
				cancel()
			}
		})
	}

	var (
		obsServer   ObservabilityServer
		observer    httpapi.RequestObserver
		metricsAddr string
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.NewObservabilityServer(cfg.Metrics.Addr, db.Ping, logger, auth.Collectors()...)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			cancel()
			workers.Wait()
			return oops.Code("SERVE_FAILED").With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		observer = obsServer.Metrics()
		metricsAddr = obsServer.Addr()
	}

	router, err := httpapi.NewRouter(httpapi.Deps{
		Auth:       authSvc,
		Tokens:     tokens,
		Sessions:   sessionMgr,
		Gate:       gate,
		Resets:     resetSvc,
		Store:      sessionStore,
		CookieName: cfg.Session.CookieName,
		Logger:     logger,
		Observer:   observer,
	}, httpapi.Options{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		cancel()
		workers.Wait()
		stopObservability(obsServer, logger)
		return oops.Code("SERVE_FAILED").With("operation", "build router").Wrap(err)
	}

	apiServer := httpapi.NewServer(cfg.HTTP.Addr, router, logger)
	if tlsConfig != nil {
		apiServer.UseTLS(tlsConfig)
	}
	apiErrCh, err := apiServer.Start()
	if err != nil {
		cancel()
		workers.Wait()
		stopObservability(obsServer, logger)
		return oops.Code("SERVE_FAILED").With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)

	logger.Info("coursevoice ready", "http_addr", apiServer.Addr(), "metrics_addr", metricsAddr)
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr(), metricsAddr)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer, logger)
	cancel()
	workers.Wait()

	logger.Info("shutdown complete")
	return nil
}

func stopObservability(server ObservabilityServer, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels the context when a server reports an error.
// It exits when either an error is received, the channel is closed, or the
// context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
