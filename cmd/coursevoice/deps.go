// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/gin-contrib/sessions"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/coursevoice/coursevoice/internal/mail"
	"github.com/coursevoice/coursevoice/internal/observability"
	"github.com/coursevoice/coursevoice/internal/sessionstore"
	"github.com/coursevoice/coursevoice/internal/store"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Connect opens the database.
	// Default: store.Connect
	Connect func(ctx context.Context, cfg store.ConnectConfig, logger *slog.Logger) (Database, error)

	// NewMigrator creates a schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (Migrator, error)

	// OpenSessionStore builds the cookie session store.
	// Default: sessionstore.Open
	OpenSessionStore func(ctx context.Context, cfg sessionstore.Config, logger *slog.Logger) (sessions.Store, func() error, error)

	// NewMailer builds the outbound mail sender.
	// Default: mail.New
	NewMailer func(cfg mail.Config, logger *slog.Logger) (*mail.Mailer, error)

	// NewObservabilityServer creates the metrics and health server.
	// Default: observability.NewServer
	NewObservabilityServer func(addr string, ready observability.ReadinessChecker, logger *slog.Logger, extra ...prometheus.Collector) ObservabilityServer

	// ReadPassword reads a password without echo from the terminal fd.
	// Default: term.ReadPassword
	ReadPassword func(fd int) ([]byte, error)

	// OnReady is called with the bound API and metrics addresses once serve
	// accepts traffic.
	OnReady func(apiAddr, metricsAddr string)
}

// Database is the subset of *pgxpool.Pool the commands use.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// withDefaults returns a copy of d with every nil field set.
func (d *Deps) withDefaults() *Deps {
	out := &Deps{}
	if d != nil {
		*out = *d
	}
	if out.Connect == nil {
		out.Connect = func(ctx context.Context, cfg store.ConnectConfig, logger *slog.Logger) (Database, error) {
			pool, err := store.Connect(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.OpenSessionStore == nil {
		out.OpenSessionStore = sessionstore.Open
	}
	if out.NewMailer == nil {
		out.NewMailer = mail.New
	}
	if out.NewObservabilityServer == nil {
		out.NewObservabilityServer = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger, extra ...prometheus.Collector) ObservabilityServer {
			return observability.NewServer(addr, ready, logger, extra...)
		}
	}
	if out.ReadPassword == nil {
		out.ReadPassword = term.ReadPassword
	}
	return out
}
