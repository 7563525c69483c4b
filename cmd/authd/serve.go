// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 rust-auth-back Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/DuncanCos/rust-auth-back/internal/auth"
	authpg "github.com/DuncanCos/rust-auth-back/internal/auth/postgres"
	"github.com/DuncanCos/rust-auth-back/internal/config"
	"github.com/DuncanCos/rust-auth-back/internal/httpapi"
	"github.com/DuncanCos/rust-auth-back/internal/logging"
	"github.com/DuncanCos/rust-auth-back/internal/observability"
	"github.com/DuncanCos/rust-auth-back/internal/session"
	"github.com/DuncanCos/rust-auth-back/internal/store"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication HTTP server",
		Long: `Start the HTTP server exposing registration, login, logout, and the
user directory, plus a separate metrics/health listener.`,
		RunE: runServe,
	}

	// Flag names mirror config keys so changed flags override the file.
	flags := cmd.Flags()
	flags.String("server.listen", ":3000", "HTTP API listen address")
	flags.String("metrics.listen", ":9090", "metrics/health listen address")
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.Duration("session.idle_timeout", time.Hour, "session idle expiry")
	flags.Duration("session.sweep_interval", time.Minute, "expired session sweep cadence")
	flags.String("session.cookie_name", session.DefaultCookieName, "session cookie name")
	flags.Bool("session.cookie_secure", false, "mark session cookie Secure")
	flags.String("log.level", "info", "log level (debug, info, warn, error)")
	flags.String("log.format", "text", "log format (text, json)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("authd", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := authpg.NewUserRepository(pool)

	authSvc, err := auth.NewService(users, auth.NewArgon2idHasher(), logger)
	if err != nil {
		return err
	}

	sessions := session.NewMemoryStore(
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
	)

	obs := observability.NewServer(cfg.Metrics.Listen, func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obs.RegisterSessionGauge(sessions.Len)

	sweeper := session.NewSweeper(sessions, logger,
		session.WithSweepInterval(cfg.Session.SweepInterval),
		session.WithSweptCallback(func(removed int) {
			obs.Metrics().SweptSessions.Add(float64(removed))
		}),
	)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	api, err := httpapi.NewServer(authSvc, users, sessions, session.CookieOptions{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
	}, obs.Metrics(), logger)
	if err != nil {
		return err
	}

	obsErrs, err := obs.Start()
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := obs.Stop(stopCtx); stopErr != nil {
			logger.Warn("metrics server shutdown failed", "error", stopErr)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErrs := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Listen)
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			srvErrs <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-srvErrs:
		return oops.Code("SERVER_FAILED").With("addr", cfg.Server.Listen).Wrap(err)
	case err = <-obsErrs:
		return oops.Code("METRICS_SERVER_FAILED").With("addr", cfg.Metrics.Listen).Wrap(err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").Wrap(err)
	}

	logger.Info("server stopped")
	return nil
}
