// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hearthgate/hearthgate/internal/authz"
	"github.com/hearthgate/hearthgate/internal/authz/audit"
	"github.com/hearthgate/hearthgate/internal/authz/store"
	"github.com/hearthgate/hearthgate/internal/httpapi"
	"github.com/hearthgate/hearthgate/internal/logging"
	"github.com/hearthgate/hearthgate/internal/observability"
)

const defaultListenAddr = ":8080"

// NewServeCmd creates the serve subcommand: the decision API plus the
// metrics and health endpoints.
func NewServeCmd() *cobra.Command {
	var (
		listenAddr       string
		requirementsFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization decision service",
		Long: `Run the HTTP decision service. Grants are loaded from the configured
PostgreSQL database per request; permission requirements per message type
come from an optional YAML table (--requirements).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.Setup("hearthgate", cmd.Root().Version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

			databaseURL := cfg.Database.URL
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return oops.Code("CONFIG_INVALID").Errorf("database.url or DATABASE_URL is required")
			}

			requirements, err := loadRequirements(requirementsFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := pgxpool.New(ctx, databaseURL)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").Wrap(err)
			}
			defer pool.Close()

			// The database may still be coming up alongside this process.
			backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
			err = retry.Do(ctx, backoff, func(ctx context.Context) error {
				if pingErr := pool.Ping(ctx); pingErr != nil {
					return retry.RetryableError(pingErr)
				}
				return nil
			})
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").Wrap(err)
			}

			var ready atomic.Bool
			obs := observability.NewServer(cfg.Metrics.Addr, ready.Load)
			obsErr, err := obs.Start()
			if err != nil {
				return err
			}
			defer stopServer(obs.Stop, "observability", logger)

			algorithm, err := authz.ParseAlgorithm(cfg.Authz.Algorithm)
			if err != nil {
				return err
			}
			authorizer, err := authz.NewAuthorizer(algorithm, authz.Options{
				Metrics:            authz.NewMetrics(obs.Registry()),
				Requirements:       requirements,
				Logger:             logger,
				Audit:              audit.NewLogger(audit.Mode(cfg.Authz.AuditMode), logger),
				RequirePlaceHeader: cfg.Authz.RequirePlaceHeader,
				EnforceSelfCheck:   cfg.Authz.EnforceSelfCheck,
			})
			if err != nil {
				return err
			}

			loader := store.NewContextLoader(store.NewPostgresStore(pool))
			api := httpapi.NewServer(listenAddr, authorizer, loader, logger)
			apiErr, err := api.Start()
			if err != nil {
				return err
			}
			defer stopServer(api.Stop, "decision", logger)

			ready.Store(true)
			logger.Info("hearthgate serving",
				"listen", api.Addr(),
				"metrics", obs.Addr(),
				"algorithm", string(algorithm))

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
				return nil
			case err := <-apiErr:
				return oops.Wrapf(err, "decision server failed")
			case err := <-obsErr:
				return oops.Wrapf(err, "observability server failed")
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", defaultListenAddr, "decision API listen address")
	cmd.Flags().StringVar(&requirementsFile, "requirements", "", "YAML file mapping message types to required permissions")

	return cmd
}

// loadRequirements reads a YAML table of message type to permission strings
// and compiles it. An empty path yields a nil registry, which fails open
// for every message type.
func loadRequirements(path string) (authz.RequirementRegistry, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("REQUIREMENTS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	var entries map[string][]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, oops.Code("REQUIREMENTS_PARSE_FAILED").With("path", path).Wrap(err)
	}
	table := make(map[string][]authz.Permission, len(entries))
	for messageType, perms := range entries {
		parsed, err := authz.ParsePermissions(perms)
		if err != nil {
			return nil, oops.With("messageType", messageType).Wrap(err)
		}
		table[messageType] = parsed
	}
	return authz.NewStaticRequirementRegistry(table)
}

func stopServer(stop func(context.Context) error, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("server shutdown failed", "server", name, "error", err)
	}
}
