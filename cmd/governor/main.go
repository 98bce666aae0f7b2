// Package main is the entry point for the governor binary.
// It serves the governance API and carries the operator tooling around it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/app"
	"github.com/upb/ai-governance/auth"
	"github.com/upb/ai-governance/config"
	"github.com/upb/ai-governance/internal/observability"
	"github.com/upb/ai-governance/repositories/postgres"
	"github.com/upb/ai-governance/routes"
	"github.com/upb/ai-governance/services/registry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "governor",
		Short: "AI usage governance engine",
		Long: `Governs tenant use of AI models: quota admission, guardrail policies,
fallback routing and the usage ledger.

Configuration is read from the environment (and a .env file when present).`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newInitSchemaCmd(),
		newCheckCatalogCmd(),
		newIssueTokenCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the governance HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initSchema, err := cmd.Flags().GetBool("init-schema")
			if err != nil {
				return fmt.Errorf("failed to get init-schema flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, initSchema)
		},
	}
	cmd.Flags().Bool("init-schema", false, "Create missing tables before serving")
	return cmd
}

func runServe(ctx context.Context, initSchema bool) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if initSchema {
		if err := createSchema(ctx, cfg, logger); err != nil {
			return err
		}
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := deps.StartWorkers(ctx); err != nil {
		_ = deps.Close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("governance API listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("tls", cfg.Server.TLS.Enabled))
		if cfg.Server.TLS.Enabled {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}
	return serveErr
}

func newInitSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the governance tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.New(ctx)
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Observability)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return createSchema(ctx, cfg, logger)
		},
	}
}

func createSchema(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgres.NewDB(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.InitSchema(ctx)
}

func newCheckCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-catalog <path>",
		Short: "Validate a YAML model catalog without loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkCatalog(cmd.OutOrStdout(), args[0])
		},
	}
}

func checkCatalog(out io.Writer, path string) error {
	list, err := registry.LoadCatalogFile(path)
	if err != nil {
		return err
	}

	defaults := 0
	for _, m := range list {
		marker := ""
		if m.IsDefault {
			marker = " (default)"
			defaults++
		}
		fmt.Fprintf(out, "%-32s %-12s %-10s in=%.4f out=%.4f%s\n",
			m.Key, m.Provider, m.Status, m.InputCostPer1K, m.OutputCostPer1K, marker)
	}
	if defaults > 1 {
		return fmt.Errorf("catalog marks %d models as default", defaults)
	}
	fmt.Fprintf(out, "%d models OK\n", len(list))
	return nil
}

func newIssueTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-token <subject>",
		Short: "Sign an API token for an operator or gateway",
		Long: `Sign an HS256 bearer token with JWT_SECRET.

Example:
  governor issue-token ops@example.com --role platform_admin --ttl 8h
  governor issue-token edge-gateway --role ai_gateway --ttl 720h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := cmd.Flags().GetStringSlice("role")
			if err != nil {
				return fmt.Errorf("failed to get role flag: %w", err)
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return fmt.Errorf("failed to get ttl flag: %w", err)
			}
			issuer, err := cmd.Flags().GetString("issuer")
			if err != nil {
				return fmt.Errorf("failed to get issuer flag: %w", err)
			}
			return issueToken(cmd.OutOrStdout(), os.Getenv("JWT_SECRET"), issuer, args[0], roles, ttl)
		},
	}
	cmd.Flags().StringSlice("role", nil, "Role to grant (repeatable)")
	cmd.Flags().Duration("ttl", 8*time.Hour, "Token lifetime")
	cmd.Flags().String("issuer", envOrDefault("JWT_ISSUER", "ai-governance"), "Token issuer")
	return cmd
}

func issueToken(out io.Writer, secret, issuer, subject string, roles []string, ttl time.Duration) error {
	if len(roles) == 0 {
		return errors.New("at least one --role is required")
	}
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}
	token, err := auth.NewIssuer(secret, issuer).Issue(strings.TrimSpace(subject), roles, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
