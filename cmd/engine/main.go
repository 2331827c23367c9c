package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/auth"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/persistence"
	"github.com/spec-kit/deadline-engine/internal/service"
	"github.com/spec-kit/deadline-engine/internal/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "engine",
		Short:         "Deadline and delegation engine for the service desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newSweepCommand(),
		newMigrateCommand(),
		newTokenCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the sweep scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			e, err := newEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer e.close()

			if cfg.Scheduler.Enabled {
				e.scheduler.Start(ctx)
				defer e.scheduler.Stop()
			}

			app := e.httpApp()
			worker.SafeGo(logger, "http-server", func() {
				if err := app.Listen(cfg.App.Addr()); err != nil {
					logger.Error("fiber listen", zap.Error(err))
					cancel()
				}
			})
			logger.Info("engine started", zap.String("addr", cfg.App.Addr()))

			waitForShutdown(ctx, logger)
			cancel()
			return app.Shutdown()
		},
	}
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <escalation|expiry|auto-close|outbox|approval-reminder>",
		Short:     "Run one sweep pass and print its report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{service.SweepEscalation, service.SweepExpiry, service.SweepAutoClose, service.SweepOutbox, service.SweepReminder},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			e, err := newEngine(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer e.close()

			report, err := e.scheduler.RunNamed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required to migrate")
			}
			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			return persistence.RunMigrations(cmd.Context(), pg.Pool, logger)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var subject, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			staffRole := domain.StaffRole(strings.ToUpper(role))
			switch staffRole {
			case domain.StaffRoleAdmin, domain.StaffRoleAgent, domain.StaffRoleApprover:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(subject, staffRole)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_at: %s\n", token, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Staff id the token is issued to")
	cmd.Flags().StringVar(&role, "role", string(domain.StaffRoleAdmin), "Role: ADMIN, AGENT or APPROVER")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func waitForShutdown(ctx context.Context, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("shutting down", zap.Error(ctx.Err()))
	}
}
