package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flatex_bot/internal/chat"
	"flatex_bot/internal/config"
	"flatex_bot/internal/handlers"
	"flatex_bot/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd creates the root command. Without a subcommand it serves.
func newRootCmd() *cobra.Command {
	cfg := config.New()

	rootCmd := &cobra.Command{
		Use:           "bot",
		Short:         "Trade on flatex from a Matrix room",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newExecCmd(cfg))
	rootCmd.AddCommand(newAuditCmd(cfg))
	return rootCmd
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}
}

// newExecCmd runs one command line against the stored session and prints
// the replies as plain text.
func newExecCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command line>",
		Short: "Run a chat command once",
		Example: `  bot exec balance
  bot exec "orders all -n 5 && securities"`,
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			app, err := newApp(cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			var out chat.Buffer
			app.router.Execute(cmd.Context(), "cli", strings.Join(args, " "), &out)
			for _, m := range out.Messages() {
				body := m.Body
				if m.Format == "html" {
					body = chat.PlainText(body)
				}
				fmt.Fprintln(cmd.OutOrStdout(), body)
			}
			return nil
		},
	}
}

func newAuditCmd(cfg *config.Config) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the order audit log",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show the newest audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(app *App) error {
				entries, err := app.audit.GetRecent(limit)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintln(cmd.OutOrStdout(), services.FormatEntry(e))
				}
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "n", "n", 20, "number of entries")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete old audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(app *App) error {
				n, err := app.audit.DeleteOlderThan(olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d entries\n", n)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "minimum age of deleted entries")

	auditCmd.AddCommand(list, prune)
	return auditCmd
}

func withApp(cfg *config.Config, fn func(app *App) error) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := newApp(cfg, logger, false)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return fn(app)
}

func serve(cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.manager.Connect(ctx)
	if app.matrix != nil {
		if err := app.matrix.Connect(ctx); err != nil {
			app.Close(context.Background())
			return fmt.Errorf("connecting to matrix: %w", err)
		}
		logger.Info("matrix connected", zap.String("room", cfg.MatrixRoomID))
	} else {
		logger.Warn("matrix not configured, commands are only reachable through the webhook")
	}

	deps := handlers.NewDependencies().
		WithCommands(app.router).
		WithStatus(app.manager).
		WithAuditService(app.audit).
		WithWebhookToken(cfg.WebhookToken).
		WithLogger(logger)

	// Authorize waits for a second request carrying the code.
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handlers.NewRouter(ctx, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AuthTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", "http://"+cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server forced to shutdown", zap.Error(shutdownErr))
	}
	app.Close(shutdownCtx)
	logger.Info("server stopped")
	return err
}
