// Package cmd defines the reddit-collector CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/reddit-collector/internal/app"
	"github.com/JakeFAU/reddit-collector/internal/config"
	"github.com/JakeFAU/reddit-collector/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// Runner is the part of *app.App the commands use. Tests inject fakes.
type Runner interface {
	Execute(ctx context.Context, mode app.Mode) error
	Close(ctx context.Context)
}

// newApp builds the Runner for a loaded config.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.Build(ctx, cfg, logger)
}

// newLogger builds the process logger.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     cfg.Tracing.ServiceName,
	})
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "reddit-collector",
		Short: "Collects subreddit submissions, comments and authors and loads them into Postgres.",
		Long: `reddit-collector reads the configured subreddit listings, expands every
comment tree, resolves each distinct author once and writes the results as
JSON artifacts. The ingest phase loads those artifacts into Postgres in
dependency order: authors, then submissions, then comments.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			runner, err := newApp(cmd.Context(), cfg, logging.ForRun(logger, cmd.Name()))
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, runner))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if runner, ok := cmd.Context().Value(appKey).(Runner); ok && runner != nil {
				runner.Close(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML, JSON or TOML config file")

	cmd.AddCommand(
		newModeCmd(app.ModeCollect, "Collect listings, comments and authors into artifacts"),
		newModeCmd(app.ModeIngest, "Load the latest artifacts into Postgres"),
		newModeCmd(app.ModeRun, "Collect, then ingest the collected records"),
	)
	return cmd
}

func resolveApp(ctx context.Context) (Runner, error) {
	runner, ok := ctx.Value(appKey).(Runner)
	if !ok || runner == nil {
		return nil, errors.New("application not initialized")
	}
	return runner, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "reddit-collector:", err)
		os.Exit(1)
	}
}
