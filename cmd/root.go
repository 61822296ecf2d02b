// Package cmd defines and implements the CLI commands for the appcrawler executable.
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

	"github.com/JakeFAU/storefront-review-crawler/internal/app"
	"github.com/JakeFAU/storefront-review-crawler/internal/config"
	"github.com/JakeFAU/storefront-review-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to inject fakes.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "appcrawler",
		Short: "Harvests application metadata and user comments from a storefront listing.",
		Long: `appcrawler walks a storefront listing page, renders every application page
in headless Chrome, expands the full comment list and appends the results to
an Excel workbook. Targets that fail are written to a CSV failure ledger.`,
		SilenceUsage: true,

		// Build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			logOpts := logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Stacktraces: cfg.Logging.Stacktraces,
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
				MaxAgeDays:  cfg.Logging.MaxAgeDays,
				Compress:    cfg.Logging.Compress,
			}
			if cfg.Logging.File {
				logOpts.FilePath = cfg.LogFilePath()
			}
			logger, err := logging.New(logOpts)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, err := resolveApp(cmd.Context()); err == nil {
				appInstance.Close()
				_ = appInstance.Logger().Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON); env vars use the APPCRAWLER_ prefix")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newProcessCmd())
	cmd.AddCommand(newLinksCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run; targets
// in flight are abandoned and recorded in the failure ledger.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
