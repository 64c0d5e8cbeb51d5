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

	"github.com/JakeFAU/wikititles-crawler/internal/app"
	"github.com/JakeFAU/wikititles-crawler/internal/config"
	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

type appKeyType string

const appKey appKeyType = "app"

// App defines the services commands use. Tests inject their own.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Publisher() crawler.Publisher
	ReportStore() crawler.ReportStore
	IDGenerator() crawler.IDGenerator
	Clock() crawler.Clock
}

// newApp is the application factory, swapped out in tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	return app.New(ctx, cfgPath)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "wikititles",
		Short: "Counts every page title of a MediaWiki site, namespace by namespace.",
		Long: `wikititles discovers the namespaces of a MediaWiki site and paginates the
allpages listing of each one across a pool of concurrent workers, then reports
the page count per namespace and the grand total.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables use the CRAWLER_ prefix)")
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newNamespacesCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
