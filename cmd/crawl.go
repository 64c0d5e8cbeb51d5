// Package cmd defines and implements the CLI commands for the wikititles executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/api"
	"github.com/JakeFAU/wikititles-crawler/internal/config"
	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/wikititles-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/wikititles-crawler/internal/mediawiki"
	"github.com/JakeFAU/wikititles-crawler/internal/progress"
	"github.com/JakeFAU/wikititles-crawler/internal/retry"
	"github.com/JakeFAU/wikititles-crawler/internal/worker"
)

// ErrNamespacesFailed is returned under --fail-on-error when any namespace
// ended without a result.
var ErrNamespacesFailed = errors.New("one or more namespaces failed")

type crawlOptions struct {
	failOnError  bool
	showProgress bool
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Counts the pages of every namespace",
		Long: `Discovers the site's namespaces, then paginates list=allpages for each one
on a bounded worker pool. Prints a per-namespace table, the grand total and a
failure summary. In the dev environment only the first namespaces are crawled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.failOnError, "fail-on-error", false, "exit non-zero when any namespace fails or is skipped")
	cmd.Flags().BoolVar(&opts.showProgress, "progress", false, "render a progress bar on stderr")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	ctx := cmd.Context()
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()
	plan := cfg.Resolve(runtime.NumCPU())

	runID, err := appInstance.IDGenerator().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	client, err := newClient(cfg, plan, logger)
	if err != nil {
		return err
	}
	namespaces, err := client.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("discover namespaces: %w", err)
	}
	namespaces = plan.Truncate(namespaces)
	logger.Info("namespaces discovered",
		zap.String("site", plan.BaseURL),
		zap.Int("count", len(namespaces)),
		zap.Int("parallelism", plan.Parallelism),
	)

	lister := worker.New(client, appInstance.Publisher(), appInstance.Clock(), worker.Config{
		ProgressInterval: cfg.Crawler.ProgressInterval,
		MaxBatches:       cfg.Crawler.MaxBatchesPerNamespace,
		CountMode:        crawler.CountMode(cfg.Crawler.CountMode),
		Topic:            cfg.Publisher.Topic,
		RunID:            runID,
	}, logger.Named("worker"))
	d := dispatcher.New(lister, appInstance.Clock(), dispatcher.Config{
		Parallelism: plan.Parallelism,
		RunID:       runID,
		Site:        plan.BaseURL,
	}, logger.Named("dispatcher"))

	stopSidecars := startSidecars(ctx, cmd, cfg, opts, d, len(namespaces), logger)
	report, runErr := d.Run(ctx, namespaces)
	stopSidecars()

	if err := writeReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if store := appInstance.ReportStore(); store != nil {
		// The run context may already be canceled; the partial report is still worth keeping.
		uri, err := store.SaveReport(context.WithoutCancel(ctx), report)
		if err != nil {
			logger.Error("report export failed", zap.Error(err))
		} else {
			logger.Info("report exported", zap.String("uri", uri))
		}
	}

	if runErr != nil {
		return runErr
	}
	if opts.failOnError && (len(report.Failures) > 0 || len(report.Skipped) > 0) {
		return fmt.Errorf("%w: %d failed, %d skipped", ErrNamespacesFailed, len(report.Failures), len(report.Skipped))
	}
	return nil
}

func newClient(cfg config.Config, plan config.Plan, logger *zap.Logger) (*mediawiki.Client, error) {
	exec := retry.New(cfg.RetryPolicy(), retry.WithLogger(logger.Named("retry")))
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	})
	client, err := mediawiki.New(plan.BaseURL, fetcher, exec, logger.Named("mediawiki"))
	if err != nil {
		return nil, fmt.Errorf("build mediawiki client: %w", err)
	}
	return client, nil
}

// startSidecars launches the status server and progress bar when enabled and
// returns a function that stops them and waits for them to exit.
func startSidecars(
	ctx context.Context,
	cmd *cobra.Command,
	cfg config.Config,
	opts *crawlOptions,
	d *dispatcher.Dispatcher,
	total int,
	logger *zap.Logger,
) func() {
	sideCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if cfg.Status.Addr != "" {
		server := api.NewServer(d, logger.Named("api"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(sideCtx, cfg.Status.Addr); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}
	if opts.showProgress {
		tracker := progress.NewTracker(cmd.ErrOrStderr(), total, d, 0)
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Run(sideCtx)
		}()
	}
	return func() {
		cancel()
		wg.Wait()
	}
}
