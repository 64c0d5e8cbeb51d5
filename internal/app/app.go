// Package app initializes and holds the long-lived services of one crawler
// process, acting as a dependency injection container for the CLI.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/clock/system"
	"github.com/JakeFAU/wikititles-crawler/internal/config"
	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/id/uuid"
	"github.com/JakeFAU/wikititles-crawler/internal/logging"
	memorypublisher "github.com/JakeFAU/wikititles-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/wikititles-crawler/internal/publisher/pubsub"
	gcsreports "github.com/JakeFAU/wikititles-crawler/internal/storage/gcs"
	localreports "github.com/JakeFAU/wikititles-crawler/internal/storage/local"
	postgresreports "github.com/JakeFAU/wikititles-crawler/internal/storage/postgres"
	"github.com/JakeFAU/wikititles-crawler/internal/telemetry"
)

// App holds the shared services for one run.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	publisher crawler.Publisher
	reports   crawler.ReportStore
	ids       crawler.IDGenerator
	clock     crawler.Clock
	closers   []func() error
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Publisher returns the title batch publisher, or nil when publishing is disabled.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// ReportStore returns the report exporter, or nil when export is disabled.
func (a *App) ReportStore() crawler.ReportStore {
	return a.reports
}

// IDGenerator returns the run id generator.
func (a *App) IDGenerator() crawler.IDGenerator {
	return a.ids
}

// Clock returns the wall clock.
func (a *App) Clock() crawler.Clock {
	return a.clock
}

// New loads configuration from cfgPath and the environment and builds every
// configured service. It fails fast; services built before the failure are closed.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	a := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  system.New(),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("publisher", cfg.Publisher.Kind),
		zap.String("report", cfg.Report.Kind),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		ProjectID:   a.cfg.Telemetry.ProjectID,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })

	if err := a.initPublisher(ctx); err != nil {
		return err
	}
	return a.initReports(ctx)
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.Publisher.Kind {
	case "memory":
		a.publisher = memorypublisher.New()
	case "pubsub":
		client, err := pubsubpublisher.Dial(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return err
		}
		pub := pubsubpublisher.New(client)
		a.publisher = pub
		a.closers = append(a.closers, func() error {
			pub.Stop()
			if err := client.Close(); err != nil {
				return fmt.Errorf("close pubsub client: %w", err)
			}
			return nil
		})
	}
	return nil
}

func (a *App) initReports(ctx context.Context) error {
	rc := a.cfg.Report
	switch rc.Kind {
	case "local":
		store, err := localreports.New(localreports.Config{Dir: rc.Dir})
		if err != nil {
			return fmt.Errorf("init local reports: %w", err)
		}
		a.reports = store
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcsreports.New(client, gcsreports.Config{Bucket: rc.Bucket, Prefix: rc.Prefix})
		if err != nil {
			return fmt.Errorf("init gcs reports: %w", err)
		}
		a.reports = store
	case "postgres":
		store, err := postgresreports.New(ctx, postgresreports.Config{DSN: rc.DSN, Table: rc.Table})
		if err != nil {
			return fmt.Errorf("init postgres reports: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		a.reports = store
	}
	return nil
}

// Close releases services in reverse construction order and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
