// Package worker implements the per-namespace pagination loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/clock/system"
	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/metrics"
)

const (
	defaultProgressInterval = 10000
	tracerName              = "github.com/JakeFAU/wikititles-crawler/internal/worker"
)

// Config controls Lister behavior.
type Config struct {
	// ProgressInterval logs progress each time the running total crosses a multiple of it.
	ProgressInterval int
	// MaxBatches caps listing calls per namespace; zero means unlimited.
	MaxBatches int
	CountMode  crawler.CountMode
	// Topic receives title batches when a publisher is configured.
	Topic string
	RunID string
}

// Lister paginates the allpages listing for one namespace at a time. A single
// Lister may serve many namespaces concurrently; it holds no per-run state.
type Lister struct {
	source    crawler.PageSource
	publisher crawler.Publisher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New constructs a Lister.
func New(
	source crawler.PageSource,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Lister {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if cfg.CountMode == "" {
		cfg.CountMode = crawler.CountReported
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{
		source:    source,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// ProcessNamespace follows the continuation chain for ns until the server stops
// returning a cursor and reports the accumulated page count.
func (l *Lister) ProcessNamespace(ctx context.Context, ns crawler.Namespace) (crawler.ProcessingResult, error) {
	ctx, span := l.tracer.Start(ctx, "worker.ProcessNamespace",
		trace.WithAttributes(attribute.Int("namespace", int(ns))))
	defer span.End()

	logger := l.logger.With(zap.Int("namespace", int(ns)))
	started := l.clock.Now()
	logger.Info("namespace started")

	amount, batches, err := l.paginate(ctx, ns, logger)
	span.SetAttributes(attribute.Int("batches", batches), attribute.Int("amount", amount))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("namespace failed",
			zap.Int("amount", amount),
			zap.Int("batches", batches),
			zap.Error(err),
		)
		return crawler.ProcessingResult{}, err
	}

	l.logProgress(logger, amount, batches, started)
	return crawler.ProcessingResult{Namespace: ns, Amount: amount}, nil
}

func (l *Lister) paginate(ctx context.Context, ns crawler.Namespace, logger *zap.Logger) (int, int, error) {
	started := l.clock.Now()
	seen := make(map[string]struct{})
	cursor := ""
	amount := 0
	batches := 0
	for {
		if l.cfg.MaxBatches > 0 && batches >= l.cfg.MaxBatches {
			return amount, batches, fmt.Errorf("namespace %d after %d batches: %w", ns, batches, crawler.ErrBatchLimit)
		}
		batch, err := l.source.ListPages(ctx, ns, cursor)
		if err != nil {
			return amount, batches, err
		}
		batches++

		counted := batch.Count(l.cfg.CountMode)
		previous := amount
		amount += counted
		metrics.ObserveBatch(int(ns), counted)
		l.publishTitles(ctx, ns, batches, batch.Titles, logger)

		if crossedInterval(previous, amount, l.cfg.ProgressInterval) {
			l.logProgress(logger, amount, batches, started)
		}
		if !batch.HasMore() {
			return amount, batches, nil
		}
		if _, dup := seen[batch.Continue]; dup {
			return amount, batches, fmt.Errorf("namespace %d cursor %q: %w", ns, batch.Continue, crawler.ErrCursorLoop)
		}
		seen[batch.Continue] = struct{}{}
		cursor = batch.Continue
	}
}

func (l *Lister) publishTitles(ctx context.Context, ns crawler.Namespace, index int, titles []string, logger *zap.Logger) {
	if l.publisher == nil || l.cfg.Topic == "" || len(titles) == 0 {
		return
	}
	payload := crawler.TitleBatch{
		RunID:     l.cfg.RunID,
		Namespace: ns,
		Batch:     index,
		Titles:    titles,
	}
	if _, err := l.publisher.Publish(ctx, l.cfg.Topic, payload); err != nil {
		metrics.ObservePublishFailure()
		logger.Warn("title batch publish failed", zap.Int("batch", index), zap.Error(err))
	}
}

func (l *Lister) logProgress(logger *zap.Logger, amount, batches int, started time.Time) {
	logger.Info("namespace progress",
		zap.Int("amount", amount),
		zap.Int("batches", batches),
		zap.Duration("elapsed", l.clock.Now().Sub(started)),
	)
}

// crossedInterval reports whether moving from previous to current passed a
// multiple of interval.
func crossedInterval(previous, current, interval int) bool {
	if interval <= 0 || current <= previous {
		return false
	}
	return current/interval > previous/interval
}
