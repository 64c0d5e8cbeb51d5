// Package dispatcher fans namespaces out over a bounded pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/aggregator"
	"github.com/JakeFAU/wikititles-crawler/internal/clock/system"
	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/metrics"
	"github.com/JakeFAU/wikititles-crawler/internal/queue/memory"
	"github.com/JakeFAU/wikititles-crawler/internal/retry"
)

// Config controls pool sizing and report metadata.
type Config struct {
	// Parallelism is the upper bound on concurrent workers; zero means runtime.NumCPU().
	Parallelism int
	RunID       string
	Site        string
}

// Status is a point-in-time view of a run, safe to serve over HTTP.
type Status struct {
	RunID      string                     `json:"run_id"`
	Site       string                     `json:"site"`
	Running    bool                       `json:"running"`
	PoolSize   int                        `json:"pool_size"`
	Active     int                        `json:"active"`
	Queued     int                        `json:"queued"`
	Dispatched int                        `json:"dispatched"`
	Results    []crawler.ProcessingResult `json:"results"`
	Failures   []crawler.Failure          `json:"failures"`
}

// Dispatcher owns the work stack and the aggregator for a run. A single control
// loop mutates run state; workers only send their outcome back.
type Dispatcher struct {
	processor crawler.NamespaceProcessor
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger

	mu     sync.RWMutex
	status Status
}

type outcome struct {
	ns     crawler.Namespace
	result crawler.ProcessingResult
	err    error
}

// New constructs a Dispatcher.
func New(processor crawler.NamespaceProcessor, clock crawler.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		processor: processor,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		status:    Status{RunID: cfg.RunID, Site: cfg.Site},
	}
}

// Run processes every namespace exactly once and returns the aggregate report.
// Namespaces are taken from the end of the slice first. When ctx is canceled no
// further workers start; in-flight workers are awaited and the remaining
// namespaces are reported as skipped.
func (d *Dispatcher) Run(ctx context.Context, namespaces []crawler.Namespace) (crawler.Report, error) {
	started := d.clock.Now()
	poolSize := min(d.cfg.Parallelism, len(namespaces))
	stack := memory.NewStack(namespaces)
	agg := aggregator.New()
	outcomes := make(chan outcome, max(poolSize, 1))

	d.logger.Info("dispatch started",
		zap.String("run_id", d.cfg.RunID),
		zap.Int("namespaces", len(namespaces)),
		zap.Int("pool_size", poolSize),
	)

	var active, dispatched, peak int
	launch := func() bool {
		ns, ok := stack.Pop()
		if !ok {
			return false
		}
		active++
		dispatched++
		peak = max(peak, active)
		metrics.IncActiveWorkers()
		go d.runWorker(ctx, ns, outcomes)
		return true
	}

	d.setStatus(func(s *Status) {
		s.Running = true
		s.PoolSize = poolSize
	})
	for active < poolSize && launch() {
	}
	d.publish(active, stack.Len(), dispatched)

	for active > 0 {
		out := <-outcomes
		active--
		metrics.DecActiveWorkers()
		d.record(agg, out)
		if ctx.Err() == nil {
			launch()
		}
		d.publish(active, stack.Len(), dispatched)
	}

	skipped := stack.Drain()
	report, err := agg.OnPoolDrained()
	if err != nil {
		return crawler.Report{}, fmt.Errorf("finalize run: %w", err)
	}
	crawler.SortNamespaces(skipped)
	report.RunID = d.cfg.RunID
	report.Site = d.cfg.Site
	report.StartedAt = started
	report.FinishedAt = d.clock.Now()
	report.Skipped = skipped
	report.PoolSize = poolSize
	report.PeakWorkers = peak
	report.Dispatched = dispatched

	d.setStatus(func(s *Status) {
		s.Running = false
		s.Queued = 0
	})
	d.logger.Info("dispatch finished",
		zap.String("run_id", d.cfg.RunID),
		zap.Int("total", report.Total),
		zap.Int("failures", len(report.Failures)),
		zap.Int("skipped", len(report.Skipped)),
	)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run interrupted: %w", err)
	}
	return report, nil
}

// Snapshot returns a copy of the live run status.
func (d *Dispatcher) Snapshot() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := d.status
	out.Results = append([]crawler.ProcessingResult(nil), d.status.Results...)
	out.Failures = append([]crawler.Failure(nil), d.status.Failures...)
	return out
}

func (d *Dispatcher) runWorker(ctx context.Context, ns crawler.Namespace, outcomes chan<- outcome) {
	out := outcome{ns: ns}
	defer func() {
		if r := recover(); r != nil {
			out = outcome{ns: ns, err: &crawler.WorkerCrashError{Namespace: ns, Value: r}}
		}
		outcomes <- out
	}()
	out.result, out.err = d.processor.ProcessNamespace(ctx, ns)
}

func (d *Dispatcher) record(agg *aggregator.Aggregator, out outcome) {
	logger := d.logger.With(zap.Int("namespace", int(out.ns)))
	if out.err != nil {
		failure := crawler.Failure{Namespace: out.ns, Kind: failureKind(out.err), Err: out.err.Error()}
		metrics.ObserveNamespace(string(failure.Kind))
		logger.Warn("namespace failed", zap.String("kind", string(failure.Kind)), zap.Error(out.err))
		if err := agg.OnWorkerFailure(failure); err != nil {
			logger.Error("dropping namespace failure", zap.Error(err))
			return
		}
		d.setStatus(func(s *Status) { s.Failures = append(s.Failures, failure) })
		return
	}
	// Results are keyed by the dispatched namespace, whatever the processor echoed back.
	out.result.Namespace = out.ns
	metrics.ObserveNamespace("ok")
	logger.Info("namespace finished", zap.Int("amount", out.result.Amount))
	if err := agg.OnWorkerResult(out.result); err != nil {
		logger.Error("dropping namespace result", zap.Error(err))
		return
	}
	d.setStatus(func(s *Status) { s.Results = append(s.Results, out.result) })
}

func (d *Dispatcher) publish(active, queued, dispatched int) {
	d.setStatus(func(s *Status) {
		s.Active = active
		s.Queued = queued
		s.Dispatched = dispatched
	})
}

func (d *Dispatcher) setStatus(fn func(*Status)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.status)
}

func failureKind(err error) crawler.FailureKind {
	var crash *crawler.WorkerCrashError
	switch {
	case errors.As(err, &crash):
		return crawler.FailureCrash
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return crawler.FailureCanceled
	case errors.Is(err, crawler.ErrCursorLoop), errors.Is(err, crawler.ErrBatchLimit):
		return crawler.FailureCursorLoop
	case errors.Is(err, retry.ErrRetryExhausted):
		return crawler.FailureRetryExhausted
	default:
		return crawler.FailureOther
	}
}
