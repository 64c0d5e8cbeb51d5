// Package aggregator folds per-namespace worker outcomes into a run report.
package aggregator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

var (
	// ErrAlreadyFinalized is returned once OnPoolDrained has produced a report.
	ErrAlreadyFinalized = errors.New("aggregator already finalized")
	// ErrDuplicateResult is returned when a namespace reports a second outcome.
	ErrDuplicateResult = errors.New("duplicate namespace outcome")
)

// Aggregator collects results and failures. The zero value is not usable; call New.
type Aggregator struct {
	mu        sync.Mutex
	results   map[crawler.Namespace]int
	failures  map[crawler.Namespace]crawler.Failure
	finalized bool
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		results:  make(map[crawler.Namespace]int),
		failures: make(map[crawler.Namespace]crawler.Failure),
	}
}

// OnWorkerResult records a completed namespace.
func (a *Aggregator) OnWorkerResult(result crawler.ProcessingResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOpen(result.Namespace); err != nil {
		return err
	}
	a.results[result.Namespace] = result.Amount
	return nil
}

// OnWorkerFailure records a namespace whose worker ended without a result.
func (a *Aggregator) OnWorkerFailure(failure crawler.Failure) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkOpen(failure.Namespace); err != nil {
		return err
	}
	a.failures[failure.Namespace] = failure
	return nil
}

// OnPoolDrained finalizes the run. The returned report carries Results and
// Failures ordered by namespace and the grand total; callers fill in run metadata.
func (a *Aggregator) OnPoolDrained() (crawler.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return crawler.Report{}, ErrAlreadyFinalized
	}
	a.finalized = true

	report := crawler.Report{
		Results: make([]crawler.ProcessingResult, 0, len(a.results)),
	}
	for ns, amount := range a.results {
		report.Results = append(report.Results, crawler.ProcessingResult{Namespace: ns, Amount: amount})
		report.Total += amount
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Namespace < report.Results[j].Namespace
	})
	for _, f := range a.failures {
		report.Failures = append(report.Failures, f)
	}
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Namespace < report.Failures[j].Namespace
	})
	return report, nil
}

// Completed returns the number of recorded results and failures so far.
func (a *Aggregator) Completed() (results, failures int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results), len(a.failures)
}

func (a *Aggregator) checkOpen(ns crawler.Namespace) error {
	if a.finalized {
		return ErrAlreadyFinalized
	}
	_, hasResult := a.results[ns]
	_, hasFailure := a.failures[ns]
	if hasResult || hasFailure {
		return fmt.Errorf("namespace %d: %w", ns, ErrDuplicateResult)
	}
	return nil
}
