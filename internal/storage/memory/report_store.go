// Package memory keeps run reports in process for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

// ReportStore stores reports keyed by run id.
type ReportStore struct {
	mu      sync.RWMutex
	reports []crawler.Report
}

// New creates an empty ReportStore.
func New() *ReportStore {
	return &ReportStore{}
}

// SaveReport records report and returns a memory:// URI.
func (s *ReportStore) SaveReport(_ context.Context, report crawler.Report) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return "memory://" + report.RunID, nil
}

// Reports returns the saved reports in save order.
func (s *ReportStore) Reports() []crawler.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.Report(nil), s.reports...)
}
