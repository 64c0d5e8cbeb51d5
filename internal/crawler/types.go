package crawler

import (
	"sort"
	"time"
)

// Namespace is a MediaWiki namespace id. Only non-negative ids are crawled.
type Namespace int

// CountMode selects how a batch contributes to a namespace total.
type CountMode string

// Supported count modes.
const (
	// CountReported adds the server-reported limits.allpages value per batch.
	CountReported CountMode = "reported"
	// CountTitles adds the number of titles actually present in the batch.
	CountTitles CountMode = "titles"
)

// PageBatch is the decoded payload of one listing call.
type PageBatch struct {
	Titles []string
	// Continue is the cursor for the next call; empty means the namespace is exhausted.
	Continue string
	// ReportedSize mirrors limits.allpages from the response.
	ReportedSize    int
	HasReportedSize bool
}

// HasMore reports whether another listing call is required.
func (b PageBatch) HasMore() bool {
	return b.Continue != ""
}

// Count returns the batch's contribution to the running total under mode.
// Batches without server metadata fall back to the title count.
func (b PageBatch) Count(mode CountMode) int {
	if mode == CountTitles || !b.HasReportedSize {
		return len(b.Titles)
	}
	return b.ReportedSize
}

// ProcessingResult is the final page count for one namespace.
type ProcessingResult struct {
	Namespace Namespace `json:"namespace"`
	Amount    int       `json:"amount"`
}

// FailureKind classifies why a worker ended without a result.
type FailureKind string

// Failure kinds recorded in the report.
const (
	FailureRetryExhausted FailureKind = "retry_exhausted"
	FailureCrash          FailureKind = "crash"
	FailureCursorLoop     FailureKind = "cursor_loop"
	FailureCanceled       FailureKind = "canceled"
	FailureOther          FailureKind = "error"
)

// Failure records a namespace whose worker terminated without a result.
type Failure struct {
	Namespace Namespace   `json:"namespace"`
	Kind      FailureKind `json:"kind"`
	Err       string      `json:"error"`
}

// TitleBatch is handed to the ingestion Publisher once per listing call.
type TitleBatch struct {
	RunID     string    `json:"run_id"`
	Namespace Namespace `json:"namespace"`
	Batch     int       `json:"batch"`
	Titles    []string  `json:"titles"`
}

// Report is the aggregate of all namespace outcomes for one run.
type Report struct {
	RunID       string             `json:"run_id"`
	Site        string             `json:"site"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Results     []ProcessingResult `json:"results"`
	Total       int                `json:"total"`
	Failures    []Failure          `json:"failures,omitempty"`
	Skipped     []Namespace        `json:"skipped,omitempty"`
	PoolSize    int                `json:"pool_size"`
	PeakWorkers int                `json:"peak_workers"`
	Dispatched  int                `json:"dispatched"`
}

// Amounts returns the results keyed by namespace.
func (r Report) Amounts() map[Namespace]int {
	out := make(map[Namespace]int, len(r.Results))
	for _, res := range r.Results {
		out[res.Namespace] = res.Amount
	}
	return out
}

// SortNamespaces orders namespaces ascending in place.
func SortNamespaces(ns []Namespace) {
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
}
