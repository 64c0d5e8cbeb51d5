package crawler

import (
	"context"
	"time"
)

// Fetcher performs a single GET and returns the response body. Failures are
// reported as *NetworkError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PageSource returns one batch of titles for a namespace, resuming at cursor.
type PageSource interface {
	ListPages(ctx context.Context, ns Namespace, cursor string) (PageBatch, error)
}

// NamespaceSource enumerates the crawlable namespaces of a site.
type NamespaceSource interface {
	Namespaces(ctx context.Context) ([]Namespace, error)
}

// NamespaceProcessor runs the full pagination loop for one namespace.
type NamespaceProcessor interface {
	ProcessNamespace(ctx context.Context, ns Namespace) (ProcessingResult, error)
}

// Publisher pushes title batches to a downstream consumer (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ReportStore exports a finished report and returns a URI describing where it went.
type ReportStore interface {
	SaveReport(ctx context.Context, report Report) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
