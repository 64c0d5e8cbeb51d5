// Package progress renders a terminal progress bar over namespaces completed.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/wikititles-crawler/internal/dispatcher"
)

// Source reports the live state of a run.
type Source interface {
	Snapshot() dispatcher.Status
}

// Tracker polls a Source and mirrors its completion count on a progress bar.
type Tracker struct {
	bar      *progressbar.ProgressBar
	source   Source
	interval time.Duration

	mu        sync.Mutex
	completed int
	failed    int
}

// NewTracker builds a Tracker for total namespaces writing to w.
func NewTracker(w io.Writer, total int, source Source, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("namespaces"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &Tracker{bar: bar, source: source, interval: interval}
}

// Run refreshes the bar until ctx ends, then renders the final state.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.refresh()
			_ = t.bar.Finish()
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

// Completed returns the last observed number of finished and failed namespaces.
func (t *Tracker) Completed() (completed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed, t.failed
}

func (t *Tracker) refresh() {
	snap := t.source.Snapshot()
	failed := len(snap.Failures)
	completed := len(snap.Results) + failed

	t.mu.Lock()
	changed := failed != t.failed
	t.completed, t.failed = completed, failed
	t.mu.Unlock()

	if changed {
		t.bar.Describe(fmt.Sprintf("namespaces (%d failed)", failed))
	}
	_ = t.bar.Set(completed)
}
