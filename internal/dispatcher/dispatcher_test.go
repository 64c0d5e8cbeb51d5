package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/retry"
)

// fakeProcessor returns scripted outcomes and tracks concurrency.
type fakeProcessor struct {
	amounts map[crawler.Namespace]int
	errs    map[crawler.Namespace]error
	panics  map[crawler.Namespace]any
	delay   time.Duration
	// block, when set, holds every worker until it is closed or ctx ends.
	block chan struct{}

	mu      sync.Mutex
	calls   map[crawler.Namespace]int
	order   []crawler.Namespace
	active  atomic.Int32
	peak    atomic.Int32
	started chan crawler.Namespace
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		amounts: map[crawler.Namespace]int{},
		errs:    map[crawler.Namespace]error{},
		panics:  map[crawler.Namespace]any{},
		calls:   map[crawler.Namespace]int{},
		started: make(chan crawler.Namespace, 1024),
	}
}

func (p *fakeProcessor) ProcessNamespace(ctx context.Context, ns crawler.Namespace) (crawler.ProcessingResult, error) {
	current := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	p.mu.Lock()
	p.calls[ns]++
	p.order = append(p.order, ns)
	p.mu.Unlock()
	p.started <- ns

	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return crawler.ProcessingResult{}, ctx.Err()
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if v, ok := p.panics[ns]; ok {
		panic(v)
	}
	if err := p.errs[ns]; err != nil {
		return crawler.ProcessingResult{}, err
	}
	return crawler.ProcessingResult{Namespace: ns, Amount: p.amounts[ns]}, nil
}

func (p *fakeProcessor) Calls() map[crawler.Namespace]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[crawler.Namespace]int, len(p.calls))
	for k, v := range p.calls {
		out[k] = v
	}
	return out
}

func (p *fakeProcessor) Order() []crawler.Namespace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]crawler.Namespace(nil), p.order...)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func namespaces(n int) []crawler.Namespace {
	out := make([]crawler.Namespace, n)
	for i := range out {
		out[i] = crawler.Namespace(i)
	}
	return out
}

func TestRunDispatchesEveryNamespaceOnce(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.delay = 2 * time.Millisecond
	for i := 0; i < 25; i++ {
		proc.amounts[crawler.Namespace(i)] = i + 1
	}
	d := New(proc, nil, Config{Parallelism: 4, RunID: "run"}, zap.NewNop())

	report, err := d.Run(context.Background(), namespaces(25))

	require.NoError(t, err)
	calls := proc.Calls()
	require.Len(t, calls, 25)
	for ns, count := range calls {
		require.Equal(t, 1, count, "namespace %d", ns)
	}
	require.Len(t, report.Results, 25)
	require.Equal(t, 25*26/2, report.Total)
	require.Equal(t, 25, report.Dispatched)
	require.Equal(t, 4, report.PoolSize)
	require.LessOrEqual(t, report.PeakWorkers, 4)
	require.LessOrEqual(t, int(proc.peak.Load()), 4)
	require.Equal(t, "run", report.RunID)
}

func TestRunPoolSizeIsBoundedByNamespaceCount(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	d := New(proc, nil, Config{Parallelism: 16}, nil)

	report, err := d.Run(context.Background(), namespaces(3))

	require.NoError(t, err)
	require.Equal(t, 3, report.PoolSize)
	require.LessOrEqual(t, report.PeakWorkers, 3)
}

func TestRunPopsFromTheEnd(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	d := New(proc, nil, Config{Parallelism: 1}, nil)

	_, err := d.Run(context.Background(), []crawler.Namespace{0, 1, 2, 3})

	require.NoError(t, err)
	require.Equal(t, []crawler.Namespace{3, 2, 1, 0}, proc.Order())
}

func TestRunAggregatesScenarioTotals(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.amounts[0] = 200
	proc.amounts[1] = 10000
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := New(proc, fixedClock{now: started}, Config{Parallelism: 2, Site: "dev"}, nil)

	report, err := d.Run(context.Background(), []crawler.Namespace{0, 1})

	require.NoError(t, err)
	require.Equal(t, map[crawler.Namespace]int{0: 200, 1: 10000}, report.Amounts())
	require.Equal(t, 10200, report.Total)
	require.Equal(t, "dev", report.Site)
	require.Equal(t, started, report.StartedAt)
	require.Empty(t, report.Failures)
}

func TestRunRecordsFailuresAndStillTerminates(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.amounts[0] = 7
	proc.errs[1] = &retry.RetryExhaustedError{Op: "allpages", Attempts: 6, Last: errors.New("503")}
	proc.errs[2] = fmt.Errorf("namespace 2: %w", crawler.ErrCursorLoop)
	proc.panics[3] = "nil map write"
	proc.errs[4] = errors.New("odd payload")
	d := New(proc, nil, Config{Parallelism: 2}, nil)

	done := make(chan struct{})
	var (
		report crawler.Report
		err    error
	)
	go func() {
		report, err = d.Run(context.Background(), namespaces(5))
		close(done)
	}()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, err)
	require.Equal(t, 7, report.Total)
	require.Equal(t, map[crawler.Namespace]int{0: 7}, report.Amounts())
	kinds := map[crawler.Namespace]crawler.FailureKind{}
	for _, f := range report.Failures {
		kinds[f.Namespace] = f.Kind
	}
	require.Equal(t, map[crawler.Namespace]crawler.FailureKind{
		1: crawler.FailureRetryExhausted,
		2: crawler.FailureCursorLoop,
		3: crawler.FailureCrash,
		4: crawler.FailureOther,
	}, kinds)
	require.Equal(t, 5, report.Dispatched)
}

func TestRunEmptyNamespaceList(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	d := New(proc, nil, Config{Parallelism: 4}, nil)

	report, err := d.Run(context.Background(), nil)

	require.NoError(t, err)
	require.Zero(t, report.Total)
	require.Empty(t, report.Results)
	require.Zero(t, report.PoolSize)
	require.Empty(t, proc.Calls())
}

func TestRunCancellationSkipsQueuedNamespaces(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.block = make(chan struct{})
	d := New(proc, nil, Config{Parallelism: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type runResult struct {
		report crawler.Report
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		report, err := d.Run(ctx, namespaces(6))
		done <- runResult{report, err}
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-proc.started:
		case <-time.After(2 * time.Second):
			t.Fatal("workers did not start")
		}
	}
	cancel()

	var res runResult
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	require.ErrorIs(t, res.err, context.Canceled)
	require.Equal(t, 2, res.report.Dispatched)
	require.Equal(t, []crawler.Namespace{0, 1, 2, 3}, res.report.Skipped)
	require.Len(t, res.report.Failures, 2)
	for _, f := range res.report.Failures {
		require.Equal(t, crawler.FailureCanceled, f.Kind)
	}
}

func TestSnapshotReflectsLiveRun(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.block = make(chan struct{})
	proc.amounts[2] = 9
	d := New(proc, nil, Config{Parallelism: 1, RunID: "snap"}, nil)

	done := make(chan struct{})
	go func() {
		_, _ = d.Run(context.Background(), namespaces(3))
		close(done)
	}()

	require.Eventually(t, func() bool {
		s := d.Snapshot()
		return s.Running && s.Active == 1 && s.Queued == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(proc.block)
	<-done

	s := d.Snapshot()
	require.False(t, s.Running)
	require.Equal(t, "snap", s.RunID)
	require.Zero(t, s.Active)
	require.Equal(t, 3, s.Dispatched)
	require.Len(t, s.Results, 3)
}

func TestFailureKind(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want crawler.FailureKind
	}{
		{"crash", &crawler.WorkerCrashError{Namespace: 1, Value: "x"}, crawler.FailureCrash},
		{"canceled", fmt.Errorf("list: %w", context.Canceled), crawler.FailureCanceled},
		{"deadline", context.DeadlineExceeded, crawler.FailureCanceled},
		{"batch limit", crawler.ErrBatchLimit, crawler.FailureCursorLoop},
		{"exhausted", &retry.RetryExhaustedError{Op: "allpages", Attempts: 6, Last: errors.New("x")}, crawler.FailureRetryExhausted},
		{"permanent", &retry.PermanentError{Op: "allpages", Attempt: 1, Err: errors.New("404")}, crawler.FailureOther},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, failureKind(tc.err))
		})
	}
}
