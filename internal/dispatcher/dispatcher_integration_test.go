package dispatcher_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/wikititles-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/wikititles-crawler/internal/mediawiki"
	memorypublisher "github.com/JakeFAU/wikititles-crawler/internal/publisher/memory"
	"github.com/JakeFAU/wikititles-crawler/internal/retry"
	"github.com/JakeFAU/wikititles-crawler/internal/worker"
)

// wikiServer serves namespaces 0, 1 and 2. Namespace 0 spans two batches of
// 150 and 50, namespace 1 is one batch of 10000 and namespace 2 always fails.
func wikiServer(t *testing.T, flaky *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if q.Get("meta") == "siteinfo" {
			_, _ = fmt.Fprint(w, `{"query":{"namespaces":{"-2":{},"-1":{},"0":{},"1":{},"2":{}}}}`)
			return
		}
		switch q.Get("apnamespace") {
		case "0":
			if flaky.Add(-1) >= 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if q.Get("apfrom") == "" {
				writeBatch(w, 150, "Mid page")
				return
			}
			writeBatch(w, 50, "")
		case "1":
			writeBatch(w, 10000, "")
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
}

func writeBatch(w http.ResponseWriter, size int, next string) {
	titles := make([]map[string]string, 0, 3)
	for i := 0; i < 3; i++ {
		titles = append(titles, map[string]string{"title": fmt.Sprintf("Page %d", i)})
	}
	body := map[string]any{
		"limits": map[string]int{"allpages": size},
		"query":  map[string]any{"allpages": titles},
	}
	if next != "" {
		body["continue"] = map[string]string{"apcontinue": next}
	}
	_ = json.NewEncoder(w).Encode(body)
}

func TestCrawlAgainstFakeWiki(t *testing.T) {
	t.Parallel()

	var flaky atomic.Int32
	flaky.Store(2)
	srv := wikiServer(t, &flaky)
	defer srv.Close()

	exec := retry.New(retry.DefaultPolicy(), retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
	fetcher := collyfetcher.New(collyfetcher.Config{UserAgent: "test", Timeout: 5 * time.Second})
	client, err := mediawiki.New(srv.URL+"/w/api.php?origin=*", fetcher, exec, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	namespaces, err := client.Namespaces(ctx)
	require.NoError(t, err)
	require.Equal(t, []crawler.Namespace{0, 1, 2}, namespaces)

	pub := memorypublisher.New()
	lister := worker.New(client, pub, nil, worker.Config{Topic: "titles", RunID: "it"}, zap.NewNop())
	d := dispatcher.New(lister, nil, dispatcher.Config{Parallelism: 2, RunID: "it"}, zap.NewNop())

	report, err := d.Run(ctx, namespaces)

	require.NoError(t, err)
	require.Equal(t, map[crawler.Namespace]int{0: 200, 1: 10000}, report.Amounts())
	require.Equal(t, 10200, report.Total)
	require.Len(t, report.Failures, 1)
	require.Equal(t, crawler.Namespace(2), report.Failures[0].Namespace)
	require.Equal(t, crawler.FailureRetryExhausted, report.Failures[0].Kind)
	require.Len(t, pub.TitleBatches(), 3)
}
