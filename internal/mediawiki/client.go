// Package mediawiki talks to the MediaWiki action API: namespace discovery via
// siteinfo and title listing via list=allpages.
package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/retry"
)

// APIError is the error object MediaWiki embeds in an otherwise successful response.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mediawiki api error %s: %s", e.Code, e.Info)
}

type response struct {
	Continue *struct {
		APContinue string `json:"apcontinue"`
	} `json:"continue"`
	Limits *struct {
		AllPages *int `json:"allpages"`
	} `json:"limits"`
	Query *struct {
		AllPages []struct {
			Title string `json:"title"`
		} `json:"allpages"`
		Namespaces map[string]json.RawMessage `json:"namespaces"`
	} `json:"query"`
	Error *APIError `json:"error"`
}

var (
	_ crawler.NamespaceSource = (*Client)(nil)
	_ crawler.PageSource      = (*Client)(nil)
)

// Client issues retried calls against one MediaWiki api.php endpoint.
type Client struct {
	baseURL string
	fetcher crawler.Fetcher
	retry   *retry.Executor
	logger  *zap.Logger
}

// New builds a Client. baseURL may already carry query parameters such as origin=*.
func New(baseURL string, fetcher crawler.Fetcher, exec *retry.Executor, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("base url is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if exec == nil {
		exec = retry.New(retry.DefaultPolicy())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		fetcher: fetcher,
		retry:   exec,
		logger:  logger,
	}, nil
}

// BaseURL returns the endpoint the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Namespaces returns the site's non-negative namespace ids in ascending order.
func (c *Client) Namespaces(ctx context.Context) ([]crawler.Namespace, error) {
	target := SiteInfoURL(c.baseURL)
	ids, err := retry.Do(ctx, c.retry, "siteinfo", func(ctx context.Context) ([]crawler.Namespace, error) {
		resp, err := c.get(ctx, target)
		if err != nil {
			return nil, err
		}
		if resp.Query == nil || resp.Query.Namespaces == nil {
			return nil, &crawler.DecodeError{URL: target, Err: errors.New("missing query.namespaces")}
		}
		return c.parseNamespaces(resp.Query.Namespaces), nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover namespaces: %w", err)
	}
	c.logger.Info("namespaces discovered", zap.Int("count", len(ids)))
	return ids, nil
}

func (c *Client) parseNamespaces(raw map[string]json.RawMessage) []crawler.Namespace {
	ids := make([]crawler.Namespace, 0, len(raw))
	for key := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			c.logger.Warn("skipping non-numeric namespace key", zap.String("key", key))
			continue
		}
		if id < 0 {
			continue
		}
		ids = append(ids, crawler.Namespace(id))
	}
	crawler.SortNamespaces(ids)
	return ids
}

// ListPages fetches one allpages batch for ns, resuming at cursor when non-empty.
func (c *Client) ListPages(ctx context.Context, ns crawler.Namespace, cursor string) (crawler.PageBatch, error) {
	target := AllPagesURL(c.baseURL, ns, cursor)
	batch, err := retry.Do(ctx, c.retry, "allpages", func(ctx context.Context) (crawler.PageBatch, error) {
		resp, err := c.get(ctx, target)
		if err != nil {
			return crawler.PageBatch{}, err
		}
		return toBatch(resp), nil
	})
	if err != nil {
		return crawler.PageBatch{}, fmt.Errorf("list namespace %d: %w", ns, err)
	}
	return batch, nil
}

func (c *Client) get(ctx context.Context, target string) (response, error) {
	body, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return response{}, err
	}
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return response{}, &crawler.DecodeError{URL: target, Err: err}
	}
	if resp.Error != nil {
		return response{}, resp.Error
	}
	return resp, nil
}

func toBatch(resp response) crawler.PageBatch {
	var batch crawler.PageBatch
	if resp.Query != nil {
		batch.Titles = make([]string, 0, len(resp.Query.AllPages))
		for _, page := range resp.Query.AllPages {
			batch.Titles = append(batch.Titles, page.Title)
		}
	}
	if resp.Continue != nil {
		batch.Continue = resp.Continue.APContinue
	}
	if resp.Limits != nil && resp.Limits.AllPages != nil {
		batch.ReportedSize = *resp.Limits.AllPages
		batch.HasReportedSize = true
	}
	return batch
}

// SiteInfoURL builds the namespace discovery URL.
func SiteInfoURL(base string) string {
	return withQuery(base, "action=query&meta=siteinfo&siprop=namespaces&format=json")
}

// AllPagesURL builds the listing URL for ns. An empty cursor starts at the
// beginning of the namespace.
func AllPagesURL(base string, ns crawler.Namespace, cursor string) string {
	query := "action=query&list=allpages&format=json&aplimit=max&apnamespace=" + strconv.Itoa(int(ns))
	if cursor != "" {
		query += "&apfrom=" + url.QueryEscape(cursor)
	}
	return withQuery(base, query)
}

func withQuery(base, query string) string {
	switch {
	case !strings.Contains(base, "?"):
		return base + "?" + query
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		return base + query
	default:
		return base + "&" + query
	}
}
