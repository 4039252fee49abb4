package crawler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/signalworks/siterag/config"
)

var (
	// ErrNotFound marks a 404; terminal for the URL, never retried.
	ErrNotFound = errors.New("page not found")
	// ErrNonHTML marks an unsupported content type; skipped without retry.
	ErrNonHTML = errors.New("non-html content")
	// ErrExhausted marks a URL whose retry budget ran out.
	ErrExhausted = errors.New("fetch attempts exhausted")
	// ErrRobotsDisallowed marks a URL excluded by robots.txt.
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
)

// Crawler discovers and fetches all in-scope pages of one site. A Crawler
// owns its frontier and discovered set exclusively; it must not be shared by
// concurrent crawl runs.
type Crawler struct {
	cfg     config.CrawlerConfig
	baseURL string
	scope   *Scope
	fetcher Fetcher
	robots  *robotsGate
	logger  *log.Logger
}

// New builds a crawler for the configured site.
func New(site config.SiteConfig, cfg config.CrawlerConfig, logger *log.Logger) (*Crawler, error) {
	scope, err := NewScope(site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("crawl scope: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[CRAWLER] ", log.LstdFlags)
	}
	var fetcher Fetcher
	switch cfg.Fetcher {
	case "chromedp":
		fetcher = newRenderedFetcher(cfg.Timeout, cfg.UserAgent)
	default:
		fetcher = newHTTPFetcher(cfg.Timeout, cfg.UserAgent)
	}
	return &Crawler{
		cfg:     cfg,
		baseURL: site.BaseURL,
		scope:   scope,
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

// Close releases the fetcher's network resources. Safe after any crawl,
// successful or not.
func (c *Crawler) Close() { c.fetcher.Close() }

// InScope exposes the crawl scope rule.
func (c *Crawler) InScope(url string) bool { return c.scope.InScope(url) }

// Fetch retrieves and parses one URL under the bounded retry policy. A 404 or
// a non-HTML response is terminal and consumes no retries; transport errors
// and other non-200 statuses are retried with linearly growing delays.
func (c *Crawler) Fetch(ctx context.Context, url string) (*Page, error) {
	if c.robots != nil && !c.robots.Allowed(url) {
		return nil, fmt.Errorf("%s: %w", url, ErrRobotsDisallowed)
	}

	r := newRetrier(c.cfg.MaxRetries, c.cfg.RetryDelay)
	var lastErr error
	for {
		attempt := r.Begin()
		if attempt > 1 {
			fetchRetries.Inc()
		}
		res, err := c.fetcher.Fetch(ctx, url)
		switch {
		case err != nil:
			lastErr = err
			c.logger.Printf("fetch %s attempt %d: %v", url, attempt, err)
		case res.Status == http.StatusNotFound:
			pagesFetched.WithLabelValues("not_found").Inc()
			c.logger.Printf("page not found: %s", url)
			return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
		case res.Status != http.StatusOK:
			lastErr = fmt.Errorf("http status %d", res.Status)
			c.logger.Printf("fetch %s attempt %d: HTTP %d", url, attempt, res.Status)
		case !strings.Contains(res.ContentType, "text/html"):
			pagesFetched.WithLabelValues("non_html").Inc()
			c.logger.Printf("skipping non-html content: %s (%s)", url, res.ContentType)
			return nil, fmt.Errorf("%s: %w", url, ErrNonHTML)
		default:
			page, perr := parsePage(res.Body, url, c.scope)
			if perr != nil {
				lastErr = perr
				c.logger.Printf("parse %s attempt %d: %v", url, attempt, perr)
				break
			}
			r.Succeed()
			pagesFetched.WithLabelValues("ok").Inc()
			c.logger.Printf("fetched %s (%d words)", url, page.WordCount)
			return page, nil
		}
		if !r.Backoff(ctx) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pagesFetched.WithLabelValues("exhausted").Inc()
			c.logger.Printf("giving up on %s after %d attempts: %v", url, attempt, lastErr)
			return nil, fmt.Errorf("%s after %d attempts: %w (last error: %v)", url, attempt, ErrExhausted, lastErr)
		}
	}
}

// Discover walks the site breadth-first from the base URL, fetching the
// frontier in concurrent batches with a politeness delay between batches.
// Every URL is fetched at most once. The crawl itself never fails: URLs that
// cannot be fetched are skipped, and the discovered set is whatever
// succeeded. Only context cancellation aborts the walk.
func (c *Crawler) Discover(ctx context.Context) ([]string, error) {
	c.prepareRobots(ctx)
	c.logger.Printf("starting URL discovery from %s", c.baseURL)

	frontier := []string{c.baseURL}
	seen := map[string]struct{}{c.baseURL: {}}
	var discovered []string

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := frontier
		if len(batch) > c.cfg.DiscoverBatch {
			batch = batch[:c.cfg.DiscoverBatch]
		}
		frontier = frontier[len(batch):]

		for _, page := range c.fetchBatch(ctx, batch) {
			if page == nil {
				continue
			}
			discovered = append(discovered, page.URL)
			urlsDiscovered.Inc()
			for _, link := range page.Links {
				if _, dup := seen[link]; dup {
					continue
				}
				seen[link] = struct{}{}
				frontier = append(frontier, link)
			}
		}

		if len(frontier) > 0 {
			if err := sleepCtx(ctx, c.cfg.RequestDelay); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Printf("discovered %d URLs", len(discovered))
	return discovered, nil
}

// ScrapeAll runs discovery and then re-fetches every discovered URL in
// smaller batches, collecting the pages that succeed. Failed fetches are
// excluded silently; a crawl always completes with whatever subset worked.
func (c *Crawler) ScrapeAll(ctx context.Context) ([]*Page, error) {
	urls, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}

	var pages []*Page
	for start := 0; start < len(urls); start += c.cfg.ScrapeBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + c.cfg.ScrapeBatch
		if end > len(urls) {
			end = len(urls)
		}
		for _, page := range c.fetchBatch(ctx, urls[start:end]) {
			if page != nil {
				pages = append(pages, page)
			}
		}
		if end < len(urls) {
			if err := sleepCtx(ctx, c.cfg.RequestDelay); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Printf("scraping completed: %d of %d pages", len(pages), len(urls))
	return pages, nil
}

// fetchBatch fetches the given URLs concurrently. The result slice is
// parallel to urls; failed fetches leave nil entries.
func (c *Crawler) fetchBatch(ctx context.Context, urls []string) []*Page {
	pages := make([]*Page, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			page, err := c.Fetch(ctx, url)
			if err != nil {
				return
			}
			pages[i] = page
		}(i, url)
	}
	wg.Wait()
	return pages
}

func (c *Crawler) prepareRobots(ctx context.Context) {
	if !c.cfg.RespectRobots || c.robots != nil {
		return
	}
	c.robots = loadRobots(ctx, c.baseURL, c.cfg.UserAgent, c.cfg.Timeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
