package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/signalworks/siterag/config"
)

// fixtureSite serves a small site and counts fetches per path.
type fixtureSite struct {
	mu     sync.Mutex
	hits   map[string]int
	server *httptest.Server
}

func newFixtureSite(t *testing.T, pages map[string]string) *fixtureSite {
	t.Helper()
	f := &fixtureSite{hits: make(map[string]int)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixtureSite) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func testCrawler(t *testing.T, baseURL string) *Crawler {
	t.Helper()
	cfg := config.CrawlerConfig{
		Timeout:      2 * time.Second,
		MaxRetries:   3,
		RetryDelay:   5 * time.Millisecond,
		RequestDelay: 5 * time.Millisecond,
	}.Normalize()
	c, err := New(config.SiteConfig{BaseURL: baseURL, Organization: "Example"}, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestDiscoverThreePageSite(t *testing.T) {
	t.Parallel()
	var site *fixtureSite
	link := func(path string) string { return site.server.URL + path }

	pages := map[string]string{}
	site = newFixtureSite(t, pages)
	pages["/"] = `<html><head><title>A</title></head><body><main>Home page with links.</main>
		<a href="` + link("/b") + `">B</a><a href="` + link("/c") + `">C</a></body></html>`
	pages["/b"] = `<html><head><title>B</title></head><body><main>Second page.</main>
		<a href="` + link("/") + `">back to A</a></body></html>`
	pages["/c"] = `<html><head><title>C</title></head><body><main>Third page.</main></body></html>`

	c := testCrawler(t, site.server.URL)
	urls, err := c.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	sort.Strings(urls)
	want := []string{link("/"), link("/b"), link("/c")}
	sort.Strings(want)
	if len(urls) != 3 {
		t.Fatalf("discovered %v, want exactly %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("discovered %v, want %v", urls, want)
		}
	}
	// B links back to A; the dedup set must keep A from being fetched twice.
	if got := site.hitCount("/"); got != 1 {
		t.Fatalf("root fetched %d times during discovery, want 1", got)
	}
}

func TestScrapeAllSkipsFailures(t *testing.T) {
	t.Parallel()
	var site *fixtureSite
	pages := map[string]string{}
	site = newFixtureSite(t, pages)
	link := func(path string) string { return site.server.URL + path }
	pages["/"] = `<html><head><title>Home</title></head><body><main>Root.</main>
		<a href="` + link("/gone") + `">gone</a><a href="` + link("/ok") + `">ok</a></body></html>`
	pages["/ok"] = `<html><head><title>OK</title></head><body><main>Fine page.</main></body></html>`
	// /gone 404s; discovery drops it, so scraping sees only / and /ok.

	c := testCrawler(t, site.server.URL)
	result, err := c.ScrapeAll(context.Background())
	if err != nil {
		t.Fatalf("ScrapeAll: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("scraped %d pages, want 2", len(result))
	}
	for _, p := range result {
		if p.URL == link("/gone") {
			t.Fatalf("404 page must not appear in results")
		}
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Flaky</title></head><body><main>Recovered content.</main></body></html>`)
	}))
	t.Cleanup(server.Close)

	c := testCrawler(t, server.URL)
	page, err := c.Fetch(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Title != "Flaky" {
		t.Fatalf("title = %q, want Flaky", page.Title)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("server saw %d attempts, want 3", attempts)
	}
}

func TestFetchNotFoundIsTerminal(t *testing.T) {
	t.Parallel()
	site := newFixtureSite(t, map[string]string{})
	c := testCrawler(t, site.server.URL)

	_, err := c.Fetch(context.Background(), site.server.URL+"/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if got := site.hitCount("/missing"); got != 1 {
		t.Fatalf("404 fetched %d times, want 1 (no retries)", got)
	}
}

func TestFetchNonHTMLIsSkippedWithoutRetry(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"not":"html"}`)
	}))
	t.Cleanup(server.Close)

	c := testCrawler(t, server.URL)
	_, err := c.Fetch(context.Background(), server.URL+"/feed")
	if !errors.Is(err, ErrNonHTML) {
		t.Fatalf("error = %v, want ErrNonHTML", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("non-html fetched %d times, want 1", hits)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	c := testCrawler(t, server.URL)
	_, err := c.Fetch(context.Background(), server.URL+"/down")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("error = %v, want ErrExhausted", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if hits != 3 {
		t.Fatalf("server saw %d attempts, want 3", hits)
	}
}

func TestParsePageExtraction(t *testing.T) {
	t.Parallel()
	scope, _ := NewScope("https://example.com")
	html := `<html><head>
		<title> Example Corp | About </title>
		<meta name="description" content="About Example Corp">
		<script>var tracked = true;</script>
	</head><body>
		<nav><a href="/hidden-by-nav">nav link</a><h1>Nav Heading</h1></nav>
		<main>Example Corp builds infrastructure. <h2>Our mission</h2>
			<img src="/img/team.png" alt="team photo">
			<a href="/about/history">history</a></main>
		<footer>All rights reserved</footer>
	</body></html>`

	page, err := parsePage(html, "https://example.com/about", scope)
	if err != nil {
		t.Fatalf("parsePage: %v", err)
	}
	if page.Title != "Example Corp | About" {
		t.Fatalf("title = %q", page.Title)
	}
	if page.Description != "About Example Corp" {
		t.Fatalf("description = %q", page.Description)
	}
	for _, link := range page.Links {
		if link == "https://example.com/hidden-by-nav" {
			t.Fatalf("nav links must be stripped before extraction, got %v", page.Links)
		}
	}
	if len(page.Links) != 1 || page.Links[0] != "https://example.com/about/history" {
		t.Fatalf("links = %v", page.Links)
	}
	if len(page.Headings) != 1 || page.Headings[0].Level != "h2" {
		t.Fatalf("headings = %v, want the single h2 outside nav", page.Headings)
	}
	if len(page.Images) != 1 || page.Images[0].Src != "https://example.com/img/team.png" {
		t.Fatalf("images = %v", page.Images)
	}
	if page.WordCount == 0 {
		t.Fatalf("word count should be positive")
	}
	if page.FetchedAt.IsZero() {
		t.Fatalf("fetched_at must be set")
	}
}
