package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// fetchResult is the raw outcome of one fetch attempt, before parsing.
type fetchResult struct {
	Status      int
	ContentType string
	Body        string
}

// Fetcher retrieves one URL. Implementations: plain HTTP and a headless
// chromedp variant for script-rendered sites.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetchResult, error)
	Close()
}

type httpFetcher struct {
	client    *http.Client
	userAgent string
}

func newHTTPFetcher(timeout time.Duration, userAgent string) *httpFetcher {
	return &httpFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, rawURL string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return fetchResult{}, err
	}
	defer resp.Body.Close()

	ctype := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || !strings.Contains(ctype, "text/html") {
		// Body is irrelevant for non-200 and non-HTML responses.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fetchResult{Status: resp.StatusCode, ContentType: ctype}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, fmt.Errorf("read body: %w", err)
	}
	return fetchResult{Status: resp.StatusCode, ContentType: ctype, Body: string(body)}, nil
}

func (f *httpFetcher) Close() { f.client.CloseIdleConnections() }

// parsePage turns fetched HTML into a Page. Script, style, nav, header and
// footer regions are dropped before any text extraction so chrome never leaks
// into content, headings or images.
func parsePage(html, pageURL string, scope *Scope) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, nav, header, footer").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "No Title"
	}

	content := extractMainText(doc)
	if content == "" {
		// Heavily templated pages sometimes hide the article outside the
		// structural containers; readability usually still finds it.
		if article, rerr := readability.FromReader(strings.NewReader(html), base); rerr == nil {
			content = normalizeSpace(article.TextContent)
		}
	}

	var headings []Heading
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		headings = append(headings, Heading{
			Level: goquery.NodeName(sel),
			Text:  strings.TrimSpace(sel.Text()),
		})
	})

	description := ""
	if meta := doc.Find(`meta[name="description"]`).First(); meta.Length() > 0 {
		description, _ = meta.Attr("content")
	}

	var images []Image
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		ref, perr := url.Parse(src)
		if perr != nil {
			return
		}
		alt, _ := sel.Attr("alt")
		imgTitle, _ := sel.Attr("title")
		images = append(images, Image{
			Src:   base.ResolveReference(ref).String(),
			Alt:   alt,
			Title: imgTitle,
		})
	})

	return &Page{
		URL:         pageURL,
		Title:       title,
		Content:     content,
		Description: description,
		Headings:    headings,
		Images:      images,
		Links:       scope.ExtractLinks(doc, base),
		FetchedAt:   time.Now().UTC(),
		WordCount:   len(strings.Fields(content)),
	}, nil
}

// extractMainText prefers the main element, then a div.content container,
// then the whole body.
func extractMainText(doc *goquery.Document) string {
	for _, selector := range []string{"main", "div.content", "body"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := normalizeSpace(sel.Text()); text != "" {
			return text
		}
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
