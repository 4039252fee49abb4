package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockedExtensions lists resource types the crawler never fetches:
// documents, archives, media, stylesheets and scripts.
var blockedExtensions = []string{
	".pdf", ".zip", ".rar", ".7z",
	".doc", ".docx", ".xls", ".xlsx", ".csv",
	".ppt", ".pptx",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp",
	".mp4", ".mp3", ".wav", ".avi", ".mov", ".mkv",
	".css", ".js",
}

// Scope restricts crawling to documents on the configured host.
type Scope struct {
	baseHost string
}

// NewScope derives the crawl scope from the site's base URL.
func NewScope(baseURL string) (*Scope, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Scope{baseHost: u.Host}, nil
}

// InScope reports whether raw may be fetched: same host as the base URL,
// no fragment, and no blocked resource extension anywhere in the URL.
func (s *Scope) InScope(raw string) bool {
	if strings.Contains(raw, "#") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Host != s.baseHost {
		return false
	}
	low := strings.ToLower(raw)
	for _, ext := range blockedExtensions {
		if strings.Contains(low, ext) {
			return false
		}
	}
	return true
}

// ExtractLinks resolves every anchor href in doc against base and returns the
// deduplicated in-scope results in document order.
func (s *Scope) ExtractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		full := base.ResolveReference(ref).String()
		if !s.InScope(full) {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		links = append(links, full)
	})
	return links
}
