package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsGate answers whether a path may be crawled according to the site's
// robots.txt. A nil gate, or one whose robots.txt could not be fetched,
// allows everything.
type robotsGate struct {
	group *robotstxt.Group
}

func loadRobots(ctx context.Context, baseURL, userAgent string, timeout time.Duration) *robotsGate {
	u, err := url.Parse(baseURL)
	if err != nil {
		return &robotsGate{}
	}
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return &robotsGate{}
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return &robotsGate{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &robotsGate{}
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return &robotsGate{}
	}
	return &robotsGate{group: robots.FindGroup(userAgent)}
}

func (g *robotsGate) Allowed(rawURL string) bool {
	if g == nil || g.group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return g.group.Test(path)
}
