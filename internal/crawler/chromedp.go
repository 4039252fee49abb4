package crawler

import (
	"context"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

// renderedFetcher retrieves pages through a headless browser so that
// script-rendered markup is visible to the parser. One exec allocator is
// shared for the crawl's lifetime and torn down in Close.
type renderedFetcher struct {
	userAgent string
	timeout   time.Duration
	allocCtx  context.Context
	cancel    context.CancelFunc
}

func newRenderedFetcher(timeout time.Duration, userAgent string) *renderedFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &renderedFetcher{
		userAgent: userAgent,
		timeout:   timeout,
		allocCtx:  allocCtx,
		cancel:    cancel,
	}
}

func (f *renderedFetcher) Fetch(ctx context.Context, rawURL string) (fetchResult, error) {
	ctx, cancelTimeout := context.WithTimeout(ctx, f.timeout)
	defer cancelTimeout()

	bctx, cancelBrowser := chromedp.NewContext(f.allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if ctx.Err() != nil {
		return fetchResult{}, ctx.Err()
	}
	if err != nil {
		return fetchResult{}, err
	}
	// The DevTools protocol hides the status line; a rendered document is
	// treated as a successful HTML response.
	return fetchResult{Status: http.StatusOK, ContentType: "text/html", Body: html}, nil
}

func (f *renderedFetcher) Close() { f.cancel() }
