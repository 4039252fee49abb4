package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siterag_crawler_pages_fetched_total",
		Help: "Fetch outcomes by result (ok, not_found, non_html, exhausted).",
	}, []string{"result"})

	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siterag_crawler_fetch_retries_total",
		Help: "Fetch attempts beyond the first, across all URLs.",
	})

	urlsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siterag_crawler_urls_discovered_total",
		Help: "Unique in-scope URLs discovered during BFS traversal.",
	})
)
