package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalworks/siterag/internal/processor"
)

var (
	documentsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siterag_vectorstore_documents_added_total",
		Help: "Documents upserted into the vector index.",
	})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "siterag_vectorstore_search_duration_seconds",
		Help:    "End to end similarity search latency, embedding included.",
		Buckets: prometheus.DefBuckets,
	})
	searchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "siterag_vectorstore_search_results",
		Help:    "Results returned per search after threshold filtering.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})
)

// instrumented decorates a Store with prometheus metrics.
type instrumented struct {
	Store
}

func withMetrics(s Store) Store { return instrumented{Store: s} }

func (m instrumented) AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error) {
	n, err := m.Store.AddDocuments(ctx, chunks)
	if err == nil {
		documentsAdded.Add(float64(n))
	}
	return n, err
}

func (m instrumented) Search(ctx context.Context, query string, topK int, filter Filter, scoreThreshold float64) ([]SearchResult, error) {
	start := time.Now()
	results, err := m.Store.Search(ctx, query, topK, filter, scoreThreshold)
	if err == nil {
		searchDuration.Observe(time.Since(start).Seconds())
		searchResults.Observe(float64(len(results)))
	}
	return results, err
}
