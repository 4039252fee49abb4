// Package vectorstore embeds document chunks and serves similarity search
// over one of several storage backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/processor"
	"github.com/signalworks/siterag/provider"
)

var (
	// ErrEmptyBatch is returned when an add or search is attempted with no input.
	ErrEmptyBatch = errors.New("vectorstore: empty batch")
	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("vectorstore: backend unavailable")
)

// SearchResult is one scored chunk. SimilarityScore is max(0, 1 - cosine
// distance), so it is always in [0, 1] and higher means closer.
type SearchResult struct {
	ID              string             `json:"id"`
	Content         string             `json:"content"`
	Metadata        processor.Metadata `json:"metadata"`
	SimilarityScore float64            `json:"similarity_score"`
	Rank            int                `json:"rank"`
}

// Stats describes the indexed corpus. URL, page-type and word aggregates are
// estimated from a bounded sample of stored documents.
type Stats struct {
	TotalDocuments  int            `json:"total_documents"`
	UniqueURLs      int            `json:"unique_urls"`
	PageTypes       map[string]int `json:"page_types"`
	SampleWordCount int            `json:"sample_word_count"`
	SampleSize      int            `json:"sample_size"`
}

// Filter restricts a search to documents whose metadata matches every entry.
// Supported keys: page_type, domain, url, title.
type Filter map[string]string

func (f Filter) matches(m processor.Metadata) bool {
	for key, want := range f {
		got, ok := metadataField(m, key)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func metadataField(m processor.Metadata, key string) (string, bool) {
	switch key {
	case "page_type":
		return m.PageType, true
	case "domain":
		return m.Domain, true
	case "url":
		return m.URL, true
	case "title":
		return m.Title, true
	}
	return "", false
}

// Store is the vector index contract. Implementations upsert by chunk ID and
// return results ordered by descending similarity.
type Store interface {
	AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error)
	Search(ctx context.Context, query string, topK int, filter Filter, scoreThreshold float64) ([]SearchResult, error)
	UpdateDocument(ctx context.Context, chunk processor.Chunk) error
	Delete(ctx context.Context, ids []string) (int, error)
	DeleteByURL(ctx context.Context, url string) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Reset(ctx context.Context) error
	Close() error
}

// statsSampleLimit bounds how many documents Stats inspects.
const statsSampleLimit = 100

// embedder batches embedding calls against the provider.
type embedder struct {
	provider  provider.Provider
	batchSize int
}

func newEmbedder(p provider.Provider, batchSize int) *embedder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &embedder{provider: p, batchSize: batchSize}
}

// Embed generates embeddings for all texts in provider batches, preserving
// input order.
func (e *embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.provider.CreateEmbedding(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d): %w", i, end, err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// New builds the configured backend, wraps it with the lexical sidecar when
// hybrid retrieval is on, and instruments the result.
func New(ctx context.Context, cfg config.StorageConfig, ingest config.IngestConfig, retrieval config.RetrievalConfig, p provider.Provider, dims int, logger *log.Logger) (Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[VECTORSTORE] ", log.LstdFlags)
	}
	emb := newEmbedder(p, ingest.EmbeddingBatchSize)

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "postgres":
		store, err = NewPostgresStore(ctx, cfg.Postgres, emb, dims, logger)
	case "qdrant":
		store, err = NewQdrantStore(ctx, cfg.Qdrant, emb, dims, logger)
	case "memory":
		store = NewMemoryStore(emb, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if retrieval.Hybrid {
		store, err = NewHybridStore(store, retrieval.LexicalPath, logger)
		if err != nil {
			return nil, err
		}
	}
	return withMetrics(store), nil
}

// similarityFromDistance converts a cosine distance into a clamped score.
func similarityFromDistance(distance float64) float64 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	return score
}
