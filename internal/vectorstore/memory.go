package vectorstore

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/signalworks/siterag/internal/processor"
)

// MemoryStore is an in-process backend. It exists for development and tests;
// everything is lost on restart.
type MemoryStore struct {
	embedder *embedder
	logger   *log.Logger

	mu   sync.RWMutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	chunk  processor.Chunk
	vector []float32
}

func NewMemoryStore(emb *embedder, logger *log.Logger) *MemoryStore {
	if logger == nil {
		logger = log.New(log.Writer(), "[VECTORSTORE] ", log.LstdFlags)
	}
	return &MemoryStore{embedder: emb, logger: logger, docs: map[string]memoryDoc{}}
}

func (s *MemoryStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, ErrEmptyBatch
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		s.docs[c.ID] = memoryDoc{chunk: c, vector: vectors[i]}
	}
	return len(chunks), nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, topK int, filter Filter, scoreThreshold float64) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyBatch
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qv := vecs[0]

	s.mu.RLock()
	scored := make([]SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		if !filter.matches(doc.chunk.Metadata) {
			continue
		}
		score := similarityFromDistance(1 - cosineSimilarity(qv, doc.vector))
		scored = append(scored, SearchResult{
			ID:              doc.chunk.ID,
			Content:         doc.chunk.Content,
			Metadata:        doc.chunk.Metadata,
			SimilarityScore: score,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].SimilarityScore > scored[j].SimilarityScore
	})

	var results []SearchResult
	for _, r := range scored {
		if len(results) == topK {
			break
		}
		if r.SimilarityScore < scoreThreshold {
			continue
		}
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, chunk processor.Chunk) error {
	_, err := s.AddDocuments(ctx, []processor.Chunk{chunk})
	return err
}

func (s *MemoryStore) Delete(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.docs[id]; ok {
			delete(s.docs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteByURL(ctx context.Context, url string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, doc := range s.docs {
		if doc.chunk.URL == url {
			delete(s.docs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalDocuments: len(s.docs), PageTypes: map[string]int{}}
	urls := map[string]struct{}{}
	for _, doc := range s.docs {
		if stats.SampleSize == statsSampleLimit {
			break
		}
		urls[doc.chunk.URL] = struct{}{}
		if doc.chunk.Metadata.PageType != "" {
			stats.PageTypes[doc.chunk.Metadata.PageType]++
		}
		stats.SampleWordCount += doc.chunk.Metadata.WordCount
		stats.SampleSize++
	}
	stats.UniqueURLs = len(urls)
	return stats, nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = map[string]memoryDoc{}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
