package vectorstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/signalworks/siterag/internal/processor"
)

const rrfK = 60

// lexicalDoc is the shape indexed into bleve.
type lexicalDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// HybridStore layers a BM25 index over a vector backend and fuses the two
// rankings with reciprocal rank fusion. The vector backend stays the source
// of truth; the lexical index is rebuilt alongside it.
type HybridStore struct {
	inner Store
	idx   bleve.Index

	mu   sync.RWMutex
	meta map[string]processor.Chunk

	logger *log.Logger
}

// NewHybridStore wraps inner with a bleve index. An empty path keeps the
// index in memory.
func NewHybridStore(inner Store, path string, logger *log.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[VECTORSTORE] ", log.LstdFlags)
	}
	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else if _, statErr := os.Stat(path); statErr == nil {
		idx, err = bleve.Open(path)
	} else {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}
	return &HybridStore{inner: inner, idx: idx, meta: map[string]processor.Chunk{}, logger: logger}, nil
}

func (h *HybridStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error) {
	n, err := h.inner.AddDocuments(ctx, chunks)
	if err != nil {
		return n, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range chunks {
		if err := h.idx.Index(c.ID, lexicalDoc{Title: c.Title, Content: c.Content, URL: c.URL}); err != nil {
			return n, fmt.Errorf("lexical index %s: %w", c.ID, err)
		}
		h.meta[c.ID] = c
	}
	return n, nil
}

// Search runs both legs and fuses them. The score threshold applies to the
// vector leg before fusion; RRF scores are rank based and not comparable to
// cosine similarity, so fused results carry the vector score where one exists.
func (h *HybridStore) Search(ctx context.Context, query string, topK int, filter Filter, scoreThreshold float64) ([]SearchResult, error) {
	vector, err := h.inner.Search(ctx, query, topK, filter, scoreThreshold)
	if err != nil {
		return nil, err
	}
	lexical, err := h.bm25Search(query, topK, filter)
	if err != nil {
		h.logger.Printf("lexical search failed, vector results only: %v", err)
		return vector, nil
	}
	return fuseRRF(vector, lexical, topK), nil
}

func (h *HybridStore) bm25Search(q string, k int, filter Filter) ([]SearchResult, error) {
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)
	res, err := h.idx.Search(req)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []SearchResult
	for _, hit := range res.Hits {
		c, ok := h.meta[hit.ID]
		if !ok || !filter.matches(c.Metadata) {
			continue
		}
		out = append(out, SearchResult{
			ID:       hit.ID,
			Content:  c.Content,
			Metadata: c.Metadata,
			Rank:     len(out) + 1,
		})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func fuseRRF(vector, lexical []SearchResult, k int) []SearchResult {
	type agg struct {
		item  SearchResult
		fused float64
	}
	m := map[string]*agg{}
	add := func(list []SearchResult, keepScore bool) {
		for _, r := range list {
			x, ok := m[r.ID]
			if !ok {
				x = &agg{item: r}
				m[r.ID] = x
			}
			if keepScore && r.SimilarityScore > x.item.SimilarityScore {
				x.item.SimilarityScore = r.SimilarityScore
			}
			x.fused += 1.0 / float64(rrfK+r.Rank)
		}
	}
	add(vector, true)
	add(lexical, false)

	items := make([]*agg, 0, len(m))
	for _, v := range m {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].fused > items[j].fused })

	if k > len(items) {
		k = len(items)
	}
	out := make([]SearchResult, 0, k)
	for i := 0; i < k; i++ {
		r := items[i].item
		r.Rank = i + 1
		out = append(out, r)
	}
	return out
}

func (h *HybridStore) UpdateDocument(ctx context.Context, chunk processor.Chunk) error {
	if err := h.inner.UpdateDocument(ctx, chunk); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.meta[chunk.ID] = chunk
	return h.idx.Index(chunk.ID, lexicalDoc{Title: chunk.Title, Content: chunk.Content, URL: chunk.URL})
}

func (h *HybridStore) Delete(ctx context.Context, ids []string) (int, error) {
	n, err := h.inner.Delete(ctx, ids)
	if err != nil {
		return n, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if _, ok := h.meta[id]; ok {
			delete(h.meta, id)
			_ = h.idx.Delete(id)
		}
	}
	return n, nil
}

func (h *HybridStore) DeleteByURL(ctx context.Context, url string) (int, error) {
	n, err := h.inner.DeleteByURL(ctx, url)
	if err != nil {
		return n, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.meta {
		if c.URL == url {
			delete(h.meta, id)
			_ = h.idx.Delete(id)
		}
	}
	return n, nil
}

func (h *HybridStore) Stats(ctx context.Context) (Stats, error) { return h.inner.Stats(ctx) }

func (h *HybridStore) Reset(ctx context.Context) error {
	if err := h.inner.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.meta {
		_ = h.idx.Delete(id)
	}
	h.meta = map[string]processor.Chunk{}
	return nil
}

func (h *HybridStore) Close() error {
	if err := h.idx.Close(); err != nil {
		return err
	}
	return h.inner.Close()
}
