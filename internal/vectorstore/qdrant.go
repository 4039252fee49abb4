package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/processor"
)

// QdrantStore is a minimal REST client to Qdrant. It assumes cosine distance
// and creates the collection on startup if missing.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dims       int
	embedder   *embedder
	client     *http.Client
	logger     *log.Logger
}

// NewQdrantStore connects and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg config.QdrantConfig, emb *embedder, dims int, logger *log.Logger) (*QdrantStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &QdrantStore{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dims:       dims,
		embedder:   emb,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dims,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection already exists with this schema.
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body)
}

// pointID derives a stable Qdrant point UUID from a chunk ID so that
// re-ingesting the same chunk overwrites the previous point.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (s *QdrantStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error) {
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

	points := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		points[i] = map[string]any{
			"id":     pointID(c.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id": c.ID,
				"url":      c.URL,
				"title":    c.Title,
				"content":  c.Content,
				"metadata": c.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body); err != nil {
		return 0, err
	}
	s.logger.Printf("added %d documents", len(points))
	return len(points), nil
}

func (s *QdrantStore) Search(ctx context.Context, query string, topK int, filter Filter, scoreThreshold float64) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyBatch
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	req := map[string]any{
		"vector":       vecs[0],
		"limit":        topK,
		"with_payload": true,
	}
	if scoreThreshold > 0 {
		req["score_threshold"] = scoreThreshold
	}
	if len(filter) > 0 {
		must := make([]map[string]any, 0, len(filter))
		for key, value := range filter {
			must = append(must, map[string]any{
				"key":   "metadata." + key,
				"match": map[string]any{"value": value},
			})
		}
		req["filter"] = map[string]any{"must": must}
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID  string             `json:"chunk_id"`
				Content  string             `json:"content"`
				Metadata processor.Metadata `json:"metadata"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		score := r.Score
		if score < 0 {
			score = 0
		}
		results = append(results, SearchResult{
			ID:              r.Payload.ChunkID,
			Content:         r.Payload.Content,
			Metadata:        r.Payload.Metadata,
			SimilarityScore: score,
			Rank:            len(results) + 1,
		})
	}
	return results, nil
}

func (s *QdrantStore) UpdateDocument(ctx context.Context, chunk processor.Chunk) error {
	_, err := s.AddDocuments(ctx, []processor.Chunk{chunk})
	return err
}

// Delete removes the points for the given chunk IDs. Qdrant's delete API does
// not report a count, so the matching points are counted first.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrEmptyBatch
	}
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "chunk_id", "match": map[string]any{"any": ids}},
		},
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	countReq := map[string]any{"filter": filter, "exact": true}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection), countReq, &countResp); err != nil {
		return 0, err
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}

	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}
	del := map[string]any{"points": points}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), del, nil); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

// DeleteByURL removes every point whose payload url matches. Qdrant's delete
// API does not report a count, so the matching points are counted first.
func (s *QdrantStore) DeleteByURL(ctx context.Context, url string) (int, error) {
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "url", "match": map[string]any{"value": url}},
		},
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	countReq := map[string]any{"filter": filter, "exact": true}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection), countReq, &countResp); err != nil {
		return 0, err
	}
	if countResp.Result.Count == 0 {
		return 0, nil
	}

	del := map[string]any{"filter": filter}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), del, nil); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), &info); err != nil {
		return Stats{}, err
	}

	scroll := map[string]any{"limit": statsSampleLimit, "with_payload": true}
	var page struct {
		Result struct {
			Points []struct {
				Payload struct {
					URL      string             `json:"url"`
					Metadata processor.Metadata `json:"metadata"`
				} `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/scroll", s.url, s.collection), scroll, &page); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalDocuments: info.Result.PointsCount,
		PageTypes:      map[string]int{},
		SampleSize:     len(page.Result.Points),
	}
	urls := map[string]struct{}{}
	for _, p := range page.Result.Points {
		urls[p.Payload.URL] = struct{}{}
		if p.Payload.Metadata.PageType != "" {
			stats.PageTypes[p.Payload.Metadata.PageType]++
		}
		stats.SampleWordCount += p.Payload.Metadata.WordCount
	}
	stats.UniqueURLs = len(urls)
	return stats, nil
}

// Reset drops and recreates the collection.
func (s *QdrantStore) Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()
	return s.ensureCollection(ctx)
}

func (s *QdrantStore) Close() error { return nil }

func (s *QdrantStore) putJSON(ctx context.Context, url string, body any) error {
	return s.send(ctx, http.MethodPut, url, body, nil)
}

func (s *QdrantStore) postJSON(ctx context.Context, url string, body any, out any) error {
	return s.send(ctx, http.MethodPost, url, body, out)
}

func (s *QdrantStore) getJSON(ctx context.Context, url string, out any) error {
	return s.send(ctx, http.MethodGet, url, nil, out)
}

func (s *QdrantStore) send(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
