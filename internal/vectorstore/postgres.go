package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/processor"
)

// PostgresStore keeps chunks and their embeddings in a pgvector table.
type PostgresStore struct {
	db       *sql.DB
	embedder *embedder
	dims     int
	logger   *log.Logger
}

// NewPostgresStore opens the pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, emb *embedder, dims int, logger *log.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", ErrUnavailable, err)
	}
	return &PostgresStore{db: db, embedder: emb, dims: dims, logger: logger}, nil
}

// NewPostgresStoreWithDB wraps an existing connection, used by tests.
func NewPostgresStoreWithDB(db *sql.DB, emb *embedder, dims int, logger *log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.New(log.Writer(), "[VECTORSTORE] ", log.LstdFlags)
	}
	return &PostgresStore{db: db, embedder: emb, dims: dims, logger: logger}
}

// AddDocuments embeds the chunks in batches and upserts them by ID. Returns
// the number of documents written.
func (s *PostgresStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO documents (id, url, title, content, metadata, embedding, updated_at)
VALUES ($1,$2,$3,$4,$5,$6::vector,NOW())
ON CONFLICT (id) DO UPDATE SET
  url = EXCLUDED.url,
  title = EXCLUDED.title,
  content = EXCLUDED.content,
  metadata = EXCLUDED.metadata,
  embedding = EXCLUDED.embedding,
  updated_at = NOW();
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for i, c := range chunks {
		var lit string
		lit, err = encodeVectorLiteral(vectors[i])
		if err != nil {
			return 0, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		var metaBytes []byte
		metaBytes, err = json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", c.ID, err)
		}
		if _, err = stmt.ExecContext(ctx, c.ID, c.URL, c.Title, c.Content, metaBytes, lit); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", c.ID, err)
		}
		written++
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Printf("added %d documents", written)
	return written, nil
}

// Search embeds the query and returns the topK closest chunks at or above the
// score threshold, ranked from 1.
func (s *PostgresStore) Search(ctx context.Context, query string, topK int, filter Filter, scoreThreshold float64) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyBatch
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	lit, err := encodeVectorLiteral(vecs[0])
	if err != nil {
		return nil, err
	}

	where, args := filterClause(filter, 3)
	args = append([]interface{}{lit, topK}, args...)
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, metadata, embedding <=> $1::vector AS distance
FROM documents
`+where+`ORDER BY embedding <=> $1::vector
LIMIT $2
`, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r         SearchResult
			metaBytes []byte
			distance  float64
		)
		if err := rows.Scan(&r.ID, &r.Content, &metaBytes, &distance); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(metaBytes, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
		r.SimilarityScore = similarityFromDistance(distance)
		if r.SimilarityScore < scoreThreshold {
			continue
		}
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpdateDocument re-embeds one chunk and replaces the stored record.
func (s *PostgresStore) UpdateDocument(ctx context.Context, chunk processor.Chunk) error {
	n, err := s.AddDocuments(ctx, []processor.Chunk{chunk})
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("update %s: wrote %d documents", chunk.ID, n)
	}
	return nil
}

// Delete removes the given chunk IDs and returns the count removed.
func (s *PostgresStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrEmptyBatch
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteByURL removes every chunk of a page and returns the count removed.
func (s *PostgresStore) DeleteByURL(ctx context.Context, url string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE url = $1`, url)
	if err != nil {
		return 0, fmt.Errorf("delete by url: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Stats counts all documents and estimates URL and page-type spread from a
// bounded sample.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{PageTypes: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments); err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT url, metadata FROM documents LIMIT $1`, statsSampleLimit)
	if err != nil {
		return Stats{}, fmt.Errorf("sample documents: %w", err)
	}
	defer rows.Close()

	urls := map[string]struct{}{}
	for rows.Next() {
		var (
			url       string
			metaBytes []byte
		)
		if err := rows.Scan(&url, &metaBytes); err != nil {
			return Stats{}, fmt.Errorf("scan sample: %w", err)
		}
		urls[url] = struct{}{}
		var meta processor.Metadata
		if err := json.Unmarshal(metaBytes, &meta); err == nil {
			if meta.PageType != "" {
				stats.PageTypes[meta.PageType]++
			}
			stats.SampleWordCount += meta.WordCount
		}
		stats.SampleSize++
	}
	stats.UniqueURLs = len(urls)
	return stats, rows.Err()
}

// Reset drops all indexed documents.
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE documents`); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	s.logger.Printf("index reset")
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// filterClause renders a metadata filter as a WHERE clause with placeholders
// starting at $next. Keys are sorted so the SQL is stable.
func filterClause(filter Filter, next int) (string, []interface{}) {
	if len(filter) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("metadata->>$%d = $%d", next, next+1))
		args = append(args, k, filter[k])
		next += 2
	}
	return "WHERE " + strings.Join(conds, " AND ") + "\n", args
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
