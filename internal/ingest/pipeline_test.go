package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/crawler"
	"github.com/signalworks/siterag/internal/processor"
	"github.com/signalworks/siterag/internal/vectorstore"
)

type fakeScraper struct {
	pages []*crawler.Page
	err   error
}

func (f *fakeScraper) ScrapeAll(ctx context.Context) ([]*crawler.Page, error) {
	return f.pages, f.err
}

type recordingStore struct {
	vectorstore.Store
	added []processor.Chunk
	err   error
}

func (r *recordingStore) AddDocuments(ctx context.Context, chunks []processor.Chunk) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.added = append(r.added, chunks...)
	return len(chunks), nil
}

func qualityPage(url, title string) *crawler.Page {
	var b strings.Builder
	for i := 0; i < 12; i++ {
		b.WriteString("This is a reasonably long sentence about the company and its work. ")
	}
	content := strings.TrimSpace(b.String())
	return &crawler.Page{
		URL:       url,
		Title:     title,
		Content:   content,
		FetchedAt: time.Now(),
		WordCount: len(strings.Fields(content)),
	}
}

func testPipeline(scraper Scraper, store *recordingStore, cfg config.IngestConfig) *Pipeline {
	proc := processor.New(config.ProcessorConfig{ChunkSize: 500, ChunkOverlap: 100}, nil)
	return NewPipeline(scraper, proc, store, cfg, nil)
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()
	scraper := &fakeScraper{pages: []*crawler.Page{
		qualityPage("https://example.com/a", "A"),
		qualityPage("https://example.com/b", "B"),
		{URL: "https://example.com/junk", Content: "tiny", WordCount: 1},
	}}
	store := &recordingStore{}

	res, err := testPipeline(scraper, store, config.IngestConfig{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PagesScraped != 3 {
		t.Fatalf("PagesScraped = %d, want 3", res.PagesScraped)
	}
	if res.ChunksProduced != 2 || res.DocumentsStored != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(store.added) != 2 {
		t.Fatalf("store received %d chunks", len(store.added))
	}
}

func TestPipelineWritesArtifacts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := config.IngestConfig{
		PagesFile:  filepath.Join(dir, "pages.json"),
		ChunksFile: filepath.Join(dir, "chunks.json"),
	}
	scraper := &fakeScraper{pages: []*crawler.Page{qualityPage("https://example.com/a", "A")}}

	if _, err := testPipeline(scraper, &recordingStore{}, cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(cfg.PagesFile)
	if err != nil {
		t.Fatalf("read pages artifact: %v", err)
	}
	var pages []crawler.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		t.Fatalf("decode pages artifact: %v", err)
	}
	if len(pages) != 1 || pages[0].URL != "https://example.com/a" {
		t.Fatalf("pages artifact = %+v", pages)
	}

	data, err = os.ReadFile(cfg.ChunksFile)
	if err != nil {
		t.Fatalf("read chunks artifact: %v", err)
	}
	var chunks []processor.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		t.Fatalf("decode chunks artifact: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("chunks artifact has %d chunks", len(chunks))
	}
}

func TestPipelineRunFromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	pagesFile := filepath.Join(dir, "pages.json")

	pages := []*crawler.Page{
		qualityPage("https://example.com/a", "A"),
		qualityPage("https://example.com/b", "B"),
	}
	data, err := json.Marshal(pages)
	if err != nil {
		t.Fatalf("marshal pages: %v", err)
	}
	if err := os.WriteFile(pagesFile, data, 0o644); err != nil {
		t.Fatalf("write pages file: %v", err)
	}

	scraper := &fakeScraper{err: errors.New("scraper must not run")}
	store := &recordingStore{}
	res, err := testPipeline(scraper, store, config.IngestConfig{}).RunFromFile(context.Background(), pagesFile)
	if err != nil {
		t.Fatalf("RunFromFile: %v", err)
	}
	if res.PagesScraped != 2 || res.DocumentsStored != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestPipelineScrapeFailure(t *testing.T) {
	t.Parallel()
	scraper := &fakeScraper{err: errors.New("network down")}
	if _, err := testPipeline(scraper, &recordingStore{}, config.IngestConfig{}).Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

type closableScraper struct {
	fakeScraper
	closes int
}

func (c *closableScraper) Close() { c.closes++ }

func TestPipelineCloseReleasesScraper(t *testing.T) {
	t.Parallel()
	scraper := &closableScraper{}
	p := testPipeline(scraper, &recordingStore{}, config.IngestConfig{})

	p.Close()
	if scraper.closes != 1 {
		t.Fatalf("scraper closed %d times, want 1", scraper.closes)
	}

	// a scraper without Close is tolerated
	testPipeline(&fakeScraper{}, &recordingStore{}, config.IngestConfig{}).Close()
}

func TestPipelineNoChunksSkipsIndexing(t *testing.T) {
	t.Parallel()
	scraper := &fakeScraper{pages: []*crawler.Page{{URL: "https://example.com/junk", Content: "tiny", WordCount: 1}}}
	store := &recordingStore{err: errors.New("must not be called")}

	res, err := testPipeline(scraper, store, config.IngestConfig{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.DocumentsStored != 0 {
		t.Fatalf("DocumentsStored = %d", res.DocumentsStored)
	}
}

func TestSchedulerRejectsBadExpression(t *testing.T) {
	t.Parallel()
	if _, err := NewScheduler(testPipeline(&fakeScraper{}, &recordingStore{}, config.IngestConfig{}), "not a cron", nil); err == nil {
		t.Fatalf("expected error for invalid expression")
	}
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	t.Parallel()
	store := &recordingStore{}
	scraper := &fakeScraper{pages: []*crawler.Page{qualityPage("https://example.com/a", "A")}}
	sched, err := NewScheduler(testPipeline(scraper, store, config.IngestConfig{}), "* * * * * * *", nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	sched.Run(ctx)

	if len(store.added) == 0 {
		t.Fatalf("scheduler never ran the pipeline")
	}
}
