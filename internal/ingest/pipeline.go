// Package ingest drives the crawl, process and index pipeline and its
// optional refresh schedule.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/crawler"
	"github.com/signalworks/siterag/internal/processor"
	"github.com/signalworks/siterag/internal/vectorstore"
)

// Scraper produces the site's pages. Satisfied by *crawler.Crawler.
type Scraper interface {
	ScrapeAll(ctx context.Context) ([]*crawler.Page, error)
}

// Result summarizes one pipeline run.
type Result struct {
	PagesScraped    int           `json:"pages_scraped"`
	ChunksProduced  int           `json:"chunks_produced"`
	DocumentsStored int           `json:"documents_stored"`
	Duration        time.Duration `json:"duration"`
}

// Pipeline wires the crawl, process and index stages.
type Pipeline struct {
	scraper   Scraper
	processor *processor.Processor
	store     vectorstore.Store
	cfg       config.IngestConfig
	logger    *log.Logger
}

func NewPipeline(scraper Scraper, proc *processor.Processor, store vectorstore.Store, cfg config.IngestConfig, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Pipeline{scraper: scraper, processor: proc, store: store, cfg: cfg, logger: logger}
}

// Run executes one full ingestion. Optional JSON artifacts of the scraped
// pages and produced chunks are written when paths are configured.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	p.logger.Printf("starting ingestion")

	pages, err := p.scraper.ScrapeAll(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("scrape: %w", err)
	}
	if p.cfg.PagesFile != "" {
		if err := writeJSON(p.cfg.PagesFile, pages); err != nil {
			p.logger.Printf("failed to write pages artifact: %v", err)
		}
	}

	chunks := p.processor.ProcessAllPages(pages)
	if p.cfg.ChunksFile != "" {
		if err := writeJSON(p.cfg.ChunksFile, chunks); err != nil {
			p.logger.Printf("failed to write chunks artifact: %v", err)
		}
	}

	stored := 0
	if len(chunks) > 0 {
		stored, err = p.store.AddDocuments(ctx, chunks)
		if err != nil {
			return Result{}, fmt.Errorf("index: %w", err)
		}
	}

	res := Result{
		PagesScraped:    len(pages),
		ChunksProduced:  len(chunks),
		DocumentsStored: stored,
		Duration:        time.Since(start),
	}
	p.logger.Printf("ingestion complete: %d pages, %d chunks, %d stored in %s",
		res.PagesScraped, res.ChunksProduced, res.DocumentsStored, res.Duration.Round(time.Millisecond))
	return res, nil
}

// RunFromFile replays a previously saved pages artifact through the process
// and index stages, skipping the crawl.
func (p *Pipeline) RunFromFile(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read pages file: %w", err)
	}
	var pages []*crawler.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return Result{}, fmt.Errorf("decode pages file: %w", err)
	}
	p.logger.Printf("loaded %d pages from %s", len(pages), path)

	chunks := p.processor.ProcessAllPages(pages)
	if p.cfg.ChunksFile != "" {
		if err := writeJSON(p.cfg.ChunksFile, chunks); err != nil {
			p.logger.Printf("failed to write chunks artifact: %v", err)
		}
	}

	stored := 0
	if len(chunks) > 0 {
		stored, err = p.store.AddDocuments(ctx, chunks)
		if err != nil {
			return Result{}, fmt.Errorf("index: %w", err)
		}
	}
	return Result{
		PagesScraped:    len(pages),
		ChunksProduced:  len(chunks),
		DocumentsStored: stored,
		Duration:        time.Since(start),
	}, nil
}

// Close releases the scraper's resources, including any headless browser it
// holds. Safe to call once all runs have finished.
func (p *Pipeline) Close() {
	if c, ok := p.scraper.(interface{ Close() }); ok {
		c.Close()
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
