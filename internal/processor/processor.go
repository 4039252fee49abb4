// Package processor filters, cleans and chunks crawled pages into the
// retrievable units stored by the vector index.
package processor

import (
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/crawler"
)

// Metadata is the per-page context carried on every chunk.
type Metadata struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	FetchedAt    int64    `json:"fetched_at"`
	WordCount    int      `json:"word_count"`
	HasImages    bool     `json:"has_images"`
	ImageCount   int      `json:"image_count"`
	HeadingCount int      `json:"heading_count"`
	Domain       string   `json:"domain"`
	PageType     string   `json:"page_type"`
	MainHeadings []string `json:"main_headings"`
}

// Chunk is one retrievable unit of a page's cleaned text. Never mutated after
// creation; an update replaces the stored record by ID.
type Chunk struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	URL         string   `json:"url"`
	Metadata    Metadata `json:"metadata"`
	ChunkIndex  int      `json:"chunk_index"`
	TotalChunks int      `json:"total_chunks"`
}

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reNewlines   = regexp.MustCompile(`\n+`)
	reDisallowed = regexp.MustCompile(`[^\w\s.,!?;:\-()\[\]"'/]`)
)

// stopPhrases are boilerplate fragments stripped case-insensitively from all
// page text before chunking.
var stopPhrases = []string{
	"cookie policy", "privacy policy", "terms of service",
	"all rights reserved", "copyright", "follow us on",
	"social media", "newsletter", "subscribe",
}

// Processor cleans and chunks pages. Pure and synchronous: the only inputs
// are the pages themselves and the chunking configuration.
type Processor struct {
	chunkSize    int
	chunkOverlap int
	logger       *log.Logger
}

// New builds a processor with the configured chunk arithmetic.
func New(cfg config.ProcessorConfig, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[PROCESSOR] ", log.LstdFlags)
	}
	return &Processor{
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		logger:       logger,
	}
}

// CleanText normalizes whitespace, strips characters outside the allowed set
// and removes boilerplate phrases.
func (p *Processor) CleanText(text string) string {
	if text == "" {
		return ""
	}
	cleaned := reWhitespace.ReplaceAllString(text, " ")
	cleaned = reNewlines.ReplaceAllString(cleaned, "\n")
	cleaned = reDisallowed.ReplaceAllString(cleaned, "")
	for _, phrase := range stopPhrases {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}

// IsQualityContent decides whether a page is worth indexing. Rejections are
// filter decisions, not errors.
func (p *Processor) IsQualityContent(page *crawler.Page) bool {
	if page.WordCount < 50 {
		return false
	}
	content := page.Content
	if len(strings.TrimSpace(content)) < 100 {
		return false
	}
	// Long runs of a single whitespace character usually mean the markup
	// extraction went wrong.
	for _, ch := range []string{" ", "\n", "\t"} {
		if strings.Contains(content, strings.Repeat(ch, 10)) {
			return false
		}
	}
	meaningful := 0
	for _, sentence := range strings.Split(content, ".") {
		if len(strings.TrimSpace(sentence)) > 10 {
			meaningful++
		}
	}
	return meaningful >= 2
}

// ExtractMetadata classifies the page and records the context that travels
// with each of its chunks.
func (p *Processor) ExtractMetadata(page *crawler.Page) Metadata {
	meta := Metadata{
		URL:          page.URL,
		Title:        page.Title,
		Description:  page.Description,
		FetchedAt:    page.FetchedAt.Unix(),
		WordCount:    page.WordCount,
		HasImages:    len(page.Images) > 0,
		ImageCount:   len(page.Images),
		HeadingCount: len(page.Headings),
		PageType:     classifyPageType(page.URL),
	}
	if u, err := url.Parse(page.URL); err == nil {
		meta.Domain = u.Host
	}
	for _, h := range page.Headings {
		if h.Level == "h1" || h.Level == "h2" {
			meta.MainHeadings = append(meta.MainHeadings, h.Text)
		}
	}
	return meta
}

func classifyPageType(pageURL string) string {
	switch {
	case strings.Contains(pageURL, "/news/"):
		return "news"
	case strings.Contains(pageURL, "/career/"), strings.Contains(pageURL, "/jobs/"):
		return "career"
	case strings.Contains(pageURL, "/about/"):
		return "about"
	case strings.Contains(pageURL, "/contact/"):
		return "contact"
	case strings.Contains(pageURL, "/investor/"):
		return "investor"
	default:
		return "general"
	}
}

// ChunkText splits text into word windows of chunkSize with chunkOverlap
// words shared between consecutive windows. The title is prefixed to the
// first chunk only. Text at or under the window size is returned whole.
func (p *Processor) ChunkText(text, title string) []string {
	if text == "" {
		return nil
	}
	words := strings.Fields(text)
	if len(words) <= p.chunkSize {
		return []string{text}
	}

	titlePrefix := ""
	if title != "" {
		titlePrefix = title + "\n\n"
	}

	var chunks []string
	step := p.chunkSize - p.chunkOverlap
	for start := 0; start < len(words); start += step {
		end := start + p.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		if start == 0 && titlePrefix != "" {
			chunk = titlePrefix + chunk
		}
		chunks = append(chunks, chunk)
		if end == len(words) {
			break
		}
	}
	return chunks
}

// ProcessPage turns one page into its chunk sequence. Low-quality pages and
// pages whose cleaned content is empty yield no chunks.
func (p *Processor) ProcessPage(page *crawler.Page) []Chunk {
	if !p.IsQualityContent(page) {
		p.logger.Printf("skipping low-quality content: %s", page.URL)
		return nil
	}
	cleaned := p.CleanText(page.Content)
	if cleaned == "" {
		return nil
	}

	meta := p.ExtractMetadata(page)
	parts := p.ChunkText(cleaned, page.Title)

	chunks := make([]Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("%s_chunk_%d", page.URL, i),
			Title:       page.Title,
			Content:     part,
			URL:         page.URL,
			Metadata:    meta,
			ChunkIndex:  i,
			TotalChunks: len(parts),
		})
	}
	p.logger.Printf("processed %s into %d chunks", page.URL, len(chunks))
	return chunks
}

// ProcessAllPages processes every page independently. A failing page is
// counted as skipped and never aborts the rest of the batch.
func (p *Processor) ProcessAllPages(pages []*crawler.Page) []Chunk {
	p.logger.Printf("processing %d pages", len(pages))

	var all []Chunk
	processed, skipped := 0, 0
	for _, page := range pages {
		chunks := p.processPageSafe(page)
		if len(chunks) == 0 {
			skipped++
			continue
		}
		all = append(all, chunks...)
		processed++
	}

	p.logger.Printf("processing complete: %d pages processed, %d skipped, %d chunks", processed, skipped, len(all))
	return all
}

// processPageSafe converts a panic from a malformed page into a skip.
func (p *Processor) processPageSafe(page *crawler.Page) (chunks []Chunk) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("error processing page %s: %v", page.URL, r)
			chunks = nil
		}
	}()
	if page == nil {
		return nil
	}
	return p.ProcessPage(page)
}
