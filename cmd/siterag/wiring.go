package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/crawler"
	"github.com/signalworks/siterag/internal/ingest"
	"github.com/signalworks/siterag/internal/processor"
	"github.com/signalworks/siterag/internal/rag"
	"github.com/signalworks/siterag/internal/vectorstore"
	"github.com/signalworks/siterag/provider"
	openai_provider "github.com/signalworks/siterag/provider/openai"
)

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, prefix, log.LstdFlags)
}

func buildProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Type {
	case "openai":
		return openai_provider.NewClient(openai_provider.Options{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			CompletionModel: cfg.CompletionModel,
			EmbeddingModel:  cfg.EmbeddingModel,
			Timeout:         cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %q", cfg.Type)
	}
}

func buildStore(ctx context.Context, cfg *config.Config, p provider.Provider) (vectorstore.Store, error) {
	return vectorstore.New(ctx, cfg.Storage, cfg.Ingest, cfg.Retrieval, p, cfg.Provider.EmbeddingDimensions, newLogger("[VECTORSTORE] "))
}

func buildHistory(ctx context.Context, cfg *config.Config) (rag.History, error) {
	if cfg.Storage.Redis.Enabled() {
		return rag.NewRedisHistory(ctx, cfg.Storage.Redis, cfg.Retrieval.HistoryLimit)
	}
	return rag.NewMemoryHistory(cfg.Retrieval.HistoryLimit), nil
}

func buildPipeline(cfg *config.Config, store vectorstore.Store) (*ingest.Pipeline, error) {
	cr, err := crawler.New(cfg.Site, cfg.Crawler, newLogger("[CRAWLER] "))
	if err != nil {
		return nil, fmt.Errorf("build crawler: %w", err)
	}
	proc := processor.New(cfg.Processor, newLogger("[PROCESSOR] "))
	return ingest.NewPipeline(cr, proc, store, cfg.Ingest, newLogger("[INGEST] ")), nil
}
