package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/ingest"
)

func crawlCMD() *cobra.Command {
	var cfgPath string
	var skipCrawl bool
	var crawl = &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the site and index it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildProvider(cfg.Provider)
			if err != nil {
				return err
			}
			store, err := buildStore(ctx, cfg, p)
			if err != nil {
				return err
			}
			defer store.Close()

			pipeline, err := buildPipeline(cfg, store)
			if err != nil {
				return err
			}
			defer pipeline.Close()
			var result ingest.Result
			if skipCrawl {
				if cfg.Ingest.PagesFile == "" {
					return fmt.Errorf("--skip-crawl requires ingest.pages_file to be configured")
				}
				result, err = pipeline.RunFromFile(ctx, cfg.Ingest.PagesFile)
			} else {
				result, err = pipeline.Run(ctx)
			}
			if err != nil {
				return err
			}
			cmd.Printf("scraped %d pages, produced %d chunks, stored %d documents in %s\n",
				result.PagesScraped, result.ChunksProduced, result.DocumentsStored, result.Duration)
			return nil
		},
	}
	crawl.Flags().BoolVar(&skipCrawl, "skip-crawl", false, "reuse the saved pages file instead of crawling")
	crawl.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return crawl
}
