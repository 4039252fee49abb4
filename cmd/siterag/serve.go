package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/ingest"
	"github.com/signalworks/siterag/internal/rag"
	srv "github.com/signalworks/siterag/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
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

			history, err := buildHistory(ctx, cfg)
			if err != nil {
				return err
			}
			engine := rag.New(store, p, history, cfg.Site, cfg.Provider, cfg.Retrieval, newLogger("[RAG] "))

			pipeline, err := buildPipeline(cfg, store)
			if err != nil {
				return err
			}
			defer pipeline.Close()
			if cfg.Ingest.Schedule != "" {
				sched, err := ingest.NewScheduler(pipeline, cfg.Ingest.Schedule, newLogger("[INGEST] "))
				if err != nil {
					return err
				}
				go sched.Run(ctx)
			}

			server := srv.New(engine, store, pipeline, cfg.Server, newLogger("[HTTP] "))
			return server.Run(ctx)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
