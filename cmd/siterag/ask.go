package main

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/signalworks/siterag/config"
	"github.com/signalworks/siterag/internal/rag"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var sessionID string
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a one-off question against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			query := strings.Join(args, " ")

			ctx := context.Background()
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

			resp, err := engine.ProcessQuery(ctx, sessionID, query)
			if err != nil {
				return err
			}
			cmd.Println(resp.Answer)
			if len(resp.Sources) > 0 {
				cmd.Println()
				for i, src := range resp.Sources {
					cmd.Printf("[%d] %s (%s) score=%.2f\n", i+1, src.Title, src.URL, src.SimilarityScore)
				}
			}
			cmd.Printf("\nconfidence: %.2f\n", resp.Confidence)
			return nil
		},
	}
	ask.Flags().StringVar(&sessionID, "session", "cli-"+uuid.NewString(), "session id for conversation history")
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}
