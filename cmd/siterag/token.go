package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalworks/siterag/config"
	srv "github.com/signalworks/siterag/internal/server"
)

func tokenCMD() *cobra.Command {
	var cfgPath string
	var subject string
	var ttl time.Duration

	var token = &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Server.AdminJWTSecret == "" {
				return fmt.Errorf("server.admin_jwt_secret is not configured")
			}
			signed, err := srv.SignAdminToken(subject, []byte(cfg.Server.AdminJWTSecret), ttl)
			if err != nil {
				return err
			}
			cmd.Println(signed)
			return nil
		},
	}
	token.Flags().StringVar(&subject, "subject", "admin", "token subject")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	token.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return token
}
