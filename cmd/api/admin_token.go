package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakay-digital/recharge-relay/internal/platform/auth/adminauth"
	"github.com/lakay-digital/recharge-relay/internal/platform/config"
)

func adminTokenCmd(opts *config.Options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Print a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*opts)
			if err != nil {
				return err
			}
			if cfg.AdminJWTSecret == "" {
				return errors.New("ADMIN_JWT_SECRET is not set; the admin API is disabled")
			}
			tok, err := adminauth.Issue(cfg.AdminJWTSecret, cfg.AdminJWTIssuer, subject, time.Now(), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "operator", "token subject, recorded in admin action logs")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	return cmd
}
