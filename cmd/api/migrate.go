package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/platform/config"
	"github.com/lakay-digital/recharge-relay/internal/platform/logging"
)

func migrateCmd(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the lock store schema for the configured backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*opts)
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			_, closeStore, err := openStore(ctx, cfg, log, true)
			if err != nil {
				return err
			}
			closeStore()
			log.Info("lock store ready", zap.String("backend", cfg.StorageBackend))
			return nil
		},
	}
}
