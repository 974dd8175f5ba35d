package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lakay-digital/recharge-relay/internal/platform/config"
)

var Version = "dev"

func main() {
	var opts config.Options

	rootCmd := &cobra.Command{
		Use:           "recharge-relay",
		Short:         "Turns paid storefront orders into airtime top-ups, at most once per order",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a config.yaml (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "path to a .env file (default: ./.env if present)")

	rootCmd.AddCommand(serveCmd(&opts))
	rootCmd.AddCommand(migrateCmd(&opts))
	rootCmd.AddCommand(adminTokenCmd(&opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
