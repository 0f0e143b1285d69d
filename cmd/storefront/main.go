// Package main provides the storefront binary entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marketplace/storefront/internal/infrastructure/config"
	"github.com/marketplace/storefront/pkg/logger"
)

const (
	Version = "0.1.0"
	appName = "storefront"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Marketplace storefront session service",
		Long: `Storefront keeps the signed-in session of an execution context in a
durable store shared with the other contexts of the same user, and gates
the protected areas of the marketplace on it.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), sessionCmd(), userCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

// setup loads configuration and initialises the process logger.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Development(),
		Output:  os.Stderr,
		Service: appName,
	})
	return cfg, nil
}
