// Package main is the entry point for the entigraph command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"entigraph/internal/config"
	"entigraph/internal/metadata"
	"entigraph/pkg/logger"
)

var (
	cfg *config.Config
	log *logger.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := newRootCmd()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile, schemaPath string

	rootCmd := &cobra.Command{
		Use:           "entigraph",
		Short:         "Entity attribute graphs with change propagation",
		Long:          "entigraph loads entity definitions, checks their dependency graphs and serves them over HTTP with optional PostgreSQL storage.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if schemaPath != "" {
				cfg.Schema.Path = schemaPath
			}
			log, err = logger.New(cfg.Log.LoggerConfig())
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./entigraph.yaml)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "entity schema file (overrides schema.path)")

	rootCmd.AddCommand(
		checkCmd(),
		evalCmd(),
		serveCmd(),
	)
	return rootCmd
}

// loadDomain reads and builds the entity schema at path.
func loadDomain(path string) (*metadata.Domain, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schema: %w", err)
	}
	defer f.Close()

	reg, err := metadata.LoadYAML(f, cfg.Format.LoadOptions())
	if err != nil {
		return nil, fmt.Errorf("loading schema %s: %w", path, err)
	}
	domain, err := reg.Build()
	if err != nil {
		return nil, fmt.Errorf("building schema %s: %w", path, err)
	}
	return domain, nil
}
