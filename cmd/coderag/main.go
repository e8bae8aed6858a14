// Package main provides the entry point for the coderag CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/logging"
	"github.com/dshills/coderag/internal/service"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coderag",
		Short: "Hybrid retrieval over code and docs",
		Long: `coderag indexes a directory of code and documentation and answers
queries with vector, BM25 or fused hybrid retrieval.

Commands:
  index     Build or refresh the index
  query     Retrieve matching chunks
  answer    Answer a question with citations
  serve     Run the REST API
  mcp       Run the MCP server on stdio
  watch     Re-index on file changes`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ./coderag.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCmd(),
		indexCmd(),
		queryCmd(),
		answerCmd(),
		statsCmd(),
		configCmd(),
		mcpCmd(),
		watchCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles what every command needs
type app struct {
	settings *config.Settings
	logger   zerolog.Logger
	svc      *service.Service
}

// loadSettings reads configuration and builds the stderr logger; stdout is
// reserved for command output and MCP frames
func loadSettings() (*config.Settings, zerolog.Logger, error) {
	settings, err := config.Load(flagConfig)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if flagLogLevel != "" {
		settings.LogLevel = flagLogLevel
	}
	logger := logging.New(settings.LogLevel, settings.LogFormat, os.Stderr)
	return settings, logger, nil
}

func newApp() (*app, error) {
	settings, logger, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if err := settings.EnsureDirs(); err != nil {
		return nil, err
	}

	svc, err := service.New(settings, logger)
	if err != nil {
		return nil, err
	}
	return &app{settings: settings, logger: logger, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.svc.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close service")
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coderag %s (built: %s)\n", version, buildTime)
		},
	}
}
