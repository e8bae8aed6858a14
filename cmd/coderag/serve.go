package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/coderag/internal/api"
	"github.com/dshills/coderag/internal/mcp"
	"github.com/dshills/coderag/internal/reader"
	"github.com/dshills/coderag/internal/service"
	"github.com/dshills/coderag/internal/watcher"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.settings.HTTPAddr
			}
			// Load a persisted index before the first request arrives.
			a.svc.Retriever(cmd.Context())

			return api.NewServer(a.svc, version, a.logger).Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default RAG_HTTP_ADDR)")

	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info().Str("version", version).Msg("coderag MCP server starting")
			return mcp.NewServer(a.svc, version, a.logger).Serve(cmd.Context())
		},
	}
}

func watchCmd() *cobra.Command {
	var (
		patterns []string
		exclude  []string
	)

	cmd := &cobra.Command{
		Use:   "watch <root>",
		Short: "Index root, then re-index incrementally on file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			req := service.BuildRequest{Root: args[0], Patterns: patterns, Exclude: exclude}
			if _, err := a.svc.Incremental(cmd.Context(), req); err != nil {
				return err
			}

			r := reader.New(a.settings.AllowedExtensions(), a.settings.ExcludeGlobs(), a.logger)
			w, err := watcher.New(a.svc, r, req, a.settings.WatchDebounce, a.logger)
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().StringSliceVarP(&patterns, "pattern", "p", nil, "include glob, repeatable (default **/*)")
	cmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "exclude glob or path component, repeatable")

	return cmd
}
