package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/coderag/internal/service"
)

func indexCmd() *cobra.Command {
	var (
		incremental bool
		clean       bool
		patterns    []string
		exclude     []string
	)

	cmd := &cobra.Command{
		Use:   "index [root]",
		Short: "Build the index for root (default ./)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			req := service.BuildRequest{
				Root:     service.DefaultRoot,
				Patterns: patterns,
				Exclude:  exclude,
				Clean:    clean,
			}
			if len(args) == 1 {
				req.Root = args[0]
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexing %s...\n", req.Root)

			var result *service.BuildResult
			if incremental {
				result, err = a.svc.Incremental(cmd.Context(), req)
			} else {
				result, err = a.svc.Build(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			printBuild(out, result)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&incremental, "incremental", "i", false, "re-index changed files only")
	cmd.Flags().BoolVar(&clean, "clean", false, "re-chunk every file ignoring recorded hashes")
	cmd.Flags().StringSliceVarP(&patterns, "pattern", "p", nil, "include glob, repeatable (default **/*)")
	cmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "exclude glob or path component, repeatable")

	return cmd
}

func printBuild(out io.Writer, r *service.BuildResult) {
	if r.UpToDate {
		color.New(color.FgGreen).Fprintf(out, "Index is up to date (%s documents)\n", humanize.Comma(int64(r.Documents)))
		return
	}

	elapsed := time.Duration(r.Stats.DurationSeconds * float64(time.Second))
	color.New(color.FgGreen).Fprintf(out, "\nDone in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  Files:     %s indexed, %s skipped, %s failed\n",
		humanize.Comma(int64(r.Stats.FilesIndexed)),
		humanize.Comma(int64(r.FilesSkipped)),
		humanize.Comma(int64(r.FilesFailed)))
	fmt.Fprintf(out, "  Chunks:    %s\n", humanize.Comma(int64(r.Stats.Chunks)))
	fmt.Fprintf(out, "  Documents: %s\n", humanize.Comma(int64(r.Documents)))

	for _, e := range r.Errors {
		color.New(color.FgYellow).Fprintf(out, "  - %s\n", e)
	}
}
