package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dshills/coderag/internal/searcher"
	"github.com/dshills/coderag/internal/service"
	"github.com/dshills/coderag/pkg/types"
)

const snippetWidth = 72

func queryCmd() *cobra.Command {
	var (
		topK int
		mode string
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve the chunks that best match text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.svc.Query(cmd.Context(), strings.Join(args, " "), topK, mode)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Matches) == 0 {
				color.New(color.FgYellow).Fprintln(out, "No matches")
				return nil
			}
			fmt.Fprintln(out, renderMatches(resp.Matches))
			fmt.Fprintf(out, "%d matches (%s, vector %d, keyword %d) in %s\n",
				len(resp.Matches), resp.Mode, resp.VectorResults, resp.KeywordResults,
				resp.Duration.Round(time.Microsecond))
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of matches (default RAG_TOP_K)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(searcher.SearchModeHybrid), "hybrid, vector or keyword")

	return cmd
}

func answerCmd() *cobra.Command {
	var (
		topK      int
		maxTokens int
	)

	cmd := &cobra.Command{
		Use:   "answer <question>",
		Short: "Answer a question from retrieved context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.svc.Answer(cmd.Context(), strings.Join(args, " "), topK, maxTokens)
			if errors.Is(err, service.ErrNoContext) {
				return fmt.Errorf("%w; run `coderag index` first", err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Final)
			if len(result.Citations) > 0 {
				color.New(color.FgCyan).Fprintln(out, "\nSources:")
				for _, c := range result.Citations {
					color.New(color.FgCyan).Fprintf(out, "  - %s:%d-%d\n", c.Path, c.StartLine, c.EndLine)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of context matches (default RAG_TOP_K)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", service.DefaultMaxTokens, "answer length limit")

	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index status and the last build",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(a.svc.Status(cmd.Context())))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, _, err := loadSettings()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), settings.Redacted())
		},
	}
}

func renderMatches(matches []types.Match) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "Score", "Location", "Language", "Snippet"})
	for i, m := range matches {
		tbl.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.4f", m.Score),
			fmt.Sprintf("%s:%d-%d", m.Path, m.StartLine, m.EndLine),
			m.Metadata[types.MetaLanguage],
			firstLine(m.Snippet, snippetWidth),
		})
	}
	return tbl.Render()
}

func renderStatus(st service.Status) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendRows([]table.Row{
		{"Index dir", st.IndexDir},
		{"Vector documents", humanize.Comma(int64(st.VectorDocuments))},
		{"Keyword documents", humanize.Comma(int64(st.KeywordDocuments))},
		{"Dimension", st.Dimension},
		{"Embedding", st.EmbeddingProvider + " / " + st.EmbeddingModel},
		{"LLM", st.LLMProvider},
		{"Indexing", st.Indexing},
	})

	if st.Stats == nil {
		tbl.AppendFooter(table.Row{"Last build", "none"})
		return tbl.Render()
	}

	tbl.AppendSeparator()
	tbl.AppendRows([]table.Row{
		{"Files", humanize.Comma(int64(st.Stats.FilesIndexed))},
		{"Chunks", humanize.Comma(int64(st.Stats.Chunks))},
		{"Duration", fmt.Sprintf("%.2fs", st.Stats.DurationSeconds)},
		{"Updated", updatedAgo(st.Stats.UpdatedAt)},
	})
	return tbl.Render()
}

func updatedAgo(stamp string) string {
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return stamp
	}
	return humanize.Time(t)
}

// firstLine returns the first non-blank line of s, cut to width runes
func firstLine(s string, width int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > width {
			return string(r[:width-1]) + "…"
		}
		return line
	}
	return ""
}

// printJSON writes v indented; map keys come out sorted
func printJSON(out io.Writer, v map[string]any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
