package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brbranch/vecstore/internal/bootstrap"
	"github.com/brbranch/vecstore/internal/service"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// searchOptions holds parsed search command options
type searchOptions struct {
	TopK     int
	Metric   string
	Probes   int
	Format   string
	UseStdin bool
	Query    string
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search stored descriptions by text similarity",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Query = strings.TrimSpace(strings.Join(args, " "))
			if opts.UseStdin {
				query, err := readQuery(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read query from stdin: %w", err)
				}
				opts.Query = query
			}
			if err := opts.validate(); err != nil {
				return err
			}
			return runSearch(cmd.Context(), root.configPath, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&opts.TopK, "top-k", "k", service.DefaultTopK, "Number of results")
	cmd.Flags().StringVarP(&opts.Metric, "metric", "m", "", "Distance metric: cosine|l2 (default cosine)")
	cmd.Flags().IntVar(&opts.Probes, "probes", 0, "IVF lists to probe (0 uses the store default)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatText, "Output format: text|json")
	cmd.Flags().BoolVar(&opts.UseStdin, "stdin", false, "Read query from stdin")
	return cmd
}

// validate checks options that do not need the store
func (o *searchOptions) validate() error {
	if o.Query == "" {
		return fmt.Errorf("query is required (or use --stdin)")
	}
	if o.TopK < 1 || o.TopK > service.MaxTopK {
		return fmt.Errorf("top-k must be between 1 and %d", service.MaxTopK)
	}
	if o.Probes < 0 {
		return fmt.Errorf("probes must not be negative")
	}
	if o.Format != FormatText && o.Format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be text or json)", o.Format)
	}
	return nil
}

// runSearch はサービスを初期化して検索結果を出力する
func runSearch(ctx context.Context, configPath string, opts *searchOptions, w io.Writer) error {
	services, cleanup, err := bootstrap.Initialize(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	topK := opts.TopK
	resp, err := services.RecordService.Search(ctx, &service.SearchRequest{
		Text:   opts.Query,
		TopK:   &topK,
		Metric: opts.Metric,
		Probes: opts.Probes,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.Format == FormatJSON {
		return formatJSONOutput(w, resp)
	}
	formatTextOutput(w, resp)
	return nil
}

// readQuery reads a single line query
func readQuery(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}

// formatTextOutput outputs results in human-readable text format
func formatTextOutput(w io.Writer, resp *service.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	for i, r := range resp.Results {
		fmt.Fprintf(w, "[%d] %s (%s: %.4f)\n", i+1, color.CyanString("#%d", r.ID), resp.Metric, r.Score)
		fmt.Fprintf(w, "    %s\n", truncateText(r.PayloadExcerpt, 60))
		if r.CreatedAt != "" {
			fmt.Fprintf(w, "    %s\n", color.HiBlackString(r.CreatedAt))
		}
		fmt.Fprintln(w)
	}
}

// formatJSONOutput outputs the search response as indented JSON
func formatJSONOutput(w io.Writer, resp *service.SearchResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(resp); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	return nil
}

// truncateText は先頭maxLenルーンに切り詰め、切った場合は " ..." を付ける
func truncateText(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + " ..."
}
