package main

import (
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

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Answer a question from the closest stored descriptions",
		Long:  "Searches like 'search', then asks the configured chat model to answer from the hits. Without answer.apiKey or OPENAI_API_KEY only the hits are printed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Query = strings.TrimSpace(strings.Join(args, " "))
			if opts.UseStdin {
				query, err := readQuery(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read question from stdin: %w", err)
				}
				opts.Query = query
			}
			if err := opts.validate(); err != nil {
				return err
			}
			return runAsk(cmd.Context(), root.configPath, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&opts.TopK, "top-k", "k", service.DefaultTopK, "Number of designs given to the chat model")
	cmd.Flags().StringVarP(&opts.Metric, "metric", "m", "", "Distance metric: cosine|l2 (default cosine)")
	cmd.Flags().IntVar(&opts.Probes, "probes", 0, "IVF lists to probe (0 uses the store default)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatText, "Output format: text|json")
	cmd.Flags().BoolVar(&opts.UseStdin, "stdin", false, "Read question from stdin")
	return cmd
}

func runAsk(ctx context.Context, configPath string, opts *searchOptions, w io.Writer) error {
	services, cleanup, err := bootstrap.Initialize(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	topK := opts.TopK
	resp, err := services.RecordService.Answer(ctx, &service.AnswerRequest{
		Text:   opts.Query,
		TopK:   &topK,
		Metric: opts.Metric,
		Probes: opts.Probes,
	})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if opts.Format == FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		return nil
	}
	formatAnswerOutput(w, resp)
	return nil
}

// formatAnswerOutput は回答と根拠にしたヒットを出力する
func formatAnswerOutput(w io.Writer, resp *service.AnswerResponse) {
	if resp.Generated {
		fmt.Fprintln(w, color.GreenString("Answer (%s):", resp.Model))
	} else {
		fmt.Fprintln(w, color.YellowString("Answer:"))
	}
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Results) == 0 {
		return
	}
	fmt.Fprintln(w)
	formatTextOutput(w, &service.SearchResponse{Metric: resp.Metric, Results: resp.Results})
}
