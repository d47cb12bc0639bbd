package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brbranch/vecstore/internal/bootstrap"
	"github.com/brbranch/vecstore/internal/ivf"
	"github.com/brbranch/vecstore/internal/service"
	"github.com/brbranch/vecstore/internal/vectorstore"
)

// ErrUnhealthy はヘルスチェックがok以外だったことを示す
var ErrUnhealthy = errors.New("store is not healthy")

func newRebuildCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Retrain the IVF index from the stored vectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, cleanup, err := bootstrap.Initialize(cmd.Context(), root.configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer cleanup()

			stats, err := services.RecordService.RebuildIndex(cmd.Context())
			if err != nil {
				return err
			}
			printIndexStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report store and embedder status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, cleanup, err := bootstrap.Initialize(cmd.Context(), root.configPath)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer cleanup()

			h, err := services.RecordService.Health(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(h); err != nil {
					return err
				}
			} else {
				printHealth(cmd.OutOrStdout(), h)
			}
			if h.Status != vectorstore.StatusOK {
				return ErrUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printIndexStats(w io.Writer, s *ivf.Stats) {
	if !s.Built {
		fmt.Fprintln(w, color.YellowString("index not built")+" (no lists configured or no records)")
		return
	}
	fmt.Fprintf(w, "%s %d lists, %d records indexed (metric %s)\n", color.GreenString("index rebuilt:"), s.Lists, s.Indexed, s.Metric)
	fmt.Fprintf(w, "  list size %d..%d, default probes %d\n", s.MinListSize, s.MaxListSize, s.DefaultProbe)
}

func printHealth(w io.Writer, h *service.HealthResponse) {
	status := color.GreenString(h.Status)
	if h.Status != vectorstore.StatusOK {
		status = color.RedString(h.Status)
	}
	fmt.Fprintf(w, "status:     %s\n", status)
	fmt.Fprintf(w, "model:      %s (dim %d)\n", h.ModelName, h.Dim)
	fmt.Fprintf(w, "backend:    %s / %s\n", h.Store.Backend, h.Store.Collection)
	fmt.Fprintf(w, "records:    %d\n", h.Store.Records)
	fmt.Fprintf(w, "pool:       %d/%d in use\n", h.Store.PoolInUse, h.Store.PoolSize)
	if h.Store.Error != "" {
		fmt.Fprintf(w, "error:      %s\n", color.RedString(h.Store.Error))
	}
	fmt.Fprintln(w)
	printIndexStats(w, &h.Store.Index)
}
