package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brbranch/vecstore/internal/bootstrap"
	"github.com/brbranch/vecstore/internal/service"
)

// DefaultLoadChunk は1回のRegisterBatchに渡す行数
const DefaultLoadChunk = 100

// ErrColumnNotFound はCSVに指定列がないことを示す
var ErrColumnNotFound = errors.New("column not found")

// loadOptions はloadコマンドのフラグ
type loadOptions struct {
	Column string
	Chunk  int
}

// csvRow はCSVの1行（Lineはヘッダーを1行目とした行番号）
type csvRow struct {
	Line int
	Text string
}

// loadSummary はload全体の集計
type loadSummary struct {
	OK       int
	Fail     int
	Failures []rowFailure
}

type rowFailure struct {
	Line int
	Err  string
}

func newLoadCmd(root *rootOptions) *cobra.Command {
	opts := &loadOptions{}
	cmd := &cobra.Command{
		Use:   "load <file.csv>",
		Short: "Bulk-register descriptions from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Chunk < 1 {
				return fmt.Errorf("chunk must be greater than 0")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open csv: %w", err)
			}
			defer f.Close()

			rows, err := readCSV(f, opts.Column)
			if err != nil {
				return err
			}
			return runLoad(cmd.Context(), root.configPath, rows, opts.Chunk, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Column, "column", "description", "CSV column holding the text")
	cmd.Flags().IntVar(&opts.Chunk, "chunk", DefaultLoadChunk, "Rows per batch transaction")
	return cmd
}

// readCSV はヘッダー付きCSVから指定列を読み出す（列名は大文字小文字を区別しない）
func readCSV(r io.Reader, column string) ([]csvRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv is empty")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, column)
	}

	var rows []csvRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		text := ""
		if col < len(record) {
			text = record[col]
		}
		rows = append(rows, csvRow{Line: line, Text: text})
	}
	return rows, nil
}

// runLoad はサービスを初期化し、チャンク単位で登録して結果を出力する
func runLoad(ctx context.Context, configPath string, rows []csvRow, chunk int, w io.Writer) error {
	services, cleanup, err := bootstrap.Initialize(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer cleanup()

	summary, err := loadRows(ctx, services.RecordService, rows, chunk)
	printLoadSummary(w, summary)
	if err != nil {
		return fmt.Errorf("load aborted: %w", err)
	}
	return nil
}

// loadRows はrowsをchunk件ずつRegisterBatchに渡す
// トランザクション自体が失敗した場合はそこで中断し、それまでの集計を返す
func loadRows(ctx context.Context, records service.RecordService, rows []csvRow, chunk int) (*loadSummary, error) {
	summary := &loadSummary{}
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		part := rows[start:end]

		texts := make([]string, len(part))
		for i, r := range part {
			texts[i] = r.Text
		}
		resp, err := records.RegisterBatch(ctx, &service.RegisterBatchRequest{Descriptions: texts})
		if resp != nil {
			summary.OK += resp.Succeeded
			summary.Fail += resp.Failed
			for _, it := range resp.Items {
				if it.Err != nil {
					summary.Failures = append(summary.Failures, rowFailure{Line: part[it.Index].Line, Err: it.Err.Error()})
				}
			}
		}
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// printLoadSummary は件数と失敗した行を出力する
func printLoadSummary(w io.Writer, s *loadSummary) {
	if s == nil {
		return
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "%s line %d: %s\n", color.RedString("fail"), f.Line, f.Err)
	}
	fmt.Fprintf(w, "%s %d  %s %d\n", color.GreenString("ok"), s.OK, color.RedString("fail"), s.Fail)
}
