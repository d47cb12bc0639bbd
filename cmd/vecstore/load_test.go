package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brbranch/vecstore/internal/service"
	"github.com/brbranch/vecstore/internal/store"
)

func TestReadCSV(t *testing.T) {
	data := "\ufeffID,Description,Owner\n" +
		"1,\"multi-line\nentry\",alice\n" +
		"2,plain,bob\n" +
		"3\n"
	rows, err := readCSV(strings.NewReader(data), "description")
	if err != nil {
		t.Fatalf("readCSV failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Text != "multi-line\nentry" || rows[0].Line != 2 {
		t.Errorf("unexpected row 0 %+v", rows[0])
	}
	if rows[1].Text != "plain" || rows[1].Line != 4 {
		t.Errorf("unexpected row 1 %+v", rows[1])
	}
	if rows[2].Text != "" {
		t.Errorf("short row should yield empty text, got %q", rows[2].Text)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	if _, err := readCSV(strings.NewReader("name,text\nx,y\n"), "description"); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
	if _, err := readCSV(strings.NewReader(""), "description"); err == nil {
		t.Error("expected error for empty csv")
	}
	if _, err := readCSV(strings.NewReader("description\n\"unterminated\n"), "description"); err == nil {
		t.Error("expected parse error")
	}
}

// fakeRecords はRegisterBatchだけを実装するRecordService
type fakeRecords struct {
	service.RecordService
	calls    [][]string
	failCall int // この回のRegisterBatchでトランザクションエラーを返す（1始まり、0なら無効）
}

func (f *fakeRecords) RegisterBatch(ctx context.Context, req *service.RegisterBatchRequest) (*service.RegisterBatchResponse, error) {
	f.calls = append(f.calls, req.Descriptions)
	resp := &service.RegisterBatchResponse{Items: make([]service.BatchItem, len(req.Descriptions))}
	if len(f.calls) == f.failCall {
		txErr := &store.TransactionError{BatchID: "b", Op: "commit", Err: errors.New("disk full")}
		for i := range resp.Items {
			resp.Items[i] = service.BatchItem{Index: i, Err: txErr}
			resp.Failed++
		}
		return resp, txErr
	}
	for i, d := range req.Descriptions {
		resp.Items[i].Index = i
		if strings.TrimSpace(d) == "" {
			resp.Items[i].Err = service.ErrDescriptionRequired
			resp.Failed++
			continue
		}
		resp.Items[i].ID = int64(len(f.calls)*100 + i)
		resp.Succeeded++
	}
	return resp, nil
}

func testRows(texts ...string) []csvRow {
	rows := make([]csvRow, len(texts))
	for i, s := range texts {
		rows[i] = csvRow{Line: i + 2, Text: s}
	}
	return rows
}

func TestLoadRows_Chunks(t *testing.T) {
	records := &fakeRecords{}
	summary, err := loadRows(context.Background(), records, testRows("a", "", "c", "d", "e"), 2)
	if err != nil {
		t.Fatalf("loadRows failed: %v", err)
	}
	if len(records.calls) != 3 || len(records.calls[2]) != 1 {
		t.Errorf("expected chunks of 2,2,1, got %v", records.calls)
	}
	if summary.OK != 4 || summary.Fail != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Line != 3 {
		t.Errorf("failure should point at line 3, got %+v", summary.Failures)
	}
}

func TestLoadRows_StopsOnTransactionError(t *testing.T) {
	records := &fakeRecords{failCall: 2}
	summary, err := loadRows(context.Background(), records, testRows("a", "b", "c", "d", "e"), 2)
	var txErr *store.TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	if len(records.calls) != 2 {
		t.Errorf("later chunks should not run, got %d calls", len(records.calls))
	}
	if summary.OK != 2 || summary.Fail != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestPrintLoadSummary(t *testing.T) {
	var buf bytes.Buffer
	printLoadSummary(&buf, &loadSummary{OK: 3, Fail: 1, Failures: []rowFailure{{Line: 5, Err: "description is required"}}})
	want := "fail line 5: description is required\nok 3  fail 1\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}
