package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/service"
	"github.com/brbranch/vecstore/internal/store"
)

// fakeReader はメモリ上のメッセージを順に返すReader
// blockAtEndがtrueなら、全件返した後はcontextのキャンセルまでブロックする
type fakeReader struct {
	mu         sync.Mutex
	messages   []kafka.Message
	next       int
	blockAtEnd bool
	committed  []kafka.Message
	commitCh   chan struct{}
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{commitCh: make(chan struct{}, 16)}
	for i, v := range values {
		r.messages = append(r.messages, kafka.Message{Topic: "designs", Offset: int64(i), Value: []byte(v)})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.next < len(r.messages) {
		m := r.messages[r.next]
		r.next++
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	if r.blockAtEnd {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	return kafka.Message{}, io.EOF
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	r.committed = append(r.committed, msgs...)
	r.mu.Unlock()
	r.commitCh <- struct{}{}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.committed))
	for i, m := range r.committed {
		out[i] = m.Offset
	}
	return out
}

// fakeRecords はRegisterBatchだけを差し替えたRecordService
type fakeRecords struct {
	service.RecordService
	mu      sync.Mutex
	calls   [][]string
	failFor int // この回数まではトランザクションエラーを返す
}

func (f *fakeRecords) RegisterBatch(ctx context.Context, req *service.RegisterBatchRequest) (*service.RegisterBatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Descriptions)
	if len(f.calls) <= f.failFor {
		return nil, &store.TransactionError{BatchID: "b", Op: "commit", Err: errors.New("disk full")}
	}

	resp := &service.RegisterBatchResponse{BatchID: "b", Items: make([]service.BatchItem, len(req.Descriptions))}
	for i, d := range req.Descriptions {
		resp.Items[i].Index = i
		if d == "" {
			resp.Items[i].Err = service.ErrDescriptionRequired
			resp.Failed++
			continue
		}
		resp.Items[i].ID = int64(i + 1)
		resp.Succeeded++
	}
	return resp, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConsumer(t *testing.T, r *fakeReader, records service.RecordService, cfg model.KafkaConfig) *Consumer {
	t.Helper()
	c, err := New(records, cfg, WithReader(r), WithLogger(quietLogger()), WithRetry(1, time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

// TestConsumer_BatchesBySize はbatch_sizeごとに登録してコミットすることをテスト
func TestConsumer_BatchesBySize(t *testing.T) {
	r := newFakeReader("a", "b", "c", "d", "e")
	records := &fakeRecords{}
	c := newTestConsumer(t, r, records, model.KafkaConfig{BatchSize: 2, FlushInterval: time.Hour})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(records.calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(records.calls))
	}
	if len(records.calls[2]) != 1 {
		t.Errorf("remaining message should be flushed at end of stream, got %v", records.calls[2])
	}
	if got := r.committedOffsets(); len(got) != 5 || got[4] != 4 {
		t.Errorf("expected all offsets committed, got %v", got)
	}
	if s := c.Stats(); s.Batches != 3 || s.Ingested != 5 || s.Failed != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

// TestConsumer_ItemFailuresAreCommitted は件ごとの失敗でもコミットすることをテスト
func TestConsumer_ItemFailuresAreCommitted(t *testing.T) {
	r := newFakeReader(`{"description":"glass hall"}`, `{"description":""}`, "plain text")
	records := &fakeRecords{}
	c := newTestConsumer(t, r, records, model.KafkaConfig{BatchSize: 10, FlushInterval: time.Hour})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"glass hall", "", "plain text"}
	for i, d := range records.calls[0] {
		if d != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], d)
		}
	}
	if got := r.committedOffsets(); len(got) != 3 {
		t.Errorf("expected 3 committed offsets, got %v", got)
	}
	if s := c.Stats(); s.Ingested != 2 || s.Failed != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

// TestConsumer_TransactionFailureRetries はトランザクション失敗を再試行することをテスト
func TestConsumer_TransactionFailureRetries(t *testing.T) {
	r := newFakeReader("a", "b")
	records := &fakeRecords{failFor: 1}
	c := newTestConsumer(t, r, records, model.KafkaConfig{BatchSize: 2, FlushInterval: time.Hour})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(records.calls) != 2 {
		t.Errorf("expected one retry, got %d calls", len(records.calls))
	}
	if got := r.committedOffsets(); len(got) != 2 {
		t.Errorf("expected offsets committed after retry, got %v", got)
	}
}

// TestConsumer_TransactionFailureStops は再試行しても失敗したらコミットせずに止まることをテスト
func TestConsumer_TransactionFailureStops(t *testing.T) {
	r := newFakeReader("a", "b")
	records := &fakeRecords{failFor: 10}
	c := newTestConsumer(t, r, records, model.KafkaConfig{BatchSize: 2, FlushInterval: time.Hour})

	err := c.Run(context.Background())
	var txErr *store.TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	if got := r.committedOffsets(); len(got) != 0 {
		t.Errorf("offsets must not be committed, got %v", got)
	}
}

// TestConsumer_FlushInterval は件数に達しなくても一定時間で登録することをテスト
func TestConsumer_FlushInterval(t *testing.T) {
	r := newFakeReader("only one")
	r.blockAtEnd = true
	records := &fakeRecords{}
	c := newTestConsumer(t, r, records, model.KafkaConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-r.commitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for interval flush")
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if got := r.committedOffsets(); len(got) != 1 {
		t.Errorf("expected 1 committed offset, got %v", got)
	}
}

// TestNew_RequiresBrokers はReaderなしでbrokers/topicが必須であることをテスト
func TestNew_RequiresBrokers(t *testing.T) {
	if _, err := New(&fakeRecords{}, model.KafkaConfig{Topic: "designs"}); !errors.Is(err, ErrNoBrokers) {
		t.Errorf("expected ErrNoBrokers, got %v", err)
	}
	if _, err := New(&fakeRecords{}, model.KafkaConfig{Brokers: "localhost:9092"}); !errors.Is(err, ErrNoTopic) {
		t.Errorf("expected ErrNoTopic, got %v", err)
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"description":"open atrium"}`, "open atrium"},
		{`  {"description":"padded"}  `, "padded"},
		{`{"title":"no description"}`, ""},
		{`{not json`, "{not json"},
		{"  plain text\n", "plain text"},
	}
	for _, tt := range tests {
		if got := ParseMessage([]byte(tt.in)); got != tt.want {
			t.Errorf("ParseMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
