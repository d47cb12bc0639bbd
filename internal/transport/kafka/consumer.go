// Package kafka はKafkaトピックのテキストをまとめて取り込むコンシューマーを提供する
//
// メッセージはbatch_size件かflush_intervalごとにRegisterBatchへ渡し、
// その結果が返ってからオフセットをコミットする（at-least-once）。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/brbranch/vecstore/internal/model"
	"github.com/brbranch/vecstore/internal/service"
)

// デフォルト値
const (
	DefaultBatchSize     = 64
	DefaultFlushInterval = 2 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryBackoff  = 500 * time.Millisecond
)

// エラー定義
var (
	ErrNoBrokers = errors.New("kafka brokers are not configured")
	ErrNoTopic   = errors.New("kafka topic is not configured")
)

// MessageReader はkafka.Readerのうちコンシューマーが使う部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Stats は取り込みの累計
type Stats struct {
	Batches  int64 `json:"batches"`
	Ingested int64 `json:"ingested"`
	Failed   int64 `json:"failed"`
}

// Consumer はトピックから読んだテキストを一括登録する
type Consumer struct {
	reader        MessageReader
	records       service.RecordService
	batchSize     int
	flushInterval time.Duration
	maxRetries    int
	retryBackoff  time.Duration
	logger        *slog.Logger

	batches  atomic.Int64
	ingested atomic.Int64
	failed   atomic.Int64
}

// Option はConsumerのオプション
type Option func(*Consumer)

// WithReader は構築済みのReaderを使う（テスト用）
func WithReader(r MessageReader) Option {
	return func(c *Consumer) { c.reader = r }
}

// WithLogger はロガーを設定
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// WithRetry はバッチ全体が失敗したときの再試行回数と間隔を設定
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Consumer) {
		c.maxRetries = maxRetries
		c.retryBackoff = backoff
	}
}

// New はConsumerを作成する
// WithReaderがなければcfgのBrokers/Topic/GroupIDでkafka.Readerを作る
func New(records service.RecordService, cfg model.KafkaConfig, opts ...Option) (*Consumer, error) {
	c := &Consumer{
		records:       records,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		maxRetries:    DefaultMaxRetries,
		retryBackoff:  DefaultRetryBackoff,
		logger:        slog.Default(),
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.flushInterval <= 0 {
		c.flushInterval = DefaultFlushInterval
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.reader == nil {
		if strings.TrimSpace(cfg.Brokers) == "" {
			return nil, ErrNoBrokers
		}
		if cfg.Topic == "" {
			return nil, ErrNoTopic
		}
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  strings.Split(cfg.Brokers, ","),
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	c.logger = c.logger.With("component", "kafka", "topic", cfg.Topic)
	return c, nil
}

// Stats は現在までの累計を返す
func (c *Consumer) Stats() Stats {
	return Stats{
		Batches:  c.batches.Load(),
		Ingested: c.ingested.Load(),
		Failed:   c.failed.Load(),
	}
}

// Close はReaderをクローズする
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run はcontextのキャンセルかReaderの終了までメッセージを取り込む
// 再試行しても登録できないバッチがあればコミットせずにエラーで戻る
func (c *Consumer) Run(ctx context.Context) error {
	msgs := make(chan kafka.Message)
	fetchErr := make(chan error, 1)

	go func() {
		defer close(msgs)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, io.EOF) {
					fetchErr <- err
				}
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	c.logger.Info("kafka consumer started", "batch_size", c.batchSize, "flush_interval", c.flushInterval)

	var pending []kafka.Message
	timer := time.NewTimer(c.flushInterval)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// 未コミットのメッセージは再配信される
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				select {
				case err := <-fetchErr:
					return fmt.Errorf("failed to fetch message: %w", err)
				default:
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Readerが閉じられたので残りを取り込んで終了
				return c.flush(ctx, pending)
			}
			if len(pending) == 0 {
				timer.Reset(c.flushInterval)
			}
			pending = append(pending, msg)
			if len(pending) >= c.batchSize {
				timer.Stop()
				if err := c.flush(ctx, pending); err != nil {
					return err
				}
				pending = nil
			}

		case <-timer.C:
			if err := c.flush(ctx, pending); err != nil {
				return err
			}
			pending = nil
		}
	}
}

// flush はメッセージをRegisterBatchに渡し、結果が返ったらコミットする
// 件ごとの失敗はログに残してコミットし、同じメッセージで詰まらないようにする
func (c *Consumer) flush(ctx context.Context, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	descriptions := make([]string, len(msgs))
	for i, m := range msgs {
		descriptions[i] = ParseMessage(m.Value)
	}

	resp, err := c.registerWithRetry(ctx, descriptions)
	if err != nil {
		c.logger.Error("batch ingest failed, offsets not committed",
			"messages", len(msgs), "first_offset", msgs[0].Offset, "error", err)
		return err
	}

	for _, it := range resp.Items {
		if it.Err != nil {
			m := msgs[it.Index]
			c.logger.Warn("kafka message rejected",
				"batch_id", resp.BatchID, "partition", m.Partition, "offset", m.Offset, "error", it.Err)
		}
	}

	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to commit offsets: %w", err)
	}

	c.batches.Add(1)
	c.ingested.Add(int64(resp.Succeeded))
	c.failed.Add(int64(resp.Failed))
	c.logger.Info("kafka batch ingested",
		"batch_id", resp.BatchID, "ok", resp.Succeeded, "fail", resp.Failed)
	return nil
}

// registerWithRetry はトランザクション全体の失敗だけを再試行する
func (c *Consumer) registerWithRetry(ctx context.Context, descriptions []string) (*service.RegisterBatchResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying batch", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}
		resp, err := c.records.RegisterBatch(ctx, &service.RegisterBatchRequest{Descriptions: descriptions})
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// messageBody はJSON形式のメッセージ
type messageBody struct {
	Description string `json:"description"`
}

// ParseMessage はメッセージ本文からテキストを取り出す
// {"description": "..."} 形式ならその値、それ以外は本文全体をテキストとして扱う
func ParseMessage(value []byte) string {
	trimmed := strings.TrimSpace(string(value))
	if strings.HasPrefix(trimmed, "{") {
		var body messageBody
		if err := json.Unmarshal([]byte(trimmed), &body); err == nil {
			return body.Description
		}
	}
	return trimmed
}
