package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/model"
)

// newBatchResult はitemsと同じ順序・件数の空の結果を作る
func newBatchResult(items []model.BatchItem) *model.BatchResult {
	result := &model.BatchResult{
		BatchID: uuid.NewString(),
		Items:   make([]model.BatchItemResult, len(items)),
	}
	for i := range result.Items {
		result.Items[i].Index = i
	}
	return result
}

// failItem は1件を失敗として記録する
func failItem(log *slog.Logger, result *model.BatchResult, index int, err error) {
	result.Items[index].ID = 0
	result.Items[index].Err = &BatchItemError{Index: index, Err: err}
	log.Warn("batch item failed", "index", index, "error", err)
}

// cancelRemaining はindex以降の未処理分をキャンセル扱いにする
func cancelRemaining(log *slog.Logger, result *model.BatchResult, from int, cause error) {
	for i := from; i < len(result.Items); i++ {
		result.Items[i].Err = &BatchItemError{Index: i, Err: fmt.Errorf("%w: %v", ErrBatchCanceled, cause)}
	}
	log.Warn("batch canceled", "attempted", from, "total", len(result.Items))
}

// abortBatch は全件を失敗にしてTransactionErrorを返す
func abortBatch(log *slog.Logger, result *model.BatchResult, op string, err error) (*model.BatchResult, error) {
	txErr := &TransactionError{BatchID: result.BatchID, Op: op, Err: err}
	result.FailAll(txErr)
	log.Error("batch rolled back", "op", op, "error", err, "items", len(result.Items))
	return result, txErr
}

// staged はステージングバッファに積まれた検証済みの1件
type staged struct {
	index   int
	vector  []float64
	literal string
	payload string
}

// stageItems は各件を検証してステージングバッファを作る
// 検証に失敗した件はその場で失敗として記録し、バッファには積まない
// ctxがキャンセルされたら以降の件はErrBatchCanceledになる
func stageItems(ctx context.Context, log *slog.Logger, result *model.BatchResult, items []model.BatchItem, dim int) []staged {
	buf := make([]staged, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			cancelRemaining(log, result, i, err)
			break
		}
		lit, err := codec.EncodeChecked(item.Vector, dim)
		if err != nil {
			failItem(log, result, i, err)
			continue
		}
		buf = append(buf, staged{
			index:   i,
			vector:  append([]float64(nil), item.Vector...),
			literal: lit,
			payload: item.Payload,
		})
	}
	return buf
}
