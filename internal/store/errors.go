package store

import (
	"errors"
	"fmt"
)

// エラー定義
var (
	ErrNotFound         = errors.New("resource not found")
	ErrNotInitialized   = errors.New("store not initialized")
	ErrConnectionFailed = errors.New("failed to connect to store")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrBatchCanceled    = errors.New("batch canceled before item was attempted")
	ErrCorruptVector    = errors.New("stored vector is corrupt")
)

// SchemaError はEnsureSchemaの失敗を表す
type SchemaError struct {
	Collection string
	Err        error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Collection, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IngestError は単一Insertの失敗を表す。トランザクションはロールバック済み
type IngestError struct {
	Err error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("insert failed: %v", e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// BatchItemError はバッチ内の1件の失敗を表す。他の件には影響しない
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

// TransactionError はバッチ全体のロールバックを表す
// この場合は個別に成功していた件も含めて全件が失敗扱いになる
type TransactionError struct {
	BatchID string
	Op      string // "begin" | "checkpoint" | "audit" | "commit"
	Err     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("batch %s rolled back at %s: %v", e.BatchID, e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// QueryError は検索の失敗を表す
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
