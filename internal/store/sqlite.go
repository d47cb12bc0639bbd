package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/brbranch/vecstore/internal/codec"
	"github.com/brbranch/vecstore/internal/distance"
	"github.com/brbranch/vecstore/internal/ivf"
	"github.com/brbranch/vecstore/internal/model"
	_ "modernc.org/sqlite"
)

const (
	metaTable      = "vecstore_meta"
	centroidsTable = "ivf_centroids"
	batchesTable   = "ingest_batches"
)

// テーブル名はプレースホルダにできないので識別子として安全な名前だけ許可する
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqliteHooks は障害注入用のフック（テスト用）
type sqliteHooks struct {
	afterItemWrite func(index int) error
	beforeCommit   func() error
}

// SQLiteStore はSQLiteを使用したStore実装
// バッチ投入は1トランザクション内で1件ごとにSAVEPOINTを張る
type SQLiteStore struct {
	mu          sync.RWMutex
	db          *sql.DB
	dbPath      string
	cfg         Config
	opts        options
	index       *ivf.Index
	initialized bool
	hooks       sqliteHooks
}

// NewSQLiteStore はSQLiteStoreを作成する
// maxConnsはdatabase/sqlの同時接続数の上限（通常はプールサイズと同じ）
func NewSQLiteStore(dbPath string, cfg Config, maxConns int, opts ...Option) (*SQLiteStore, error) {
	if !identPattern.MatchString(cfg.Collection) {
		return nil, fmt.Errorf("%w: collection name %q", ErrInvalidArgument, cfg.Collection)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	ix, err := ivf.New(cfg.Dim, cfg.Metric)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		cfg:    cfg,
		opts:   buildOptions(opts),
		index:  ix,
	}, nil
}

// EnsureSchema はテーブルと補助カラム、IVFインデックスを用意する（冪等）
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.migrate(ctx); err != nil {
		return &SchemaError{Collection: s.cfg.Collection, Err: err}
	}

	ix, err := s.loadIndex(ctx)
	if err != nil {
		return &SchemaError{Collection: s.cfg.Collection, Err: err}
	}
	s.index = ix
	s.initialized = true

	if !ix.Built() && s.cfg.ListCount > 0 {
		n, err := s.count(ctx)
		if err != nil {
			return &SchemaError{Collection: s.cfg.Collection, Err: err}
		}
		if n > 0 {
			if err := s.rebuild(ctx); err != nil {
				return &SchemaError{Collection: s.cfg.Collection, Err: err}
			}
			return nil
		}
	}

	if err := s.analyze(ctx); err != nil {
		return &SchemaError{Collection: s.cfg.Collection, Err: err}
	}
	return nil
}

// migrate はメタデータの次元を確認し、足りないテーブル・カラムを追加する
func (s *SQLiteStore) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+metaTable+` (
			collection TEXT PRIMARY KEY,
			dim INTEGER NOT NULL,
			metric TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	var storedDim int
	err = tx.QueryRowContext(ctx, `SELECT dim FROM `+metaTable+` WHERE collection = ?`, s.cfg.Collection).Scan(&storedDim)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.checkLegacyDim(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+metaTable+` (collection, dim, metric, created_at) VALUES (?, ?, ?, ?)`,
			s.cfg.Collection, s.cfg.Dim, string(s.cfg.Metric), formatTime(s.opts.now())); err != nil {
			return fmt.Errorf("failed to insert meta: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read meta: %w", err)
	case storedDim != s.cfg.Dim:
		return fmt.Errorf("%w: collection %s has dim %d, configured %d", codec.ErrDimensionMismatch, s.cfg.Collection, storedDim, s.cfg.Dim)
	}

	coll := s.cfg.Collection
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+coll+` (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payload TEXT NOT NULL DEFAULT '',
			embedding TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	columns, err := tableColumns(ctx, tx, coll)
	if err != nil {
		return err
	}
	for _, col := range []struct{ name, ddl string }{
		{"created_at", "created_at TEXT"},
		{"list_no", "list_no INTEGER"},
	} {
		if columns[col.name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE `+coll+` ADD COLUMN `+col.ddl); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col.name, err)
		}
		s.opts.logger.Info("added column", "collection", coll, "column", col.name)
	}

	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + coll + `_list_no ON ` + coll + `(list_no)`,
		`CREATE TABLE IF NOT EXISTS ` + centroidsTable + ` (
			collection TEXT NOT NULL,
			list_no INTEGER NOT NULL,
			metric TEXT NOT NULL,
			centroid TEXT NOT NULL,
			PRIMARY KEY (collection, list_no)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + batchesTable + ` (
			batch_id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			committed_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}

// checkLegacyDim はメタデータ導入前から存在するテーブルの次元を先頭行で確認する
func (s *SQLiteStore) checkLegacyDim(ctx context.Context, tx *sql.Tx) error {
	var name string
	err := tx.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, s.cfg.Collection).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect existing table: %w", err)
	}

	var lit string
	err = tx.QueryRowContext(ctx, `SELECT embedding FROM `+s.cfg.Collection+` ORDER BY id LIMIT 1`).Scan(&lit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to sample existing table: %w", err)
	}
	if _, err := codec.DecodeDim(lit, s.cfg.Dim); err != nil {
		return fmt.Errorf("existing collection %s: %w", s.cfg.Collection, err)
	}
	return nil
}

// tableColumns はテーブルのカラム名集合を返す
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// loadIndex は保存済みcentroidとlist_noからIVFインデックスを復元する
func (s *SQLiteStore) loadIndex(ctx context.Context) (*ivf.Index, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT list_no, metric, centroid FROM `+centroidsTable+` WHERE collection = ? ORDER BY list_no`, s.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load centroids: %w", err)
	}
	defer rows.Close()

	metric := s.cfg.Metric
	var centroids [][]float64
	for rows.Next() {
		var (
			listNo int
			m      string
			lit    string
		)
		if err := rows.Scan(&listNo, &m, &lit); err != nil {
			return nil, fmt.Errorf("failed to scan centroid: %w", err)
		}
		if listNo != len(centroids) {
			return nil, fmt.Errorf("centroid lists are not contiguous at %d", listNo)
		}
		c, err := codec.DecodeDim(lit, s.cfg.Dim)
		if err != nil {
			return nil, fmt.Errorf("centroid %d: %w", listNo, err)
		}
		metric = model.Metric(m)
		centroids = append(centroids, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate centroids: %w", err)
	}

	ix, err := ivf.Restore(s.cfg.Dim, metric, centroids)
	if err != nil {
		return nil, err
	}
	if len(centroids) == 0 {
		return ix, nil
	}

	members, err := s.db.QueryContext(ctx, `SELECT id, list_no FROM `+s.cfg.Collection+` WHERE list_no IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load list membership: %w", err)
	}
	defer members.Close()
	for members.Next() {
		var id int64
		var listNo int
		if err := members.Scan(&id, &listNo); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		if err := ix.Add(id, listNo); err != nil {
			return nil, fmt.Errorf("record %d: %w", id, err)
		}
	}
	return ix, members.Err()
}

// analyze は統計情報を更新する
func (s *SQLiteStore) analyze(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return fmt.Errorf("failed to analyze: %w", err)
	}
	return nil
}

// Close はストアをクローズする
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping は接続を確認する
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// Insert は1件を1トランザクションで追加する
func (s *SQLiteStore) Insert(ctx context.Context, vector []float64, payload string) (*model.Record, error) {
	lit, err := codec.EncodeChecked(vector, s.cfg.Dim)
	if err != nil {
		return nil, &IngestError{Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	list := s.index.Assign(vector)
	createdAt := s.opts.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &IngestError{Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	id, err := s.insertRow(ctx, tx, payload, lit, createdAt, list)
	if err != nil {
		tx.Rollback()
		return nil, &IngestError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &IngestError{Err: fmt.Errorf("failed to commit: %w", err)}
	}

	rec := &model.Record{
		ID:        id,
		Vector:    append([]float64(nil), vector...),
		Payload:   payload,
		CreatedAt: createdAt,
	}
	if list != ivf.NoList {
		if err := s.index.Add(id, list); err != nil {
			s.opts.logger.Warn("failed to absorb record into index", "id", id, "error", err)
		} else {
			rec.ListNo = &list
		}
	}
	return rec, nil
}

func (s *SQLiteStore) insertRow(ctx context.Context, tx *sql.Tx, payload, lit string, createdAt time.Time, list int) (int64, error) {
	var listNo sql.NullInt64
	if list != ivf.NoList {
		listNo = sql.NullInt64{Int64: int64(list), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+s.cfg.Collection+` (payload, embedding, created_at, list_no) VALUES (?, ?, ?, ?)`,
		payload, lit, formatTime(createdAt), listNo)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get record id: %w", err)
	}
	return id, nil
}

// InsertBatch は複数件を1トランザクションで追加する
//
// 各件はSAVEPOINTで区切られ、失敗した件だけがROLLBACK TOで取り消される。
// トランザクション自体の開始やコミットに失敗した場合はバッチ全体がロールバックされ、
// 全件がTransactionErrorで失敗扱いになる（このとき戻り値のerrorも非nil）。
// ctxのキャンセルは件と件の間でのみ確認し、それまでに処理した件はコミットする。
func (s *SQLiteStore) InsertBatch(ctx context.Context, items []model.BatchItem) (*model.BatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	result := newBatchResult(items)
	log := s.opts.logger.With("batch_id", result.BatchID, "collection", s.cfg.Collection)
	if len(items) == 0 {
		return result, nil
	}

	txCtx := context.WithoutCancel(ctx)
	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return abortBatch(log, result, "begin", err)
	}

	createdAt := s.opts.now()
	lists := make([]int, len(items))
	for i := range lists {
		lists[i] = ivf.NoList
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			cancelRemaining(log, result, i, err)
			break
		}

		lit, err := codec.EncodeChecked(item.Vector, s.cfg.Dim)
		if err != nil {
			failItem(log, result, i, err)
			continue
		}
		list := s.index.Assign(item.Vector)

		sp := fmt.Sprintf("sp_%d", i)
		if _, err := tx.ExecContext(txCtx, `SAVEPOINT `+sp); err != nil {
			tx.Rollback()
			return abortBatch(log, result, "checkpoint", err)
		}

		id, err := s.insertRow(txCtx, tx, item.Payload, lit, createdAt, list)
		if err == nil && s.hooks.afterItemWrite != nil {
			err = s.hooks.afterItemWrite(i)
		}
		if err != nil {
			if _, rbErr := tx.ExecContext(txCtx, `ROLLBACK TO SAVEPOINT `+sp); rbErr != nil {
				tx.Rollback()
				return abortBatch(log, result, "checkpoint", rbErr)
			}
			if _, relErr := tx.ExecContext(txCtx, `RELEASE SAVEPOINT `+sp); relErr != nil {
				tx.Rollback()
				return abortBatch(log, result, "checkpoint", relErr)
			}
			failItem(log, result, i, err)
			continue
		}
		if _, err := tx.ExecContext(txCtx, `RELEASE SAVEPOINT `+sp); err != nil {
			tx.Rollback()
			return abortBatch(log, result, "checkpoint", err)
		}

		result.Items[i].ID = id
		result.Items[i].CreatedAt = createdAt
		lists[i] = list
	}
	result.Tally()

	if _, err := tx.ExecContext(txCtx,
		`INSERT INTO `+batchesTable+` (batch_id, collection, total, succeeded, failed, committed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		result.BatchID, s.cfg.Collection, len(items), result.Succeeded, result.Failed, formatTime(createdAt)); err != nil {
		tx.Rollback()
		return abortBatch(log, result, "audit", err)
	}

	if s.hooks.beforeCommit != nil {
		if err := s.hooks.beforeCommit(); err != nil {
			tx.Rollback()
			return abortBatch(log, result, "commit", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return abortBatch(log, result, "commit", err)
	}

	for i, it := range result.Items {
		if it.OK() && lists[i] != ivf.NoList {
			if err := s.index.Add(it.ID, lists[i]); err != nil {
				log.Warn("failed to absorb record into index", "id", it.ID, "error", err)
			}
		}
	}

	log.Info("batch committed", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// Search はクエリに近い上位k件を返す
// IVFが構築済みならPlanで選んだリストと未割り当てのレコードだけを走査する
func (s *SQLiteStore) Search(ctx context.Context, query []float64, k int, metric model.Metric, opts SearchOptions) ([]model.SearchHit, error) {
	if err := ValidateQuery(query, k, metric, s.cfg.Dim); err != nil {
		return nil, err
	}
	dist, err := distance.For(metric)
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	probes := opts.Probes
	if probes <= 0 {
		probes = s.cfg.ProbeCount
	}
	lists, full := s.index.Plan(query, metric, probes, k)

	q := `SELECT id, payload, embedding, created_at FROM ` + s.cfg.Collection
	var args []any
	if !full {
		marks := make([]string, len(lists))
		for i, l := range lists {
			marks[i] = "?"
			args = append(args, l)
		}
		q += ` WHERE list_no IN (` + strings.Join(marks, ",") + `) OR list_no IS NULL`
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &QueryError{Err: fmt.Errorf("failed to query candidates: %w", err)}
	}
	defer rows.Close()

	top := newTopK(k)
	for rows.Next() {
		var (
			id        int64
			payload   string
			lit       string
			createdAt sql.NullString
		)
		if err := rows.Scan(&id, &payload, &lit, &createdAt); err != nil {
			return nil, &QueryError{Err: fmt.Errorf("failed to scan candidate: %w", err)}
		}
		vec, err := codec.DecodeDim(lit, s.cfg.Dim)
		if err != nil {
			s.opts.logger.Warn("skipping corrupt vector", "id", id, "error", err)
			continue
		}
		hit := model.SearchHit{ID: id, Distance: dist(query, vec), Payload: payload}
		if createdAt.Valid {
			hit.CreatedAt = decodeCreatedAt(s.opts.logger, id, createdAt.String)
		}
		top.offer(hit)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: fmt.Errorf("failed to iterate candidates: %w", err)}
	}
	return top.sorted(), nil
}

// Get はIDでレコードを取得する
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}

	var (
		payload   string
		lit       string
		createdAt sql.NullString
		listNo    sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, embedding, created_at, list_no FROM `+s.cfg.Collection+` WHERE id = ?`, id,
	).Scan(&payload, &lit, &createdAt, &listNo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	vec, err := codec.DecodeDim(lit, s.cfg.Dim)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptVector, id, err)
	}

	rec := &model.Record{ID: id, Vector: vec, Payload: payload}
	if createdAt.Valid {
		rec.CreatedAt = decodeCreatedAt(s.opts.logger, id, createdAt.String)
	}
	if listNo.Valid {
		l := int(listNo.Int64)
		rec.ListNo = &l
	}
	return rec, nil
}

// Count はレコード件数を返す
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return 0, ErrNotInitialized
	}
	return s.count(ctx)
}

func (s *SQLiteStore) count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.cfg.Collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// RebuildIndex は全レコードからcentroidを学習し直し、list_noを振り直す
func (s *SQLiteStore) RebuildIndex(ctx context.Context) (ivf.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ivf.Stats{}, ErrNotInitialized
	}
	if err := s.rebuild(ctx); err != nil {
		return ivf.Stats{}, err
	}
	return s.index.Stats(), nil
}

// rebuild はs.muの排他ロックを持った状態で呼ぶ
func (s *SQLiteStore) rebuild(ctx context.Context) error {
	if s.cfg.ListCount == 0 {
		return s.analyze(ctx)
	}

	points, err := s.loadPoints(ctx)
	if err != nil {
		return err
	}
	ix, err := ivf.Train(ctx, s.cfg.Dim, s.cfg.Metric, points, s.cfg.ListCount)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+centroidsTable+` WHERE collection = ?`, s.cfg.Collection); err != nil {
		return fmt.Errorf("failed to clear centroids: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE `+s.cfg.Collection+` SET list_no = NULL`); err != nil {
		return fmt.Errorf("failed to clear list assignments: %w", err)
	}
	for i, c := range ix.Centroids() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+centroidsTable+` (collection, list_no, metric, centroid) VALUES (?, ?, ?, ?)`,
			s.cfg.Collection, i, string(ix.Metric()), codec.Encode(c)); err != nil {
			return fmt.Errorf("failed to store centroid %d: %w", i, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE `+s.cfg.Collection+` SET list_no = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare assignment: %w", err)
	}
	defer stmt.Close()
	if err := ix.EachMember(func(list int, id int64) error {
		_, err := stmt.ExecContext(ctx, list, id)
		return err
	}); err != nil {
		return fmt.Errorf("failed to store list assignments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}

	s.index = ix
	stats := ix.Stats()
	s.opts.logger.Info("index rebuilt", "collection", s.cfg.Collection, "lists", stats.Lists, "records", stats.Indexed)
	return s.analyze(ctx)
}

// loadPoints は学習用に全レコードのベクトルを読み込む
func (s *SQLiteStore) loadPoints(ctx context.Context) ([]ivf.Point, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM `+s.cfg.Collection+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	defer rows.Close()

	var points []ivf.Point
	for rows.Next() {
		var id int64
		var lit string
		if err := rows.Scan(&id, &lit); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := codec.DecodeDim(lit, s.cfg.Dim)
		if err != nil {
			s.opts.logger.Warn("skipping corrupt vector", "id", id, "error", err)
			continue
		}
		points = append(points, ivf.Point{ID: id, Vector: vec})
	}
	return points, rows.Err()
}

// IndexStats はIVFインデックスの統計情報を返す
func (s *SQLiteStore) IndexStats() ivf.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Stats()
}
