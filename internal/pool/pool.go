// Package pool はバックエンドへの同時アクセス数を制限するリースプールを提供する
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// エラー定義
var (
	ErrLeaseTimeout = errors.New("timed out waiting for a pool lease")
	ErrPoolClosed   = errors.New("pool is closed")
	ErrInvalidSize  = errors.New("pool size must be positive")
)

// Pool は固定数のリースを貸し出す
type Pool struct {
	sem     *semaphore.Weighted
	size    int64
	timeout time.Duration
	inUse   atomic.Int64
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Lease は取得済みのリース。Releaseで返却する
type Lease struct {
	pool     *Pool
	released atomic.Bool
}

// New は同時リース数sizeのPoolを作成する
// timeoutが0ならリース取得はctxのみで打ち切られる
func New(size int, timeout time.Duration) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    int64(size),
		timeout: timeout,
		done:    make(chan struct{}),
	}, nil
}

// Acquire はリースを取得する。満杯ならtimeoutまで待つ
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	waitCtx, cancel := p.waitContext(ctx)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if p.closed.Load() {
			return nil, ErrPoolClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrLeaseTimeout, p.timeout)
	}
	if p.closed.Load() {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}

	p.inUse.Add(1)
	return &Lease{pool: p}, nil
}

// waitContext は呼び出し元ctxにtimeoutとClose通知を重ねたcontextを返す
func (p *Pool) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var waitCtx context.Context
	var cancel context.CancelFunc
	if p.timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	go func() {
		select {
		case <-p.done:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	return waitCtx, cancel
}

// Release はリースを返却する。2回目以降の呼び出しは何もしない
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.pool.inUse.Add(-1)
	l.pool.sem.Release(1)
}

// Do はリースを取得してfnを実行し、エラーやpanicでも必ず返却する
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(ctx)
}

// InUse は貸し出し中のリース数を返す
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Size はリースの上限数を返す
func (p *Pool) Size() int {
	return int(p.size)
}

// Close は新規リースを拒否し、待機中のAcquireを解放する
// 貸し出し中のリースはそのまま返却できる
func (p *Pool) Close() {
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.done)
	})
}
