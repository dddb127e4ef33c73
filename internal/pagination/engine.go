package pagination

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTimeout はページ取得1回あたりのタイムアウトの既定値。
const DefaultTimeout = 10 * time.Second

// ErrNavigationInProgress は別のナビゲーションの完了前に操作したことを示す。
// 状態は変更されていない。
var ErrNavigationInProgress = errors.New("navigation already in progress")

// Engine はStateを保持し、NextとPrevを排他的に適用する。
// 取得中に発行されたナビゲーションはErrNavigationInProgressで即座に失敗する。
type Engine struct {
	fetcher Fetcher
	timeout time.Duration

	mu       sync.Mutex
	state    State
	inFlight bool
}

// NewEngine はEngineを生成する。timeoutが0以下の場合はDefaultTimeoutを使用する。
// 最初のページは呼び出し側がLoadNextを呼んで取得する。
func NewEngine(f Fetcher, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{fetcher: f, timeout: timeout}
}

// State は現在のStateを返す。
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Busy はページ取得中かどうかを返す。
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// LoadNext は次ページを取得する。
// タイムアウトを含む取得失敗は*TransportErrorとして返り、状態は変更されない。
func (e *Engine) LoadNext(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return Result{}, ErrNavigationInProgress
	}
	e.inFlight = true
	current := e.state
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	next, res, err := Next(ctx, e.fetcher, current)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = false
	if err != nil {
		return Result{}, err
	}
	e.state = next
	return res, nil
}

// LoadPrev は履歴から前ページを表示する。取得は行わない。
func (e *Engine) LoadPrev() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return Result{}, ErrNavigationInProgress
	}
	prev, res := Prev(e.state)
	e.state = prev
	return res, nil
}
