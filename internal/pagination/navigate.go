package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/insighthub/internal/model"
)

// Fetcher は記事ストアからページを取得する境界。
// cursorがゼロ値の場合は最新の記事を、そうでなければcursorより厳密に古い記事を新しい順に返す。
type Fetcher interface {
	FetchPage(ctx context.Context, cursor time.Time) ([]model.Article, error)
}

// FetcherFunc は関数をFetcherとして扱うためのアダプター。
type FetcherFunc func(ctx context.Context, cursor time.Time) ([]model.Article, error)

// FetchPage はf(ctx, cursor)を呼び出す。
func (f FetcherFunc) FetchPage(ctx context.Context, cursor time.Time) ([]model.Article, error) {
	return f(ctx, cursor)
}

// ResultKind はナビゲーション結果の種別。
type ResultKind int

const (
	// ResultPage はページを表示したことを示す。
	ResultPage ResultKind = iota
	// ResultEndOfFeed は次ページが0件だったことを示す。エラーではない。
	ResultEndOfFeed
	// ResultNoPrevious は前ページが存在せず何もしなかったことを示す。
	ResultNoPrevious
)

func (k ResultKind) String() string {
	switch k {
	case ResultPage:
		return "page"
	case ResultEndOfFeed:
		return "end_of_feed"
	case ResultNoPrevious:
		return "no_previous"
	default:
		return "unknown"
	}
}

// Result はナビゲーション1回分の結果。
type Result struct {
	Kind     ResultKind
	Page     int             // 表示中のページ番号
	Articles []model.Article // Kind == ResultPage の場合のみ設定される
}

// ErrNonMonotonicPage は取得したページにカーソル以降の記事が含まれていたことを示す。
var ErrNonMonotonicPage = errors.New("page contains articles not older than the cursor")

// TransportError はページ取得の失敗を表す。再試行可能で、状態は変更されていない。
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to fetch news: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout はリクエストタイムアウトによる失敗かどうかを返す。
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Next はsのカーソルで次ページを取得し、新しいStateを返す。
//
// 1件以上取得できた場合は現在ページ+1を表示し、カーソルを最後の記事のpublishedに進める。
// 0件の場合は終端フラグのみを立て、カーソル・履歴・現在ページは変更しない。
// 取得に失敗した場合はsをそのまま返し、エラーは*TransportErrorになる。
func Next(ctx context.Context, f Fetcher, s State) (State, Result, error) {
	cursor, hasCursor := s.Cursor()

	articles, err := f.FetchPage(ctx, cursor)
	if err != nil {
		return s, Result{}, &TransportError{Err: err}
	}

	if len(articles) == 0 {
		next := s
		next.exhausted = true
		return next, Result{Kind: ResultEndOfFeed, Page: s.current}, nil
	}

	if hasCursor {
		for _, a := range articles {
			if !a.Published.Before(cursor) {
				return s, Result{}, &TransportError{Err: ErrNonMonotonicPage}
			}
		}
	}

	page := clonePage(articles)
	next := s.withPage(s.current+1, page)
	return next, Result{Kind: ResultPage, Page: next.current, Articles: clonePage(page)}, nil
}

// Prev は履歴から前ページを表示したStateを返す。取得は行わない。
// 現在ページが1以下の場合はsをそのまま返し、Kindは ResultNoPrevious になる。
func Prev(s State) (State, Result) {
	if s.current <= 1 {
		return s, Result{Kind: ResultNoPrevious, Page: s.current}
	}

	k := s.current - 1
	page := s.history[k-1]
	prev := State{
		cursor:    page[len(page)-1].Published,
		history:   s.history,
		current:   k,
		exhausted: false,
	}
	return prev, Result{Kind: ResultPage, Page: k, Articles: clonePage(page)}
}
