// Package pagination はカーソル方式で記事ページを前後に辿るクライアント側のエンジンを提供する。
//
// カーソルは常に「表示中のページの最後（最古）の記事のpublished」を指す。
// 戻る操作でもカーソルを表示中ページから再計算するため、その後の進む操作は
// 以前と同じ次ページを再現する。
package pagination

import (
	"time"

	"github.com/hitoshi/insighthub/internal/model"
)

// Status はページングの状態を表す。
type Status int

const (
	// StatusEmpty はまだ1ページも取得していない状態。
	StatusEmpty Status = iota
	// StatusViewing はいずれかのページを表示している状態。
	StatusViewing
	// StatusEnd はページ表示中に次ページが0件だった状態。戻る操作で解除される。
	StatusEnd
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusViewing:
		return "viewing"
	case StatusEnd:
		return "end"
	default:
		return "unknown"
	}
}

// State はカーソル、ページ履歴、現在ページ番号、終端フラグを保持する値オブジェクト。
// ゼロ値は初期状態（Empty）を表す。
// 操作は新しいStateを返し、元のStateは変更しない。
type State struct {
	cursor    time.Time
	history   [][]model.Article
	current   int // 1始まり。0は未取得
	exhausted bool
}

// Cursor は次の取得に使うカーソルを返す。未設定の場合はfalseを返す。
func (s State) Cursor() (time.Time, bool) {
	return s.cursor, !s.cursor.IsZero()
}

// CurrentPage は表示中のページ番号を返す。未取得の場合は0。
func (s State) CurrentPage() int {
	return s.current
}

// Pages は取得済みのページ数を返す。これまで到達した最大のページ番号と等しい。
func (s State) Pages() int {
	return len(s.history)
}

// Page はk番目（1始まり）のページの記事のコピーを返す。範囲外の場合はfalseを返す。
func (s State) Page(k int) ([]model.Article, bool) {
	if k < 1 || k > len(s.history) {
		return nil, false
	}
	return clonePage(s.history[k-1]), true
}

// Articles は表示中のページの記事を返す。未取得の場合はnil。
func (s State) Articles() []model.Article {
	page, _ := s.Page(s.current)
	return page
}

// CanGoForward は直近のloadNextが0件でなければtrueを返す。
func (s State) CanGoForward() bool {
	return !s.exhausted
}

// CanGoBack は現在ページが2以上の場合にtrueを返す。
func (s State) CanGoBack() bool {
	return s.current > 1
}

// Status は状態遷移上の状態を返す。
// 1件も記事がないストアで最初の取得が0件だった場合はEmptyのまま進めなくなる。
func (s State) Status() Status {
	switch {
	case s.current == 0:
		return StatusEmpty
	case s.exhausted:
		return StatusEnd
	default:
		return StatusViewing
	}
}

// withPage はk番目のページを表示し、カーソルをそのページの最後の記事に合わせたStateを返す。
// kが既存の履歴の次であれば履歴に追加し、既に到達済みであればその位置を置き換える。
func (s State) withPage(k int, articles []model.Article) State {
	history := make([][]model.Article, len(s.history), max(len(s.history), k))
	copy(history, s.history)
	if k > len(history) {
		history = append(history, articles)
	} else {
		history[k-1] = articles
	}
	return State{
		cursor:    articles[len(articles)-1].Published,
		history:   history,
		current:   k,
		exhausted: false,
	}
}

func clonePage(page []model.Article) []model.Article {
	if page == nil {
		return nil
	}
	out := make([]model.Article, len(page))
	copy(out, page)
	return out
}
