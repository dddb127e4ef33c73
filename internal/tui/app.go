// Package tui はページングエンジンを使ってニュースを閲覧する端末クライアントを提供する。
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/insighthub/internal/pagination"
)

// 利用者に表示する通知文言。
const (
	fetchFailedNotice = "Failed to fetch news. Please try again later."
	endOfFeedNotice   = "No more articles available."
)

// Navigator はTUIが操作するページングエンジン。*pagination.Engineが満たす。
type Navigator interface {
	State() pagination.State
	LoadNext(ctx context.Context) (pagination.Result, error)
	LoadPrev() (pagination.Result, error)
}

// pageLoadedMsg はLoadNextの完了を表す。
type pageLoadedMsg struct {
	result pagination.Result
	err    error
}

// Model はbubbleteaのモデル。
type Model struct {
	ctx     context.Context
	nav     Navigator
	spinner spinner.Model

	loading bool
	notice  string
	// blockingはエラー通知中であることを示す。任意のキーで解除されるまで操作を受け付けない。
	blocking bool

	width  int
	height int
}

// New はModelを生成する。最初のページはInitで取得するため、取得中の状態で始まる。
func New(ctx context.Context, nav Navigator) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	return Model{
		ctx:     ctx,
		nav:     nav,
		spinner: sp,
		loading: true,
		width:   80,
	}
}

// Run はTUIを起動し、終了するまでブロックする。
func Run(ctx context.Context, nav Navigator) error {
	p := tea.NewProgram(New(ctx, nav), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUIの実行に失敗しました: %w", err)
	}
	return nil
}

// Init は最初のページの取得を開始する。
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadNextCmd(m.ctx, m.nav))
}

// loadNextCmd はLoadNextを別ゴルーチンで実行するコマンドを返す。
func loadNextCmd(ctx context.Context, nav Navigator) tea.Cmd {
	return func() tea.Msg {
		res, err := nav.LoadNext(ctx)
		return pageLoadedMsg{result: res, err: err}
	}
}

// Update はメッセージに応じてモデルを更新する。
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pageLoadedMsg:
		return m.handlePageLoaded(msg), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.blocking {
		m.blocking = false
		m.notice = ""
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "n", "right":
		// 取得中のナビゲーションは無視する
		if m.loading {
			return m, nil
		}
		if !m.nav.State().CanGoForward() {
			m.notice = endOfFeedNotice
			return m, nil
		}
		m.notice = ""
		m.loading = true
		return m, loadNextCmd(m.ctx, m.nav)

	case "p", "left":
		if m.loading || !m.nav.State().CanGoBack() {
			return m, nil
		}
		if _, err := m.nav.LoadPrev(); err != nil {
			return m, nil
		}
		m.notice = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handlePageLoaded(msg pageLoadedMsg) Model {
	m.loading = false

	if msg.err != nil {
		if errors.Is(msg.err, pagination.ErrNavigationInProgress) {
			return m
		}
		m.notice = fetchFailedNotice
		m.blocking = true
		return m
	}

	if msg.result.Kind == pagination.ResultEndOfFeed {
		m.notice = endOfFeedNotice
	}
	return m
}

// View は画面を描画する。
func (m Model) View() string {
	state := m.nav.State()

	var b strings.Builder

	header := "InsightHub"
	if page := state.CurrentPage(); page > 0 {
		header += fmt.Sprintf(" · page %d", page)
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	if state.Status() == pagination.StatusEmpty && !m.loading && !m.blocking {
		b.WriteString(helpStyle.Render("No articles yet."))
	} else {
		b.WriteString(renderArticles(state.Articles(), m.contentWidth()))
	}
	b.WriteString("\n\n")

	switch {
	case m.blocking:
		b.WriteString(errorNoticeStyle.Render(m.notice))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("Press any key to continue."))
		b.WriteString("\n")
	case m.notice != "":
		b.WriteString(infoNoticeStyle.Render(m.notice))
		b.WriteString("\n")
	}

	if m.loading {
		b.WriteString(m.spinner.View() + " " + helpStyle.Render("Loading..."))
		b.WriteString("\n")
	}

	b.WriteString(m.helpLine(state))
	return b.String()
}

func (m Model) contentWidth() int {
	return m.width - 2
}

// helpLine は操作キーの一覧を返す。現在使えないキーは打ち消し線で表示する。
func (m Model) helpLine(state pagination.State) string {
	key := func(label string, enabled bool) string {
		if enabled && !m.loading {
			return helpStyle.Render(label)
		}
		return disabledKeyStyle.Render(label)
	}
	return strings.Join([]string{
		key("n/→ next", state.CanGoForward()),
		key("p/← prev", state.CanGoBack()),
		helpStyle.Render("q quit"),
	}, helpStyle.Render("  "))
}
