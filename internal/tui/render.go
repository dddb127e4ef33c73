package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hitoshi/insighthub/internal/model"
)

// minContentWidth は折り返し幅の下限。
const minContentWidth = 20

// emptyPageText は表示する記事がない場合の文言。
const emptyPageText = "No articles to show."

// renderArticles は記事の一覧をタイトル、要約、"Read more"リンクの順に描画する。
// 出力は引数のみで決まり、前回の描画内容には依存しない。
func renderArticles(articles []model.Article, width int) string {
	if len(articles) == 0 {
		return helpStyle.Render(emptyPageText)
	}
	if width < minContentWidth {
		width = minContentWidth
	}

	blocks := make([]string, 0, len(articles))
	for _, a := range articles {
		blocks = append(blocks, renderArticle(a, width))
	}

	sep := separatorStyle.Render(strings.Repeat("─", width))
	return strings.Join(blocks, "\n"+sep+"\n")
}

func renderArticle(a model.Article, width int) string {
	parts := []string{articleTitleStyle.Render(wrapText(a.Title, width))}
	if a.Summary != "" {
		parts = append(parts, articleSummaryStyle.Render(wrapText(a.Summary, width)))
	}
	parts = append(parts, articleLinkStyle.Render("Read more: "+a.Link))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// wrapText は単語単位でwidthに収まるように折り返す。
// 幅は表示幅で数えるため、全角文字を含む文字列でも崩れない。
func wrapText(s string, width int) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	if width <= 0 {
		return strings.Join(words, " ")
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if lipgloss.Width(line)+1+lipgloss.Width(w) > width {
			lines = append(lines, line)
			line = w
		} else {
			line += " " + w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}
