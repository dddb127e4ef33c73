// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SummarySanitizer はフィード由来の要約HTMLをプレーンテキストに変換する。
// 記事ストアには要約をプレーンテキストで保存し、クライアントはそのまま表示する。
type SummarySanitizer interface {
	// Sanitize は全てのタグを除去し、エンティティを復元し、空白を1つに詰めた文字列を返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// summarySanitizer はSummarySanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type summarySanitizer struct {
	policy *bluemonday.Policy
}

// NewSummarySanitizer はbluemondayのStrictPolicyを使うSummarySanitizerを生成する。
func NewSummarySanitizer() *summarySanitizer {
	return &summarySanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLをプレーンテキストに変換する。
func (s *summarySanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	// ブロック要素の境界で単語が連結しないよう、タグを空白に置き換える
	stripped := s.policy.Sanitize(strings.NewReplacer("<", " <").Replace(rawHTML))
	text := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(text), " ")
}
