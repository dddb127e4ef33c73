package model

import (
	"strings"
	"time"
)

// cursorLayouts はlastPublishedTimeとして受け付ける時刻フォーマット。
// RFC 1123 は既存のブラウザクライアントが送る形式。
var cursorLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
}

// ParseCursor はlastPublishedTimeの文字列を時刻に変換する。
// 空文字列はカーソル未設定としてゼロ値を返す。
// いずれの形式にも一致しない場合はINVALID_CURSORのAPIErrorを返す。
func ParseCursor(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range cursorLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NewInvalidCursorError(raw)
}

// FormatCursor は時刻をUTCのRFC3339Nano形式に変換する。
// ゼロ値は空文字列になる。
func FormatCursor(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
