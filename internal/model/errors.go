// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（ユーザーにそのまま表示される）
	Category string // カテゴリ: auth, validation, feed, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateUser      = "DUPLICATE_USER"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidCursor      = "INVALID_CURSOR"
	ErrCodeFeedNotDetected    = "FEED_NOT_DETECTED"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeParseFailed        = "PARSE_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewDuplicateUserError はユーザー名重複エラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  "Username already exists",
		Category: "auth",
		Action:   "Choose a different username.",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー不在とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid username or password",
		Category: "auth",
		Action:   "Check your username and password and try again.",
	}
}

// NewInvalidRequestError はリクエスト内容の不備によるエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  reason,
		Category: "validation",
		Action:   "Fix the request body and try again.",
	}
}

// NewInvalidCursorError はlastPublishedTimeの形式が不正な場合のエラーを生成する。
func NewInvalidCursorError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  "Invalid date format",
		Category: "validation",
		Action:   fmt.Sprintf("lastPublishedTime must be an RFC 3339 or RFC 1123 timestamp (got %q).", raw),
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("no RSS/Atom feed found at %s", url),
		Category: "feed",
		Action:   "Pass the feed URL directly, or a page that advertises one.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("invalid URL: %s", reason),
		Category: "validation",
		Action:   "Use an absolute http:// or https:// URL.",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "access to the URL was blocked by the security policy",
		Category: "validation",
		Action:   "Private, loopback and link-local addresses are not allowed.",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("failed to fetch: %s", reason),
		Category: "feed",
		Action:   "Check the URL and retry later.",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "failed to parse the feed",
		Category: "feed",
		Action:   "Make sure the source is a valid RSS/Atom feed.",
	}
}
