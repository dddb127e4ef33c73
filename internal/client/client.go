// Package client は記事APIとアカウントAPIのHTTPクライアントを提供する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/insighthub/internal/model"
)

// アカウントAPIの失敗を表すエラー。
var (
	ErrDuplicateUser      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnexpectedServer   = errors.New("unexpected server error")
)

// codeを返さないサーバーが使うエラーメッセージ。
const (
	duplicateUserMessage      = "Username already exists"
	invalidCredentialsMessage = "Invalid username or password"
)

// AccountError はサーバーが返したエラーメッセージとセンチネルエラーを保持する。
type AccountError struct {
	Message string
	Err     error
}

func (e *AccountError) Error() string { return e.Message }

func (e *AccountError) Unwrap() error { return e.Err }

// maxResponseSize はレスポンスボディの読み取り上限。
const maxResponseSize = 5 << 20

// Client はサーバーAPIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New はClientを生成する。httpClientがnilの場合はtimeout付きのクライアントを作る。
func New(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// articleJSON は/api/newsのレスポンス要素。
type articleJSON struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Link      string `json:"link"`
	Published string `json:"published"`
}

// FetchPage はcursorより古い記事を1ページ分取得する。
// cursorがゼロ値の場合はlastPublishedTimeを付けずに最新ページを取得する。
func (c *Client) FetchPage(ctx context.Context, cursor time.Time) ([]model.Article, error) {
	u := c.baseURL + "/api/news"
	if !cursor.IsZero() {
		u += "?" + url.Values{"lastPublishedTime": {model.FormatCursor(cursor)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorMessage(body))
	}

	var raw []articleJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode articles: %w", err)
	}

	articles := make([]model.Article, 0, len(raw))
	for _, r := range raw {
		published, err := model.ParseCursor(r.Published)
		if err != nil || published.IsZero() {
			return nil, fmt.Errorf("invalid published time %q for %s", r.Published, r.Link)
		}
		articles = append(articles, model.Article{
			Title:     r.Title,
			Summary:   r.Summary,
			Link:      r.Link,
			Published: published,
		})
	}
	return articles, nil
}

// Register はユーザー登録を行い、成功時はサーバーのメッセージを返す。
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	return c.postAccount(ctx, "/register", username, password)
}

// Login はログインを行い、成功時はサーバーのメッセージを返す。
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	return c.postAccount(ctx, "/login", username, password)
}

type accountResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (c *Client) postAccount(ctx context.Context, path, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed accountResponse
	_ = json.Unmarshal(body, &parsed)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parsed.Message, nil
	case resp.StatusCode == http.StatusBadRequest:
		return "", mapAccountError(parsed)
	default:
		return "", fmt.Errorf("%w: status %d: %s", ErrUnexpectedServer, resp.StatusCode, errorMessage(body))
	}
}

// mapAccountError は400レスポンスのボディをセンチネルエラーに変換する。
// codeが無い古いサーバーにはerrorメッセージで判定する。
// 表示用のメッセージはサーバーの文言をそのまま使う。
func mapAccountError(r accountResponse) error {
	switch {
	case r.Code == model.ErrCodeDuplicateUser || r.Error == duplicateUserMessage:
		return newAccountError(r.Error, duplicateUserMessage, ErrDuplicateUser)
	case r.Code == model.ErrCodeInvalidCredentials || r.Error == invalidCredentialsMessage:
		return newAccountError(r.Error, invalidCredentialsMessage, ErrInvalidCredentials)
	case r.Error != "":
		return fmt.Errorf("%w: %s", ErrInvalidRequest, r.Error)
	default:
		return ErrInvalidRequest
	}
}

func newAccountError(msg, fallback string, sentinel error) *AccountError {
	if msg == "" {
		msg = fallback
	}
	return &AccountError{Message: msg, Err: sentinel}
}

// errorMessage はエラーレスポンスから表示用のメッセージを取り出す。
func errorMessage(body []byte) string {
	var r accountResponse
	if err := json.Unmarshal(body, &r); err == nil && r.Error != "" {
		return r.Error
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(bytes.TrimSpace(body))
}
