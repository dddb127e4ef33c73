// Package importer はRSS/Atomフィードから記事ストアへ記事を取り込む。
// 定期実行のパイプラインではなく、importコマンドから1回ずつ呼ばれる。
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/insighthub/internal/metrics"
	"github.com/hitoshi/insighthub/internal/model"
	"github.com/hitoshi/insighthub/internal/repository"
	"github.com/hitoshi/insighthub/internal/security"
)

// DefaultMaxAge は取り込み対象とする記事の既定の鮮度。
const DefaultMaxAge = 24 * time.Hour

// userAgent はフェッチ時に送るUser-Agent。
const userAgent = "InsightHub/1.0 Feed Importer"

// ImportRecorder は取り込み結果のメトリクスを記録する。
type ImportRecorder interface {
	RecordImport(created, updated, skipped int)
	RecordImportFailure(reason string)
}

// Result は1回の取り込み結果を表す。
type Result struct {
	FeedURL   string // 実際にパースしたフィードのURLまたはファイルパス
	FeedTitle string
	Created   int
	Updated   int
	Unchanged int
	Skipped   int // リンクなし、またはmaxAgeより古い記事
}

// Importer はフィードを取得・パースし、記事をlink単位でUPSERTする。
type Importer struct {
	articleRepo repository.ArticleRepository
	sanitizer   security.SummarySanitizer
	httpClient  *http.Client
	guard       security.URLGuard
	recorder    ImportRecorder
	logger      *slog.Logger
	maxBodySize int64
	now         func() time.Time
}

// NewImporter はImporterを生成する。
// guardがnilの場合はURLの事前検証を行わない。SSRF対策はhttpClient側
// （security.URLGuard.NewSafeClient）でも行われる。
func NewImporter(
	articleRepo repository.ArticleRepository,
	sanitizer security.SummarySanitizer,
	httpClient *http.Client,
	guard security.URLGuard,
	recorder ImportRecorder,
	logger *slog.Logger,
	maxBodySize int64,
) *Importer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodySize <= 0 {
		maxBodySize = 5 * 1024 * 1024
	}
	return &Importer{
		articleRepo: articleRepo,
		sanitizer:   sanitizer,
		httpClient:  httpClient,
		guard:       guard,
		recorder:    recorder,
		logger:      logger,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// Import はsourceからフィードを読み込み、記事ストアに保存する。
// sourceはhttp(s)のURLかローカルファイルのパス。URLがHTMLページの場合は
// <link rel="alternate">からフィードURLを検出する。
// maxAgeより古い記事はスキップする。0以下の場合は鮮度で絞り込まない。
func (im *Importer) Import(ctx context.Context, source string, maxAge time.Duration) (*Result, error) {
	start := im.now()

	feed, feedURL, err := im.load(ctx, source)
	if err != nil {
		im.recorder.RecordImportFailure(failureReason(err))
		im.logger.Error("フィードの読み込みに失敗しました",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result := &Result{FeedURL: feedURL, FeedTitle: strings.TrimSpace(feed.Title)}
	parsed := convertGofeedItems(feed.Items)

	if err := im.upsert(ctx, parsed, maxAge, start, result); err != nil {
		im.recorder.RecordImportFailure("store")
		return result, err
	}

	im.recorder.RecordImport(result.Created, result.Updated, result.Skipped)
	im.logger.Info("フィードの取り込みが完了しました",
		slog.String("feed_url", feedURL),
		slog.Int("items_total", len(parsed)),
		slog.Int("items_created", result.Created),
		slog.Int("items_updated", result.Updated),
		slog.Int("items_unchanged", result.Unchanged),
		slog.Int("items_skipped", result.Skipped),
		slog.Float64("duration_ms", float64(im.now().Sub(start).Milliseconds())),
	)
	return result, nil
}

// load はsourceの種類に応じてフィードを取得・パースする。
func (im *Importer) load(ctx context.Context, source string) (*gofeed.Feed, string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, "", model.NewInvalidURLError("source is empty")
	}

	if !isRemote(source) {
		return parseFile(source)
	}

	body, contentType, err := im.fetch(ctx, source)
	if err != nil {
		return nil, "", err
	}

	feedURL := source
	if !isDirectFeed(contentType, body) && isHTML(contentType) {
		best := selectBestFeed(parseFeedLinksFromHTML(body, source), source)
		if best == nil {
			return nil, "", model.NewFeedNotDetectedError(source)
		}
		feedURL = best.URL
		im.logger.Info("HTMLからフィードを検出しました",
			slog.String("page_url", source),
			slog.String("feed_url", feedURL),
			slog.String("feed_type", string(best.FeedType)),
		)

		body, _, err = im.fetch(ctx, feedURL)
		if err != nil {
			return nil, "", err
		}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.NewParseFailedError(), err)
	}
	return feed, feedURL, nil
}

// fetch はURLを取得し、上限サイズまでのボディとContent-Typeを返す。
func (im *Importer) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if im.guard != nil {
		if err := im.guard.ValidateURL(rawURL); err != nil {
			return nil, "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := im.httpClient.Do(req)
	if err != nil {
		return nil, "", model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize+1))
	if err != nil {
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("reading body: %v", err))
	}
	if int64(len(body)) > im.maxBodySize {
		return nil, "", model.NewFetchFailedError(fmt.Sprintf("response exceeds %d bytes", im.maxBodySize))
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// undatedStep は公開日時のない記事同士をずらす間隔。PostgreSQLのtimestamptzの精度に合わせる。
const undatedStep = time.Microsecond

// upsert は記事をlink単位で作成または更新する。
// publishedのない記事は取り込み時刻からフィード内の位置分だけ遡った時刻を公開日時とし、
// 既存記事の公開日時は維持する。厳密に古い記事を辿るカーソルで全件に到達できるよう、
// 同一取り込み内の時刻は重複させない。
func (im *Importer) upsert(ctx context.Context, items []model.ParsedArticle, maxAge time.Duration, fetchedAt time.Time, result *Result) error {
	var oldest time.Time
	if maxAge > 0 {
		oldest = fetchedAt.Add(-maxAge)
	}
	fetchedAt = fetchedAt.Truncate(undatedStep)

	for i, p := range items {
		if p.Link == "" {
			result.Skipped++
			continue
		}
		if p.Published != nil && !oldest.IsZero() && p.Published.Before(oldest) {
			result.Skipped++
			continue
		}

		title := im.sanitizer.Sanitize(p.Title)
		summary := im.sanitizer.Sanitize(p.Summary)

		existing, err := im.articleRepo.FindByLink(ctx, p.Link)
		if err != nil {
			return fmt.Errorf("記事の検索に失敗しました (link=%s): %w", p.Link, err)
		}

		if existing == nil {
			published := fetchedAt.Add(-time.Duration(i) * undatedStep)
			if p.Published != nil {
				published = *p.Published
			}
			article := &model.Article{
				ID:        uuid.New().String(),
				Title:     title,
				Summary:   summary,
				Link:      p.Link,
				Published: published,
				CreatedAt: fetchedAt,
				UpdatedAt: fetchedAt,
			}
			if err := im.articleRepo.Create(ctx, article); err != nil {
				return fmt.Errorf("記事の作成に失敗しました (link=%s): %w", p.Link, err)
			}
			result.Created++
			continue
		}

		published := existing.Published
		if p.Published != nil {
			published = *p.Published
		}
		if existing.Title == title && existing.Summary == summary && existing.Published.Equal(published) {
			result.Unchanged++
			continue
		}

		existing.Title = title
		existing.Summary = summary
		existing.Published = published
		existing.UpdatedAt = fetchedAt
		if err := im.articleRepo.Update(ctx, existing); err != nil {
			return fmt.Errorf("記事の更新に失敗しました (link=%s): %w", p.Link, err)
		}
		result.Updated++
	}
	return nil
}

// parseFile はローカルファイルをフィードとしてパースする。
func parseFile(path string) (*gofeed.Feed, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("フィードファイルを開けません: %w", err)
	}
	defer f.Close()

	feed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.NewParseFailedError(), err)
	}
	return feed, path, nil
}

// isRemote はsourceがhttp(s)のURLかを判定する。
func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// failureReason はメトリクスのラベルに使う失敗理由を返す。
func failureReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return strings.ToLower(apiErr.Code)
	}
	if errors.Is(err, os.ErrNotExist) {
		return "file_not_found"
	}
	return "other"
}

// convertGofeedItems はgofeedの記事をmodel.ParsedArticleに変換する。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedArticle {
	parsed := make([]model.ParsedArticle, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		p := model.ParsedArticle{
			Title:   item.Title,
			Link:    strings.TrimSpace(item.Link),
			Summary: item.Description,
		}
		if p.Summary == "" {
			p.Summary = item.Content
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			p.Published = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			p.Published = &t
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if p.Link == "" && isRemote(item.GUID) {
			p.Link = item.GUID
		}

		parsed = append(parsed, p)
	}

	return parsed
}
