// Package article は記事一覧のページ取得を提供する。
package article

import (
	"context"
	"fmt"

	"github.com/hitoshi/insighthub/internal/metrics"
	"github.com/hitoshi/insighthub/internal/model"
	"github.com/hitoshi/insighthub/internal/repository"
)

// DefaultPageSize は1ページあたりの記事数の既定値。
const DefaultPageSize = 5

// ServedRecorder は返却した記事数を記録する。
type ServedRecorder interface {
	RecordArticlesServed(count int)
}

// Service は記事一覧のサービス層。
type Service struct {
	articleRepo repository.ArticleRepository
	pageSize    int
	recorder    ServedRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
// pageSizeが0以下の場合はDefaultPageSizeを使用する。
func NewService(articleRepo repository.ArticleRepository, pageSize int, recorder ServedRecorder) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		articleRepo: articleRepo,
		pageSize:    pageSize,
		recorder:    recorder,
	}
}

// PageSize は1ページあたりの記事数を返す。
func (s *Service) PageSize() int {
	return s.pageSize
}

// ListPage はrawCursorより厳密に古い記事を新しい順に最大PageSize件返す。
// rawCursorが空の場合は最新の記事から返す。
// 該当記事がない場合は空スライスを返す（nilは返さない）。
func (s *Service) ListPage(ctx context.Context, rawCursor string) ([]model.Article, error) {
	cursor, err := model.ParseCursor(rawCursor)
	if err != nil {
		return nil, err
	}

	articles, err := s.articleRepo.ListBefore(ctx, cursor, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	if articles == nil {
		articles = []model.Article{}
	}

	s.recorder.RecordArticlesServed(len(articles))
	return articles, nil
}
