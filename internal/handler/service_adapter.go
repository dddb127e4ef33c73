package handler

import (
	"context"

	"github.com/hitoshi/insighthub/internal/article"
	"github.com/hitoshi/insighthub/internal/model"
)

// NewsServiceAdapter は article.Service を NewsServiceInterface に適合させるアダプタ。
type NewsServiceAdapter struct {
	svc *article.Service
}

// NewNewsServiceAdapter はNewsServiceAdapterを生成する。
func NewNewsServiceAdapter(svc *article.Service) *NewsServiceAdapter {
	return &NewsServiceAdapter{svc: svc}
}

// ListPage は記事一覧をhandlerレスポンス型で返す。
func (a *NewsServiceAdapter) ListPage(ctx context.Context, rawCursor string) ([]articleResponse, error) {
	articles, err := a.svc.ListPage(ctx, rawCursor)
	if err != nil {
		return nil, err
	}

	results := make([]articleResponse, len(articles))
	for i, art := range articles {
		results[i] = toArticleResponse(art)
	}
	return results, nil
}

// toArticleResponse はmodel.Articleをレスポンス型に変換する。
// publishedはクライアントがそのまま次ページのカーソルに使える形式で出力する。
func toArticleResponse(a model.Article) articleResponse {
	return articleResponse{
		Title:     a.Title,
		Summary:   a.Summary,
		Link:      a.Link,
		Published: model.FormatCursor(a.Published),
	}
}
