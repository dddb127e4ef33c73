package handler

import (
	"context"
	"net/http"
)

// NewsServiceInterface はニュースハンドラーが必要とするサービスインターフェース。
type NewsServiceInterface interface {
	// ListPage はカーソルより古い記事を最大1ページ分返す。
	// rawCursorが不正な場合はINVALID_CURSORのAPIErrorを返す。
	ListPage(ctx context.Context, rawCursor string) ([]articleResponse, error)
}

// articleResponse はGET /api/newsのレスポンス要素。
type articleResponse struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Link      string `json:"link"`
	Published string `json:"published"`
}

// NewsHandler はニュース記事一覧のHTTPハンドラー。
type NewsHandler struct {
	service NewsServiceInterface
}

// NewNewsHandler はNewsHandlerを生成する。
func NewNewsHandler(service NewsServiceInterface) *NewsHandler {
	return &NewsHandler{service: service}
}

// ListNews は記事を新しい順に1ページ分返す。
// GET /api/news?lastPublishedTime=
func (h *NewsHandler) ListNews(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("lastPublishedTime")

	articles, err := h.service.ListPage(r.Context(), cursor)
	if err != nil {
		handleServiceError(w, r, err, "Error fetching news")
		return
	}
	if articles == nil {
		articles = []articleResponse{}
	}

	writeJSON(w, http.StatusOK, articles)
}
