package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/insighthub/internal/model"
	"github.com/hitoshi/insighthub/internal/pagination"
	"github.com/hitoshi/insighthub/internal/security"
)

// --- モック定義 ---

// memArticleRepo はlinkをキーにしたインメモリのArticleRepository。
type memArticleRepo struct {
	mu       sync.Mutex
	byLink   map[string]*model.Article
	creates  int
	updates  int
	createFn func(a *model.Article) error
}

func newMemArticleRepo() *memArticleRepo {
	return &memArticleRepo{byLink: make(map[string]*model.Article)}
}

// ListBefore はcursorより厳密に古い記事を新しい順に最大limit件返す。
// cursorがゼロ値の場合は最新から返す。
func (r *memArticleRepo) ListBefore(ctx context.Context, cursor time.Time, limit int) ([]model.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Article
	for _, a := range r.byLink {
		if cursor.IsZero() || a.Published.Before(cursor) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Published.Equal(out[j].Published) {
			return out[i].Published.After(out[j].Published)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memArticleRepo) FindByLink(ctx context.Context, link string) (*model.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byLink[link]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memArticleRepo) Create(ctx context.Context, a *model.Article) error {
	if r.createFn != nil {
		if err := r.createFn(a); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.byLink[a.Link] = &cp
	r.creates++
	return nil
}

func (r *memArticleRepo) Update(ctx context.Context, a *model.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.byLink[a.Link] = &cp
	r.updates++
	return nil
}

func (r *memArticleRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, errors.New("not used")
}

func (r *memArticleRepo) get(link string) *model.Article {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byLink[link]
}

// mockImportRecorder はImportRecorderのモック実装。
type mockImportRecorder struct {
	mu                        sync.Mutex
	created, updated, skipped int
	imports                   int
	failures                  []string
}

func (m *mockImportRecorder) RecordImport(created, updated, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports++
	m.created, m.updated, m.skipped = created, updated, skipped
}

func (m *mockImportRecorder) RecordImportFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
}

// --- テストヘルパー ---

var fixedNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func newTestImporter(repo *memArticleRepo, rec *mockImportRecorder, guard security.URLGuard) *Importer {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	im := NewImporter(repo, security.NewSummarySanitizer(), http.DefaultClient, guard, rec, logger, 1<<20)
	im.now = func() time.Time { return fixedNow }
	return im
}

func rssFeed(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Example News</title><link>https://news.example.com/</link>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rssItem(title, link, description, pubDate string) string {
	s := "<item><title>" + title + "</title>"
	if link != "" {
		s += "<link>" + link + "</link>"
	}
	s += "<description><![CDATA[" + description + "]]></description>"
	if pubDate != "" {
		s += "<pubDate>" + pubDate + "</pubDate>"
	}
	return s + "</item>"
}

// --- テスト ---

func TestImport_RSSFromURL(t *testing.T) {
	feed := rssFeed(
		rssItem("First", "https://news.example.com/1", "<p>Hello <b>world</b> &amp; friends</p>", "Thu, 02 May 2024 10:00:00 GMT"),
		rssItem("Second", "https://news.example.com/2", "Plain", "Thu, 02 May 2024 09:00:00 GMT"),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	repo := newMemArticleRepo()
	rec := &mockImportRecorder{}
	im := newTestImporter(repo, rec, nil)

	result, err := im.Import(context.Background(), srv.URL+"/feed.xml", DefaultMaxAge)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	if result.Created != 2 || result.Updated != 0 || result.Skipped != 0 {
		t.Errorf("result = %+v, want 2 created", result)
	}
	if result.FeedTitle != "Example News" {
		t.Errorf("FeedTitle = %q", result.FeedTitle)
	}

	a := repo.get("https://news.example.com/1")
	if a == nil {
		t.Fatal("article 1 not stored")
	}
	if a.Summary != "Hello world & friends" {
		t.Errorf("Summary = %q, want %q", a.Summary, "Hello world & friends")
	}
	if !a.Published.Equal(time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Published = %v", a.Published)
	}
	if a.ID == "" {
		t.Error("expected generated ID")
	}

	if rec.imports != 1 || rec.created != 2 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestImport_DetectsFeedFromHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><link rel="alternate" type="application/atom+xml" href="/atom.xml"></head><body></body></html>`)
	})
	mux.HandleFunc("/atom.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom News</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://news.example.com/atom-1"/>
    <id>urn:uuid:1</id>
    <updated>2024-05-02T08:00:00Z</updated>
    <summary>Entry summary</summary>
  </entry>
</feed>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	repo := newMemArticleRepo()
	im := newTestImporter(repo, &mockImportRecorder{}, nil)

	result, err := im.Import(context.Background(), srv.URL+"/", DefaultMaxAge)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.FeedURL != srv.URL+"/atom.xml" {
		t.Errorf("FeedURL = %q, want %q", result.FeedURL, srv.URL+"/atom.xml")
	}
	a := repo.get("https://news.example.com/atom-1")
	if a == nil {
		t.Fatal("atom entry not stored")
	}
	// publishedがない場合はupdatedを使う
	if !a.Published.Equal(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("Published = %v", a.Published)
	}
}

func TestImport_HTMLWithoutFeed_ReturnsFeedNotDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>no feed</title></head></html>`)
	}))
	defer srv.Close()

	rec := &mockImportRecorder{}
	im := newTestImporter(newMemArticleRepo(), rec, nil)

	_, err := im.Import(context.Background(), srv.URL, DefaultMaxAge)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFeedNotDetected {
		t.Fatalf("err = %v, want FEED_NOT_DETECTED", err)
	}
	if len(rec.failures) != 1 || rec.failures[0] != "feed_not_detected" {
		t.Errorf("failures = %v", rec.failures)
	}
}

func TestImport_FetchErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode string
	}{
		{
			name: "404はFETCH_FAILED",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantCode: model.ErrCodeFetchFailed,
		},
		{
			name: "サイズ超過はFETCH_FAILED",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/rss+xml")
				w.Write(bytes.Repeat([]byte("x"), 2<<20))
			},
			wantCode: model.ErrCodeFetchFailed,
		},
		{
			name: "パース不能はPARSE_FAILED",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/rss+xml")
				fmt.Fprint(w, "this is not xml")
			},
			wantCode: model.ErrCodeParseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			im := newTestImporter(newMemArticleRepo(), &mockImportRecorder{}, nil)
			_, err := im.Import(context.Background(), srv.URL, DefaultMaxAge)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tt.wantCode {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestImport_GuardRejectsLoopback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	im := newTestImporter(newMemArticleRepo(), &mockImportRecorder{}, security.NewSSRFGuard())
	_, err := im.Import(context.Background(), srv.URL, DefaultMaxAge)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSSRFBlocked {
		t.Errorf("err = %v, want SSRF_BLOCKED", err)
	}
	if called {
		t.Error("server should not be contacted when the guard rejects the URL")
	}
}

func TestImport_SkipsOldAndLinklessItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	feed := rssFeed(
		rssItem("Fresh", "https://news.example.com/fresh", "new", "Thu, 02 May 2024 11:00:00 GMT"),
		rssItem("Stale", "https://news.example.com/stale", "old", "Mon, 29 Apr 2024 11:00:00 GMT"),
		rssItem("No link", "", "orphan", "Thu, 02 May 2024 11:00:00 GMT"),
	)
	if err := os.WriteFile(path, []byte(feed), 0o600); err != nil {
		t.Fatalf("failed to write feed: %v", err)
	}

	repo := newMemArticleRepo()
	im := newTestImporter(repo, &mockImportRecorder{}, nil)

	result, err := im.Import(context.Background(), path, DefaultMaxAge)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Created != 1 || result.Skipped != 2 {
		t.Errorf("result = %+v, want 1 created, 2 skipped", result)
	}
	if repo.get("https://news.example.com/stale") != nil {
		t.Error("stale article should not be stored")
	}

	// maxAge=0は鮮度で絞り込まない
	result, err = im.Import(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Created != 1 || result.Unchanged != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want 1 created, 1 unchanged, 1 skipped", result)
	}
}

func TestImport_UpsertByLink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	write := func(summary string) {
		t.Helper()
		feed := rssFeed(rssItem("Title", "https://news.example.com/1", summary, "Thu, 02 May 2024 10:00:00 GMT"))
		if err := os.WriteFile(path, []byte(feed), 0o600); err != nil {
			t.Fatalf("failed to write feed: %v", err)
		}
	}

	repo := newMemArticleRepo()
	im := newTestImporter(repo, &mockImportRecorder{}, nil)

	write("original")
	if _, err := im.Import(context.Background(), path, 0); err != nil {
		t.Fatalf("first import: %v", err)
	}
	firstID := repo.get("https://news.example.com/1").ID

	result, err := im.Import(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if result.Unchanged != 1 || repo.updates != 0 {
		t.Errorf("re-import of identical feed: result = %+v, updates = %d", result, repo.updates)
	}

	write("edited")
	result, err = im.Import(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("third import: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("result = %+v, want 1 updated", result)
	}
	a := repo.get("https://news.example.com/1")
	if a.ID != firstID {
		t.Errorf("ID changed on update: %q -> %q", firstID, a.ID)
	}
	if a.Summary != "edited" {
		t.Errorf("Summary = %q, want %q", a.Summary, "edited")
	}
	if repo.creates != 1 {
		t.Errorf("creates = %d, want 1", repo.creates)
	}
}

func TestImport_MissingPublishedUsesFetchTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	feed := rssFeed(rssItem("Undated", "https://news.example.com/undated", "x", ""))
	if err := os.WriteFile(path, []byte(feed), 0o600); err != nil {
		t.Fatalf("failed to write feed: %v", err)
	}

	repo := newMemArticleRepo()
	im := newTestImporter(repo, &mockImportRecorder{}, nil)

	if _, err := im.Import(context.Background(), path, DefaultMaxAge); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	a := repo.get("https://news.example.com/undated")
	if a == nil || !a.Published.Equal(fixedNow) {
		t.Fatalf("Published = %v, want %v", a, fixedNow)
	}

	// 再取り込みでは既存の公開日時を維持する
	im.now = func() time.Time { return fixedNow.Add(time.Hour) }
	result, err := im.Import(context.Background(), path, DefaultMaxAge)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Unchanged != 1 {
		t.Errorf("result = %+v, want 1 unchanged", result)
	}
	if got := repo.get("https://news.example.com/undated").Published; !got.Equal(fixedNow) {
		t.Errorf("Published = %v, want %v", got, fixedNow)
	}
}

func TestImport_UndatedItemsAreReachableAcrossPages(t *testing.T) {
	const count, pageSize = 7, 5

	items := make([]string, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, rssItem(fmt.Sprintf("Undated %d", i), fmt.Sprintf("https://news.example.com/undated/%d", i), "x", ""))
	}
	path := filepath.Join(t.TempDir(), "feed.xml")
	if err := os.WriteFile(path, []byte(rssFeed(items...)), 0o600); err != nil {
		t.Fatalf("failed to write feed: %v", err)
	}

	repo := newMemArticleRepo()
	im := newTestImporter(repo, &mockImportRecorder{}, nil)
	result, err := im.Import(context.Background(), path, DefaultMaxAge)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Created != count {
		t.Fatalf("created = %d, want %d", result.Created, count)
	}

	// フィードの順序どおりに厳密に減少する公開日時が付くこと
	for i := 1; i < count; i++ {
		prev := repo.get(fmt.Sprintf("https://news.example.com/undated/%d", i-1)).Published
		cur := repo.get(fmt.Sprintf("https://news.example.com/undated/%d", i)).Published
		if !cur.Before(prev) {
			t.Errorf("item %d published %v is not before item %d published %v", i, cur, i-1, prev)
		}
	}

	fetcher := pagination.FetcherFunc(func(ctx context.Context, cursor time.Time) ([]model.Article, error) {
		return repo.ListBefore(ctx, cursor, pageSize)
	})

	var (
		state   pagination.State
		reached []string
	)
	for i := 0; i <= count; i++ {
		next, res, err := pagination.Next(context.Background(), fetcher, state)
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		state = next
		if res.Kind == pagination.ResultEndOfFeed {
			break
		}
		for _, a := range res.Articles {
			reached = append(reached, a.Title)
		}
	}

	if len(reached) != count {
		t.Fatalf("reached %d articles, want %d: %v", len(reached), count, reached)
	}
	for i, title := range reached {
		if want := fmt.Sprintf("Undated %d", i); title != want {
			t.Errorf("reached[%d] = %q, want %q", i, title, want)
		}
	}
}

func TestImport_StoreErrorIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	feed := rssFeed(rssItem("A", "https://news.example.com/a", "x", "Thu, 02 May 2024 10:00:00 GMT"))
	if err := os.WriteFile(path, []byte(feed), 0o600); err != nil {
		t.Fatalf("failed to write feed: %v", err)
	}

	repo := newMemArticleRepo()
	storeErr := errors.New("disk full")
	repo.createFn = func(a *model.Article) error { return storeErr }
	rec := &mockImportRecorder{}
	im := newTestImporter(repo, rec, nil)

	_, err := im.Import(context.Background(), path, 0)
	if !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want wrapped %v", err, storeErr)
	}
	if len(rec.failures) != 1 || rec.failures[0] != "store" {
		t.Errorf("failures = %v", rec.failures)
	}
}

func TestImport_MissingFile(t *testing.T) {
	rec := &mockImportRecorder{}
	im := newTestImporter(newMemArticleRepo(), rec, nil)

	_, err := im.Import(context.Background(), filepath.Join(t.TempDir(), "nope.xml"), 0)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
	if len(rec.failures) != 1 || rec.failures[0] != "file_not_found" {
		t.Errorf("failures = %v", rec.failures)
	}
}

func TestImport_EmptySource(t *testing.T) {
	im := newTestImporter(newMemArticleRepo(), &mockImportRecorder{}, nil)

	_, err := im.Import(context.Background(), "  ", 0)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidURL {
		t.Errorf("err = %v, want INVALID_URL", err)
	}
}

func TestConvertGofeedItems_GUIDLinkFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	feed := rssFeed(`<item><title>G</title><guid>https://news.example.com/by-guid</guid><description>d</description></item>`)
	if err := os.WriteFile(path, []byte(feed), 0o600); err != nil {
		t.Fatalf("failed to write feed: %v", err)
	}

	repo := newMemArticleRepo()
	im := newTestImporter(repo, &mockImportRecorder{}, nil)
	if _, err := im.Import(context.Background(), path, 0); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if repo.get("https://news.example.com/by-guid") == nil {
		t.Error("expected article keyed by GUID URL")
	}
}
