package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/insighthub/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

const articleColumns = `id, title, summary, link, published_at, created_at, updated_at`

// ListBefore はcursorより古い記事をpublished_at降順で取得する。
// published_atが同じ記事はidの降順で並べ、ページ内の順序を安定させる。
func (r *PostgresArticleRepo) ListBefore(ctx context.Context, cursor time.Time, limit int) ([]model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	var args []interface{}
	argIndex := 1

	if !cursor.IsZero() {
		query += fmt.Sprintf(" WHERE published_at < $%d", argIndex)
		args = append(args, cursor)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY published_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	articles := make([]model.Article, 0, limit)
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Summary, &a.Link,
			&a.Published, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}

	return articles, nil
}

// FindByLink はlinkで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByLink(ctx context.Context, link string) (*model.Article, error) {
	a := &model.Article{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE link = $1`,
		link,
	).Scan(&a.ID, &a.Title, &a.Summary, &a.Link, &a.Published, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link による記事の検索に失敗しました: %w", err)
	}
	return a, nil
}

// Create は新規記事を作成する。
func (r *PostgresArticleRepo) Create(ctx context.Context, a *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, summary, link, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Title, a.Summary, a.Link, a.Published, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存記事を上書き更新する。履歴は保持しない。
func (r *PostgresArticleRepo) Update(ctx context.Context, a *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET title = $2, summary = $3, link = $4, published_at = $5, updated_at = $6
		 WHERE id = $1`,
		a.ID, a.Title, a.Summary, a.Link, a.Published, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteOlderThan はpublished_atがbeforeより古い記事を削除する。
func (r *PostgresArticleRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE published_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("古い記事の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
