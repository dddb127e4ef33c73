// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/insighthub/internal/model"
)

// ErrDuplicateUsername はusernameのユニーク制約違反を表す。
// 存在確認とINSERTの間に同名ユーザーが登録された場合に返る。
var ErrDuplicateUsername = errors.New("username already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByUsername はusernameでユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// usernameが既に存在する場合はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error
}

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// ListBefore はcursorより厳密に古い記事をpublished_at降順で最大limit件取得する。
	// cursorがゼロ値の場合は最新の記事から取得する。
	ListBefore(ctx context.Context, cursor time.Time, limit int) ([]model.Article, error)

	// FindByLink はlinkで記事を検索する。見つからない場合はnilを返す。
	FindByLink(ctx context.Context, link string) (*model.Article, error)

	// Create は新規記事を作成する。
	Create(ctx context.Context, article *model.Article) error

	// Update は既存記事を上書き更新する。
	Update(ctx context.Context, article *model.Article) error

	// DeleteOlderThan はpublished_atがbeforeより古い記事を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
