// Package model はドメインモデルを定義する。
package model

import "time"

// Article はニュース記事を表す。
// 取得後は不変として扱い、クライアントは読み取り専用のコピーを保持する。
type Article struct {
	ID        string
	Title     string
	Summary   string // プレーンテキスト化済み
	Link      string
	Published time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ParsedArticle はフィードパーサーから取得した未保存の記事データを表す。
// インポーターがフィードをパースした後、記事ストアへのUPSERT前に使用される。
type ParsedArticle struct {
	Title     string
	Summary   string     // 未サニタイズ
	Link      string
	Published *time.Time // フィードに日時がない場合はnil
}
