// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 登録時に作成され、ログイン時に参照される。更新はしない。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
