// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"
)

// CursorRepository はカーソル値（キーごとの時刻）の永続化インターフェース。
// 値は10進数のUnix秒文字列として保存する。
type CursorRepository interface {
	// Get は指定キーの時刻を取得する。未設定の場合はok=falseを返し、エラーにはしない。
	Get(ctx context.Context, key string) (t time.Time, ok bool, err error)

	// Put は指定キーの時刻を保存する。
	Put(ctx context.Context, key string, t time.Time) error

	// PutMany は複数キーをまとめて保存する。全キーが保存されるか、どれも保存されないかのどちらか。
	PutMany(ctx context.Context, values map[string]time.Time) error

	// PingContext はストアへの疎通を確認する。ヘルスチェックで使用する。
	PingContext(ctx context.Context) error
}
