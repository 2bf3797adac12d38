package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ghnotify/internal/model"
)

// Dialect はSQLのプレースホルダ方言。
type Dialect int

const (
	// DialectPostgres は $1, $2 ... 形式。
	DialectPostgres Dialect = iota
	// DialectSQLite は ? 形式。
	DialectSQLite
)

// SQLCursorRepo はcursorsテーブルを使用したカーソルリポジトリ。
// PostgreSQLとSQLiteで同じスキーマ（migrations/）を使用する。
type SQLCursorRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewPostgresCursorRepo はPostgreSQL用のSQLCursorRepoを生成する。
func NewPostgresCursorRepo(db *sql.DB) *SQLCursorRepo {
	return &SQLCursorRepo{db: db, dialect: DialectPostgres}
}

// NewSQLiteCursorRepo はSQLite用のSQLCursorRepoを生成する。
func NewSQLiteCursorRepo(db *sql.DB) *SQLCursorRepo {
	return &SQLCursorRepo{db: db, dialect: DialectSQLite}
}

// Get は指定キーの時刻を取得する。見つからない場合はok=falseを返す。
func (r *SQLCursorRepo) Get(ctx context.Context, key string) (time.Time, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT value FROM cursors WHERE key = ?`),
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("カーソルの取得に失敗しました: %w", err)
	}

	t, err := model.ParseCursorValue(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("カーソル値が不正です: %w", err)
	}
	return t, true, nil
}

// Put は指定キーの時刻を保存する。
func (r *SQLCursorRepo) Put(ctx context.Context, key string, t time.Time) error {
	return r.PutMany(ctx, map[string]time.Time{key: t})
}

// PutMany は複数キーを1トランザクションでUPSERTする。
func (r *SQLCursorRepo) PutMany(ctx context.Context, values map[string]time.Time) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	query := r.rebind(
		`INSERT INTO cursors (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
	)

	// キー順を固定してロック順序を安定させる
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, query, key, model.FormatCursorValue(values[key]), now); err != nil {
			return fmt.Errorf("カーソル %q の保存に失敗しました: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// PingContext はデータベースへの疎通を確認する。
func (r *SQLCursorRepo) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// rebind は ? プレースホルダを方言に合わせて置き換える。
func (r *SQLCursorRepo) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
