package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hitoshi/ghnotify/internal/model"
)

const testCursorSchema = `CREATE TABLE cursors (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// newTestSQLiteDB はスキーマ作成済みのインメモリSQLiteを返す。
func newTestSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sqliteのオープンに失敗: %v", err)
	}
	// インメモリDBは接続ごとに別物になるため1本に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testCursorSchema); err != nil {
		t.Fatalf("スキーマ作成に失敗: %v", err)
	}
	return db
}

// SQLCursorRepoはCursorRepositoryインターフェースを満たすことを検証
func TestSQLCursorRepo_ImplementsInterface(t *testing.T) {
	var _ CursorRepository = (*SQLCursorRepo)(nil)
}

func TestNewPostgresCursorRepo_Initializes(t *testing.T) {
	repo := NewPostgresCursorRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
	if repo.dialect != DialectPostgres {
		t.Errorf("dialect = %v, want DialectPostgres", repo.dialect)
	}
}

// 未設定のキーはok=falseでエラーにならないことを検証
func TestSQLCursorRepo_Get_Missing(t *testing.T) {
	repo := NewSQLiteCursorRepo(newTestSQLiteDB(t))

	_, ok, err := repo.Get(context.Background(), model.CursorKeyLastFetched)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if ok {
		t.Error("未設定のキーで ok=true が返された")
	}
}

// PutManyで保存した値をGetで読み戻せることを検証
func TestSQLCursorRepo_PutMany_ThenGet(t *testing.T) {
	ctx := context.Background()
	db := newTestSQLiteDB(t)
	repo := NewSQLiteCursorRepo(db)

	last := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	next := last.Add(60 * time.Second)

	if err := repo.PutMany(ctx, map[string]time.Time{
		model.CursorKeyLastFetched: last,
		model.CursorKeyNextFetch:   next,
	}); err != nil {
		t.Fatalf("PutMany がエラーを返した: %v", err)
	}

	got, ok, err := repo.Get(ctx, model.CursorKeyLastFetched)
	if err != nil || !ok {
		t.Fatalf("Get(last-fetched) = _, %v, %v", ok, err)
	}
	if !got.Equal(last) {
		t.Errorf("last-fetched = %v, want %v", got, last)
	}

	got, ok, err = repo.Get(ctx, model.CursorKeyNextFetch)
	if err != nil || !ok {
		t.Fatalf("Get(next-fetch) = _, %v, %v", ok, err)
	}
	if !got.Equal(next) {
		t.Errorf("next-fetch = %v, want %v", got, next)
	}

	// 保存形式は10進数のUnix秒
	var raw string
	if err := db.QueryRow(`SELECT value FROM cursors WHERE key = ?`, model.CursorKeyLastFetched).Scan(&raw); err != nil {
		t.Fatalf("生値の取得に失敗: %v", err)
	}
	if raw != "1714564800" {
		t.Errorf("保存値 = %q, want %q", raw, "1714564800")
	}
}

// 同じキーへのPutは上書きされることを検証
func TestSQLCursorRepo_Put_Overwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteCursorRepo(newTestSQLiteDB(t))

	first := time.Unix(1000, 0).UTC()
	second := time.Unix(2000, 0).UTC()

	if err := repo.Put(ctx, model.CursorKeyLastFetched, first); err != nil {
		t.Fatalf("Put(1) がエラーを返した: %v", err)
	}
	if err := repo.Put(ctx, model.CursorKeyLastFetched, second); err != nil {
		t.Fatalf("Put(2) がエラーを返した: %v", err)
	}

	got, _, err := repo.Get(ctx, model.CursorKeyLastFetched)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if !got.Equal(second) {
		t.Errorf("got %v, want %v", got, second)
	}
}

// 不正な保存値はエラーになることを検証
func TestSQLCursorRepo_Get_CorruptValue(t *testing.T) {
	db := newTestSQLiteDB(t)
	if _, err := db.Exec(`INSERT INTO cursors (key, value) VALUES (?, ?)`, model.CursorKeyNextFetch, "soon"); err != nil {
		t.Fatalf("テストデータの挿入に失敗: %v", err)
	}

	repo := NewSQLiteCursorRepo(db)
	if _, _, err := repo.Get(context.Background(), model.CursorKeyNextFetch); err == nil {
		t.Fatal("不正な値に対してエラーを返すべき")
	}
}

// テーブルがない場合、PutManyは何も書き込まずにエラーを返すことを検証
func TestSQLCursorRepo_PutMany_ErrorWithoutTable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sqliteのオープンに失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	repo := NewSQLiteCursorRepo(db)
	err = repo.PutMany(context.Background(), map[string]time.Time{
		model.CursorKeyLastFetched: time.Unix(1, 0),
	})
	if err == nil {
		t.Fatal("テーブルが存在しない場合はエラーを返すべき")
	}
}

func TestSQLCursorRepo_Rebind(t *testing.T) {
	pg := NewPostgresCursorRepo(nil)
	got := pg.rebind(`INSERT INTO cursors (key, value, updated_at) VALUES (?, ?, ?)`)
	want := `INSERT INTO cursors (key, value, updated_at) VALUES ($1, $2, $3)`
	if got != want {
		t.Errorf("rebind(postgres) = %q, want %q", got, want)
	}

	lite := NewSQLiteCursorRepo(nil)
	q := `SELECT value FROM cursors WHERE key = ?`
	if got := lite.rebind(q); got != q {
		t.Errorf("rebind(sqlite) = %q, want unchanged", got)
	}
}
