package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/ghnotify/internal/model"
)

// MemoryCursorRepo はプロセス内メモリにカーソルを保持するリポジトリ。
// 再起動で消えるため、開発時と単発実行（once）向け。
type MemoryCursorRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryCursorRepo はMemoryCursorRepoを生成する。
func NewMemoryCursorRepo() *MemoryCursorRepo {
	return &MemoryCursorRepo{values: make(map[string]string)}
}

// Get は指定キーの時刻を取得する。
func (r *MemoryCursorRepo) Get(_ context.Context, key string) (time.Time, bool, error) {
	r.mu.RLock()
	raw, ok := r.values[key]
	r.mu.RUnlock()

	if !ok {
		return time.Time{}, false, nil
	}
	t, err := model.ParseCursorValue(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("カーソル値が不正です: %w", err)
	}
	return t, true, nil
}

// Put は指定キーの時刻を保存する。
func (r *MemoryCursorRepo) Put(ctx context.Context, key string, t time.Time) error {
	return r.PutMany(ctx, map[string]time.Time{key: t})
}

// PutMany は複数キーをロック内でまとめて保存する。
func (r *MemoryCursorRepo) PutMany(_ context.Context, values map[string]time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range values {
		r.values[k] = model.FormatCursorValue(v)
	}
	return nil
}

// PingContext は常に成功する。
func (r *MemoryCursorRepo) PingContext(_ context.Context) error {
	return nil
}
