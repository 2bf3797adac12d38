package repository

import (
	"context"
	"time"

	"github.com/hitoshi/ghnotify/internal/model"
)

// CursorStore はCursorRepositoryの上にカーソル状態の読み書きを提供する。
// 未設定のキーはEpochとして扱い、書き込みは2つのキーを1回の原子的な操作で行う。
type CursorStore struct {
	repo CursorRepository
}

// NewCursorStore はCursorStoreを生成する。
func NewCursorStore(repo CursorRepository) *CursorStore {
	return &CursorStore{repo: repo}
}

// Load はカーソル状態を読み込む。
// 読み込み失敗はサイクルにとって致命的なため、CursorStoreErrorとして返す。
func (s *CursorStore) Load(ctx context.Context) (model.CursorState, error) {
	state := model.InitialCursorState()

	last, ok, err := s.repo.Get(ctx, model.CursorKeyLastFetched)
	if err != nil {
		return model.CursorState{}, &model.CursorStoreError{Op: "load", Key: model.CursorKeyLastFetched, Err: err}
	}
	if ok {
		state.LastFetched = last
	}

	next, ok, err := s.repo.Get(ctx, model.CursorKeyNextFetch)
	if err != nil {
		return model.CursorState{}, &model.CursorStoreError{Op: "load", Key: model.CursorKeyNextFetch, Err: err}
	}
	if ok {
		state.NextFetchAllowed = next
	}

	return state, nil
}

// Save はカーソル状態を保存する。
func (s *CursorStore) Save(ctx context.Context, state model.CursorState) error {
	err := s.repo.PutMany(ctx, map[string]time.Time{
		model.CursorKeyLastFetched: state.LastFetched,
		model.CursorKeyNextFetch:   state.NextFetchAllowed,
	})
	if err != nil {
		return &model.CursorStoreError{Op: "save", Err: err}
	}
	return nil
}

// PingContext は下位のリポジトリへの疎通を確認する。
func (s *CursorStore) PingContext(ctx context.Context) error {
	return s.repo.PingContext(ctx)
}
