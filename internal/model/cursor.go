package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// カーソルストアのキー
const (
	CursorKeyLastFetched = "last-fetched"
	CursorKeyNextFetch   = "next-fetch"
)

// Epoch はカーソル未設定時の初期値（Unix時刻0）。
var Epoch = time.Unix(0, 0).UTC()

// CursorState はサイクル間で永続化されるポーリング境界。
// プロセス全体で1つだけ存在する。
type CursorState struct {
	// LastFetched は次回フェッチの下限時刻。フェッチを行ったサイクル間で単調非減少。
	LastFetched time.Time
	// NextFetchAllowed は次回フェッチを許可する最早時刻。
	NextFetchAllowed time.Time
}

// InitialCursorState は初回起動時のカーソル（両方ともEpoch）を返す。
func InitialCursorState() CursorState {
	return CursorState{
		LastFetched:      Epoch,
		NextFetchAllowed: Epoch,
	}
}

// FormatCursorValue は時刻を10進数のUnix秒文字列に変換する。
func FormatCursorValue(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// ParseCursorValue は10進数のUnix秒文字列を時刻に変換する。
func ParseCursorValue(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cursor value %q: %w", s, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}
