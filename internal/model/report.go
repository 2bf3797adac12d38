package model

import "time"

// ItemResult は通知1件の分類結果。
// 詳細取得の成否に関わらず必ず生成され、レンダラーはこれだけを入力とする。
type ItemResult struct {
	Notification   Notification
	Classification Classification
	Link           Link
	// Detail は詳細取得に成功した場合のみ非nil。
	Detail *SubjectDetail
	// Err は詳細取得の失敗理由。成功時と未対応種別の場合はnil。
	Err        error
	DebugNotes []string
}

// Failed は詳細取得に失敗したかを返す。
func (r ItemResult) Failed() bool {
	return r.Err != nil
}

// CycleReport は1サイクルの実行結果。
type CycleReport struct {
	CycleID    string
	StartedAt  time.Time
	Skipped    bool
	SkipReason string

	Fetched        int
	NotModified    bool
	LookupFailures int
	Delivered      int
	DeliveryFailed int

	PollInterval time.Duration
	// Cursor はサイクル終了時点のカーソル。スキップ時は読み込んだ値のまま。
	Cursor CursorState
}
