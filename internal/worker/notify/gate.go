// Package notify はGitHub通知をSlackへ転送するポーリングサイクルを提供する。
// ゲート判定、通知取得、分類、送信、カーソル更新を1サイクルとして実行し、
// cronスケジュールで繰り返し起動する。
package notify

import (
	"fmt"
	"time"

	"github.com/hitoshi/ghnotify/internal/model"
)

// GatePolicy はサイクルの実行可否を決めるポリシー。デプロイごとに1つだけ有効になる。
type GatePolicy string

const (
	// GatePolicyInterval はGitHubが返したポーリング間隔を守るポリシー。
	GatePolicyInterval GatePolicy = "interval"
	// GatePolicyQuietHours は毎日の静穏時間帯にスキップするポリシー。
	GatePolicyQuietHours GatePolicy = "quiet-hours"
)

// GateDecision はゲートの判定結果。
type GateDecision struct {
	Skip   bool
	Reason string
}

// Gate はサイクルを実行するか判定する。判定は副作用を持たない。
type Gate interface {
	Check(now time.Time, state model.CursorState) GateDecision
	Policy() GatePolicy
}

// NewGate はポリシー名からGateを生成する。
func NewGate(policy GatePolicy, loc *time.Location, quietStartHour, quietEndHour int) (Gate, error) {
	switch policy {
	case GatePolicyInterval:
		return IntervalGate{}, nil
	case GatePolicyQuietHours:
		return NewQuietHoursGate(loc, quietStartHour, quietEndHour), nil
	default:
		return nil, fmt.Errorf("unknown gate policy %q", policy)
	}
}

// QuietHoursGate は設定タイムゾーンにおける当日の start時から end時までの時間帯にスキップする。
// 境界ちょうどの時刻はスキップしない。
type QuietHoursGate struct {
	loc       *time.Location
	startHour int
	endHour   int
}

// NewQuietHoursGate はQuietHoursGateを生成する。locがnilの場合はUTC。
func NewQuietHoursGate(loc *time.Location, startHour, endHour int) *QuietHoursGate {
	if loc == nil {
		loc = time.UTC
	}
	return &QuietHoursGate{loc: loc, startHour: startHour, endHour: endHour}
}

// Check はnowが静穏時間帯の内側（両端を含まない）であればスキップと判定する。
func (g *QuietHoursGate) Check(now time.Time, _ model.CursorState) GateDecision {
	local := now.In(g.loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, g.startHour, 0, 0, 0, g.loc)
	end := time.Date(y, m, d, g.endHour, 0, 0, 0, g.loc)

	if now.After(start) && now.Before(end) {
		return GateDecision{
			Skip:   true,
			Reason: fmt.Sprintf("quiet hours %02d:00-%02d:00 %s", g.startHour, g.endHour, g.loc),
		}
	}
	return GateDecision{}
}

// Policy はGatePolicyQuietHoursを返す。
func (g *QuietHoursGate) Policy() GatePolicy {
	return GatePolicyQuietHours
}

// IntervalGate はNextFetchAllowedより前であればスキップする。
type IntervalGate struct{}

// Check はnowがNextFetchAllowedより前であればスキップと判定する。
func (IntervalGate) Check(now time.Time, state model.CursorState) GateDecision {
	if now.Before(state.NextFetchAllowed) {
		return GateDecision{
			Skip:   true,
			Reason: "poll interval not elapsed until " + state.NextFetchAllowed.UTC().Format(time.RFC3339),
		}
	}
	return GateDecision{}
}

// Policy はGatePolicyIntervalを返す。
func (IntervalGate) Policy() GatePolicy {
	return GatePolicyInterval
}
