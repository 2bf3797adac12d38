package notify

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/ghnotify/internal/github"
	"github.com/hitoshi/ghnotify/internal/model"
)

// DefaultPollInterval はX-Poll-Intervalヘッダーがない場合のポーリング間隔。
const DefaultPollInterval = 60 * time.Second

// NotificationLister は通知一覧を取得する。*github.Client が満たす。
type NotificationLister interface {
	ListNotifications(ctx context.Context, q github.NotificationQuery) (*github.NotificationPage, error)
}

// maxNarrowSteps はページ数の上限に達したときに取得範囲を狭めて再取得する回数の上限。
const maxNarrowSteps = 6

// FetchResult は通知取得の結果。
type FetchResult struct {
	// Notifications はUpdatedAtの昇順に並べた通知。取得失敗時は空。
	Notifications []model.Notification
	// Until は実際に取得した範囲の終端。範囲を狭めた場合はbeforeより前になる。
	// ゼロ値の場合はbeforeとして扱う。
	Until time.Time
	// PollInterval は次回ポーリングまでの最小間隔。常に正の値。
	PollInterval time.Duration
	NotModified  bool
	// Truncated は範囲を狭めてもページ数の上限に収まらず、古い通知を取りこぼしたことを表す。
	Truncated bool
	// Err は取得失敗の原因。失敗しても結果は空として扱い、サイクルは継続する。
	Err error
}

// Fetcher は [since, before) の範囲の通知を取得する。
type Fetcher struct {
	lister              NotificationLister
	logger              *slog.Logger
	defaultPollInterval time.Duration
	includeRead         bool
	maxPages            int
}

// NewFetcher はFetcherを生成する。defaultPollIntervalが0以下の場合はDefaultPollIntervalを使用する。
func NewFetcher(lister NotificationLister, logger *slog.Logger, defaultPollInterval time.Duration, includeRead bool, maxPages int) *Fetcher {
	if defaultPollInterval <= 0 {
		defaultPollInterval = DefaultPollInterval
	}
	return &Fetcher{
		lister:              lister,
		logger:              logger,
		defaultPollInterval: defaultPollInterval,
		includeRead:         includeRead,
		maxPages:            maxPages,
	}
}

// Fetch は通知一覧を取得して昇順に並べる。
// 通信エラーや上流のエラーはログに記録し、空の結果として返す（この範囲の通知は取りこぼす）。
//
// GitHubは新しい順に返すため、ページ数の上限に達すると古い通知が残る。その場合は取得できた
// 最古の通知までに範囲を狭めて再取得し、範囲内を漏れなく取得できた時点の終端をUntilとして返す。
// 残りは次回以降のサイクルで取得する。
func (f *Fetcher) Fetch(ctx context.Context, since, before time.Time) FetchResult {
	until := before
	for step := 0; ; step++ {
		page, err := f.lister.ListNotifications(ctx, github.NotificationQuery{
			Since:    since,
			Before:   until,
			All:      f.includeRead,
			MaxPages: f.maxPages,
		})
		if err != nil {
			f.logger.Error("通知一覧の取得に失敗しました",
				slog.Time("since", since),
				slog.Time("before", until),
				slog.String("error", err.Error()),
			)
			return FetchResult{
				Notifications: []model.Notification{},
				Until:         until,
				PollInterval:  f.defaultPollInterval,
				Err:           err,
			}
		}

		result := FetchResult{
			Notifications: SortNotifications(page.Notifications),
			Until:         until,
			PollInterval:  f.pollInterval(page),
			NotModified:   page.NotModified,
		}
		if !page.Truncated {
			return result
		}

		next, ok := narrowUntil(since, until, result.Notifications)
		if !ok || step+1 >= maxNarrowSteps {
			result.Truncated = true
			f.logger.Error("ページ数の上限に収まらないため古い通知を取りこぼします",
				slog.Time("since", since),
				slog.Time("before", until),
				slog.Int("fetched", len(result.Notifications)),
			)
			return result
		}

		f.logger.Warn("ページ数の上限に達したため取得範囲を狭めて再取得します",
			slog.Time("since", since),
			slog.Time("before", until),
			slog.Time("next_before", next),
		)
		until = next
	}
}

func (f *Fetcher) pollInterval(page *github.NotificationPage) time.Duration {
	if page.PollInterval <= 0 {
		return f.defaultPollInterval
	}
	return page.PollInterval
}

// narrowUntil は打ち切られた取得結果から次に試す範囲の終端を決める。
// 取得できた最古の通知の次の秒を終端とし、それが範囲を狭めない場合は中間点を使う。
// sortedは昇順に並んでいること。
func narrowUntil(since, until time.Time, sorted []model.Notification) (time.Time, bool) {
	if len(sorted) > 0 {
		next := sorted[0].UpdatedAt.Truncate(time.Second).Add(time.Second)
		if next.After(since) && next.Before(until) {
			return next, true
		}
	}

	mid := since.Add(until.Sub(since) / 2).Truncate(time.Second)
	if !mid.After(since) {
		return time.Time{}, false
	}
	return mid, true
}

// SortNotifications はUpdatedAtの昇順に並べた新しいスライスを返す。
// 同時刻の通知は元の順序を保つ。
func SortNotifications(ns []model.Notification) []model.Notification {
	sorted := make([]model.Notification, len(ns))
	copy(sorted, ns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
	})
	return sorted
}
