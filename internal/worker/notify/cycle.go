package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ghnotify/internal/metrics"
	"github.com/hitoshi/ghnotify/internal/model"
	"github.com/hitoshi/ghnotify/internal/slack"
)

// CursorStore はカーソル状態の読み書き。*repository.CursorStore が満たす。
type CursorStore interface {
	Load(ctx context.Context) (model.CursorState, error)
	Save(ctx context.Context, state model.CursorState) error
}

// NotificationFetcher は範囲内の通知を昇順で取得する。*Fetcher が満たす。
type NotificationFetcher interface {
	Fetch(ctx context.Context, since, before time.Time) FetchResult
}

// ItemClassifier は通知1件を分類する。*Classifier が満たす。
type ItemClassifier interface {
	Classify(ctx context.Context, n model.Notification) model.ItemResult
}

// MessageRenderer は分類結果をメッセージに変換する。*slack.Renderer が満たす。
type MessageRenderer interface {
	Render(item model.ItemResult) slack.Message
}

// MessageDeliverer はメッセージを送信する。*Dispatcher が満たす。
type MessageDeliverer interface {
	Deliver(ctx context.Context, msg slack.Message) error
}

// Recorder はサイクルのメトリクスを記録する。*metrics.Collector が満たす。
type Recorder interface {
	RecordCycle(result string, duration time.Duration)
	RecordFetch(result string, count int)
	RecordLookupFailure()
	RecordDelivery(ok bool)
	RecordCursor(lastFetched time.Time)
}

// CycleDeps はCycleの依存コンポーネント。Recorderのみ省略可能。
type CycleDeps struct {
	Store      CursorStore
	Gate       Gate
	Fetcher    NotificationFetcher
	Classifier ItemClassifier
	Renderer   MessageRenderer
	Dispatcher MessageDeliverer
	Recorder   Recorder
	Logger     *slog.Logger
}

// Cycle は1回のポーリングサイクルを実行する。
// 同時に複数のサイクルを実行しないこと（カーソルの比較更新は行わない）。
type Cycle struct {
	store      CursorStore
	gate       Gate
	fetcher    NotificationFetcher
	classifier ItemClassifier
	renderer   MessageRenderer
	dispatcher MessageDeliverer
	recorder   Recorder
	logger     *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewCycle はCycleを生成する。
func NewCycle(deps CycleDeps) *Cycle {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Cycle{
		store:      deps.Store,
		gate:       deps.Gate,
		fetcher:    deps.Fetcher,
		classifier: deps.Classifier,
		renderer:   deps.Renderer,
		dispatcher: deps.Dispatcher,
		recorder:   recorder,
		logger:     deps.Logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// partialSaveTimeout は中断したサイクルが途中までのカーソルを保存する期限。
const partialSaveTimeout = 10 * time.Second

// RunOnce はサイクルを1回実行する。
//
// 手順: カーソル読み込み → ゲート判定 → 通知取得 → 1件ずつ分類・描画・送信 → カーソル保存。
// カーソルは全件の送信処理が終わった後に保存する。
// 取得失敗・詳細取得失敗・送信失敗はサイクルを止めない。カーソルの読み書き失敗と
// ctxのキャンセル・送信期限切れのみエラーを返す。中断時は最後に送信を試みた通知の
// UpdatedAtまでカーソルを進めるため、次回はその通知から再送する。
func (c *Cycle) RunOnce(ctx context.Context) (model.CycleReport, error) {
	start := c.now()
	report := model.CycleReport{
		CycleID:   c.newID(),
		StartedAt: start,
	}
	logger := c.logger.With(slog.String("cycle_id", report.CycleID))

	state, err := c.store.Load(ctx)
	if err != nil {
		c.recorder.RecordCycle(metrics.CycleFailed, time.Since(start))
		return report, fmt.Errorf("カーソルの読み込みに失敗: %w", err)
	}
	report.Cursor = state

	if decision := c.gate.Check(start, state); decision.Skip {
		report.Skipped = true
		report.SkipReason = decision.Reason
		logger.Info("サイクルをスキップしました",
			slog.String("policy", string(c.gate.Policy())),
			slog.String("reason", decision.Reason),
		)
		c.recorder.RecordCycle(metrics.CycleSkipped, 0)
		return report, nil
	}

	fetched := c.fetcher.Fetch(ctx, state.LastFetched, start)
	until := fetched.Until
	if until.IsZero() {
		until = start
	}
	report.Fetched = len(fetched.Notifications)
	report.NotModified = fetched.NotModified
	report.PollInterval = fetched.PollInterval
	c.recorder.RecordFetch(fetchResultLabel(fetched), report.Fetched)

	logger.Info("通知を取得しました",
		slog.Time("since", state.LastFetched),
		slog.Time("until", until),
		slog.Int("count", report.Fetched),
		slog.Bool("truncated", fetched.Truncated),
		slog.Bool("not_modified", fetched.NotModified),
		slog.Duration("poll_interval", fetched.PollInterval),
	)

	// attempted は送信を試みた最後の通知。中断時のカーソルの位置になる。
	var attempted *model.Notification
	for i, n := range fetched.Notifications {
		if err := ctx.Err(); err != nil {
			return c.abort(ctx, logger, report, state, attempted, fetched.PollInterval, err)
		}

		item := c.classifier.Classify(ctx, n)
		if item.Failed() {
			report.LookupFailures++
			c.recorder.RecordLookupFailure()
		}

		msg := c.renderer.Render(item)
		if err := c.dispatcher.Deliver(ctx, msg); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrDeliveryDeadline) {
				return c.abort(ctx, logger, report, state, attempted, fetched.PollInterval, err)
			}
			attempted = &fetched.Notifications[i]
			report.DeliveryFailed++
			c.recorder.RecordDelivery(false)
			logger.Error("Slackへの送信に失敗しました",
				slog.String("notification_id", n.ID),
				slog.String("classification", string(item.Classification)),
				slog.String("error", err.Error()),
			)
			continue
		}
		attempted = &fetched.Notifications[i]
		report.Delivered++
		c.recorder.RecordDelivery(true)
	}

	// 取得中のキャンセルは空の結果として返るため、ここで検出する
	if err := ctx.Err(); err != nil {
		return c.abort(ctx, logger, report, state, attempted, fetched.PollInterval, err)
	}

	next := NextCursor(state, start, until, fetched.PollInterval, c.gate.Policy())
	if err := c.store.Save(ctx, next); err != nil {
		c.recorder.RecordCycle(metrics.CycleFailed, time.Since(start))
		return report, fmt.Errorf("カーソルの保存に失敗: %w", err)
	}
	report.Cursor = next
	c.recorder.RecordCursor(next.LastFetched)
	c.recorder.RecordCycle(metrics.CycleCompleted, time.Since(start))

	logger.Info("サイクルが完了しました",
		slog.Int("fetched", report.Fetched),
		slog.Int("delivered", report.Delivered),
		slog.Int("delivery_failed", report.DeliveryFailed),
		slog.Int("lookup_failures", report.LookupFailures),
		slog.Time("last_fetched", next.LastFetched),
		slog.Time("next_fetch_allowed", next.NextFetchAllowed),
	)

	return report, nil
}

// abort はサイクルを中断する。
// 送信を試みた通知がある場合は、その最後の通知のUpdatedAtまでカーソルを進めて保存する。
// sinceは境界を含むため、その通知は次回もう一度送信される。
func (c *Cycle) abort(
	ctx context.Context,
	logger *slog.Logger,
	report model.CycleReport,
	state model.CursorState,
	attempted *model.Notification,
	pollInterval time.Duration,
	err error,
) (model.CycleReport, error) {
	logger.Warn("サイクルを中断しました",
		slog.Int("delivered", report.Delivered),
		slog.Int("remaining", report.Fetched-report.Delivered-report.DeliveryFailed),
		slog.String("error", err.Error()),
	)
	c.recorder.RecordCycle(metrics.CycleFailed, time.Since(report.StartedAt))

	if attempted == nil || !attempted.UpdatedAt.After(state.LastFetched) {
		return report, fmt.Errorf("サイクルが中断されました: %w", err)
	}

	// ctxは既に終了しているため、保存には切り離したctxを使う
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), partialSaveTimeout)
	defer cancel()

	next := NextCursor(state, report.StartedAt, attempted.UpdatedAt, pollInterval, c.gate.Policy())
	if saveErr := c.store.Save(saveCtx, next); saveErr != nil {
		logger.Error("途中までのカーソルの保存に失敗しました", slog.String("error", saveErr.Error()))
		return report, fmt.Errorf("サイクルが中断されました: %w", err)
	}
	report.Cursor = next
	c.recorder.RecordCursor(next.LastFetched)
	logger.Info("途中までのカーソルを保存しました",
		slog.Time("last_fetched", next.LastFetched),
		slog.Time("next_fetch_allowed", next.NextFetchAllowed),
	)

	return report, fmt.Errorf("サイクルが中断されました: %w", err)
}

// NextCursor は処理を終えたサイクルのカーソルを計算する。
// LastFetchedはuntilまで進め、単調非減少を保つ。NextFetchAllowedはintervalポリシーの場合のみ
// start+pollIntervalに更新する。
func NextCursor(prev model.CursorState, start, until time.Time, pollInterval time.Duration, policy GatePolicy) model.CursorState {
	next := prev

	if until.After(prev.LastFetched) {
		next.LastFetched = until
	}
	if policy == GatePolicyInterval {
		next.NextFetchAllowed = start.Add(pollInterval)
	}

	return next
}

func fetchResultLabel(r FetchResult) string {
	switch {
	case r.Err != nil:
		return metrics.FetchError
	case r.NotModified:
		return metrics.FetchNotModified
	default:
		return metrics.FetchOK
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(string, time.Duration) {}
func (nopRecorder) RecordFetch(string, int)          {}
func (nopRecorder) RecordLookupFailure()             {}
func (nopRecorder) RecordDelivery(bool)              {}
func (nopRecorder) RecordCursor(time.Time)           {}
