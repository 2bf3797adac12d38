package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/ghnotify/internal/model"
)

// CycleRunner はサイクルを1回実行する。*Cycle が満たす。
type CycleRunner interface {
	RunOnce(ctx context.Context) (model.CycleReport, error)
}

// scheduleParser は5フィールドのcron式と @every などの記述子を受け付ける。
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule はcron式を検証する。
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Scheduler はcronスケジュールでサイクルを起動する。
// 前回のサイクルが実行中の場合、そのトリガーはスキップする。ジョブ内のpanicは回復してログに記録する。
type Scheduler struct {
	runner  CycleRunner
	spec    string
	loc     *time.Location
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler はSchedulerを生成する。
// timeoutは1サイクルの期限で、0以下の場合は期限を設けない。
func NewScheduler(runner CycleRunner, spec string, loc *time.Location, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner:  runner,
		spec:    spec,
		loc:     loc,
		timeout: timeout,
		logger:  logger,
	}
}

// Start はスケジューラを起動し、ctxがキャンセルされるまでブロックする。
// 起動直後に1回サイクルを実行する。停止時は実行中のサイクルの終了を待つ。
func (s *Scheduler) Start(ctx context.Context) error {
	sched, err := ParseSchedule(s.spec)
	if err != nil {
		return err
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
	)

	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { s.runCycle(ctx) }))
	c.Schedule(sched, job)

	s.logger.Info("通知スケジューラを開始しました",
		slog.String("schedule", s.spec),
		slog.String("timezone", s.loc.String()),
		slog.Duration("cycle_timeout", s.timeout),
	)

	c.Start()

	// 起動直後の実行はcronの管理外のため個別に終了を待つ
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Run()
	}()

	<-ctx.Done()

	<-c.Stop().Done()
	wg.Wait()
	s.logger.Info("通知スケジューラを停止しました")
	return nil
}

// runCycle はサイクル期限付きでサイクルを1回実行し、失敗をログに記録する。
func (s *Scheduler) runCycle(parent context.Context) {
	if parent.Err() != nil {
		return
	}

	ctx := parent
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, s.timeout)
		defer cancel()
	}

	report, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.logger.Error("サイクルの実行に失敗しました",
			slog.String("cycle_id", report.CycleID),
			slog.String("error", err.Error()),
		)
	}
}

// cronLogger はcron.Loggerをslogに橋渡しする。
// cronの定常ログ（起動・待機・実行）はDebug、スキップはWarnとして出力する。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.logger.Warn("前回のサイクルが実行中のためトリガーをスキップしました", keysAndValues...)
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
