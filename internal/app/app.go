// Package app はコマンドの解析と各起動モードのワイヤリングを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/ghnotify/internal/config"
	"github.com/hitoshi/ghnotify/internal/database"
	"github.com/hitoshi/ghnotify/internal/handler"
	"github.com/hitoshi/ghnotify/internal/logger"
	"github.com/hitoshi/ghnotify/internal/metrics"
	"github.com/hitoshi/ghnotify/internal/worker/notify"
)

// shutdownTimeout は運用HTTPサーバーのグレースフルシャットダウンの期限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再初期化する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn("LOG_LEVELが不正なためinfoを使用します", slog.String("error", err.Error()))
	}
	log = logger.SetupDefault(w, level)

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// SIGINTまたはSIGTERMを受信するとキャンセルされるコンテキストでRunContextを呼ぶ。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return RunContext(ctx, w, args)
}

// RunContext はコマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// ctxがキャンセルされるとworkerモードはシャットダウンする。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("cursor_store", cfg.CursorStore),
		slog.String("gate_policy", cfg.GatePolicy),
		slog.String("detail_api", cfg.GitHubDetailAPI),
	)

	switch cmd {
	case CommandOnce:
		return runOnce(ctx, cfg, log)
	case CommandMigrate:
		return runMigrate(ctx, cfg, log)
	default:
		return runWorker(ctx, cfg, log)
	}
}

// runWorker はワーカーモードで起動する。
// 運用HTTPサーバー（/health, /metrics）とcronスケジューラを起動し、ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	comp, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comp.Close()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:  comp.store,
		MetricsHandler: metrics.Handler(comp.registry),
		Logger:         log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// サーバーの起動失敗でもスケジューラを止める
	schedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err, ok := <-serverErr; ok {
			log.Error("server listen error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	scheduler := notify.NewScheduler(comp.cycle, cfg.Schedule, cfg.Location, cfg.CycleTimeout, log)
	schedErr := scheduler.Start(schedCtx)

	log.Info("shutting down ops server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if schedErr != nil {
		return schedErr
	}
	log.Info("worker stopped gracefully")
	return nil
}

// runOnce はサイクルを1回実行して終了する。
// カーソルの読み書きに失敗した場合やサイクルが中断された場合はエラーを返す。
func runOnce(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	comp, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comp.Close()

	cycleCtx, cancel := context.WithTimeout(ctx, cfg.CycleTimeout)
	defer cancel()

	report, err := comp.cycle.RunOnce(cycleCtx)
	if err != nil {
		return fmt.Errorf("cycle %s failed: %w", report.CycleID, err)
	}

	log.Info("cycle finished",
		slog.String("cycle_id", report.CycleID),
		slog.Bool("skipped", report.Skipped),
		slog.Int("delivered", report.Delivered),
		slog.Int("delivery_failed", report.DeliveryFailed),
	)
	return nil
}

// runMigrate はカーソルストアのスキーマを作成する。
// SQLはすべての未適用マイグレーションを順番に適用し、DynamoDBはテーブルがなければ作成する。
func runMigrate(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	switch cfg.CursorStore {
	case config.CursorStorePostgres, config.CursorStoreSQLite:
		log.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Info("database migrations completed successfully")

	case config.CursorStoreDynamoDB:
		client, err := database.OpenDynamo(ctx, dynamoConfig(cfg))
		if err != nil {
			return err
		}
		if err := database.EnsureDynamoTable(ctx, client, cfg.DynamoDBTable); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

	case config.CursorStoreMemory:
		log.Info("memory cursor store needs no migration")
	}

	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
