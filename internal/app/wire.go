package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/ghnotify/internal/config"
	"github.com/hitoshi/ghnotify/internal/database"
	"github.com/hitoshi/ghnotify/internal/github"
	"github.com/hitoshi/ghnotify/internal/metrics"
	"github.com/hitoshi/ghnotify/internal/repository"
	"github.com/hitoshi/ghnotify/internal/security"
	"github.com/hitoshi/ghnotify/internal/slack"
	"github.com/hitoshi/ghnotify/internal/worker/notify"
)

// components はworkerとonceで共有する依存関係。
type components struct {
	store    *repository.CursorStore
	cycle    *notify.Cycle
	registry *prometheus.Registry
	closers  []func() error
}

// Close は開いた接続を閉じる。
func (c *components) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildComponents は設定から全依存関係をワイヤリングする。
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}

	// 1. カーソルストア
	repo, closer, err := openCursorRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		c.closers = append(c.closers, closer)
	}
	c.store = repository.NewCursorStore(repo)

	// 2. メトリクス
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(c.registry)

	// 3. GitHubクライアント
	githubHTTP := &http.Client{Timeout: cfg.HTTPTimeout}
	ghClient := github.NewClient(githubHTTP, cfg.GitHubAPIURL, cfg.GitHubToken, logger)

	var resolver notify.SubjectResolver = ghClient
	if cfg.GitHubDetailAPI == config.DetailAPIGraphQL {
		resolver = github.NewGraphQLResolver(githubHTTP, cfg.GitHubGraphQLURL, cfg.GitHubToken)
	}

	// 4. Slack送信
	sinkHTTP, err := newSinkClient(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	sender := slack.NewWebhookSender(sinkHTTP, cfg.SlackWebhookURL, security.NewTextSanitizer())

	// 5. ゲート
	gate, err := notify.NewGate(notify.GatePolicy(cfg.GatePolicy), cfg.Location, cfg.QuietHoursStart, cfg.QuietHoursEnd)
	if err != nil {
		c.Close()
		return nil, err
	}

	// 6. サイクル
	c.cycle = notify.NewCycle(notify.CycleDeps{
		Store:      c.store,
		Gate:       gate,
		Fetcher:    notify.NewFetcher(ghClient, logger, cfg.DefaultPollInterval, cfg.IncludeRead, cfg.MaxPages),
		Classifier: notify.NewClassifier(resolver, logger),
		Renderer:   slack.NewRenderer(cfg.Location),
		Dispatcher: notify.NewDispatcher(sender, cfg.DispatchInterval),
		Recorder:   collector,
		Logger:     logger,
	})

	return c, nil
}

// openCursorRepository はCURSOR_STOREに応じたリポジトリを開く。
// 戻り値のcloserは閉じる必要がない場合nil。
func openCursorRepository(ctx context.Context, cfg *config.Config) (repository.CursorRepository, func() error, error) {
	switch cfg.CursorStore {
	case config.CursorStorePostgres, config.CursorStoreSQLite:
		driver, err := database.Driver(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if driver != cfg.CursorStore {
			return nil, nil, fmt.Errorf("CURSOR_STORE=%s does not match DATABASE_URL scheme (%s)", cfg.CursorStore, driver)
		}

		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established", slog.String("driver", driver))

		if driver == database.DriverSQLite {
			return repository.NewSQLiteCursorRepo(db), db.Close, nil
		}
		return repository.NewPostgresCursorRepo(db), db.Close, nil

	case config.CursorStoreDynamoDB:
		client, err := database.OpenDynamo(ctx, dynamoConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		return repository.NewDynamoCursorRepo(client, cfg.DynamoDBTable), nil, nil

	case config.CursorStoreMemory:
		slog.Warn("メモリ上のカーソルストアを使用します（再起動で状態が失われます）")
		return repository.NewMemoryCursorRepo(), nil, nil
	}

	return nil, nil, fmt.Errorf("unsupported cursor store %q", cfg.CursorStore)
}

func dynamoConfig(cfg *config.Config) database.DynamoConfig {
	return database.DynamoConfig{
		Region:          cfg.AWSRegion,
		EndpointURL:     cfg.AWSEndpointURL,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}
}

// newSinkClient はWebhook送信用のHTTPクライアントを生成する。
// WEBHOOK_ALLOW_PRIVATEが有効でない限り、SSRF対策済みのクライアントを使う。
func newSinkClient(cfg *config.Config) (*http.Client, error) {
	if cfg.WebhookAllowPrivate {
		slog.Warn("Webhook送信先のSSRF検証を無効化しています")
		return &http.Client{Timeout: cfg.HTTPTimeout}, nil
	}

	guard := security.NewSSRFGuard()
	if err := guard.ValidateURL(cfg.SlackWebhookURL); err != nil {
		return nil, fmt.Errorf("SLACK_WEBHOOK_URL rejected: %w", err)
	}
	return guard.NewSafeClient(cfg.HTTPTimeout), nil
}
