// Package handler はワーカーの運用HTTPエンドポイント（ヘルスチェックとメトリクス）を提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ghnotify/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker HealthChecker
	// MetricsHandler は /metrics で公開するハンドラー。nilの場合はルートを登録しない。
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// NewRouter は運用エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	healthHandler := NewHealthHandler(deps.HealthChecker, deps.Logger)
	r.Get("/health", healthHandler.Check)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	return r
}
