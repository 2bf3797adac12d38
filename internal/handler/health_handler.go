package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/ghnotify/internal/middleware"
)

// healthCheckTimeout はカーソルストアへの疎通確認の期限。
const healthCheckTimeout = 3 * time.Second

// HealthChecker はカーソルストアの疎通確認を行う。
// *repository.CursorStore が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
	logger  *slog.Logger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		logger:  logger,
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

// Check はカーソルストアに接続できれば200、できなければ503を返す。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.checker.PingContext(ctx); err != nil {
		h.logger.Warn("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "カーソルストアに接続できません。")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
}
