package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger は永続化層の疎通確認を行う。
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler は死活監視用のハンドラー。
type HealthHandler struct {
	pinger      Pinger
	environment string
	now         func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。pingerがnilの場合は疎通確認をしない。
func NewHealthHandler(pinger Pinger, environment string) *HealthHandler {
	return &HealthHandler{
		pinger:      pinger,
		environment: environment,
		now:         time.Now,
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
}

// Health はサーバーの状態を返す。永続化層に接続できない場合は503。
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		Environment: h.environment,
	}

	status := http.StatusOK
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}
