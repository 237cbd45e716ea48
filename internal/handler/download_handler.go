package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/sitepress/internal/content"
)

// DownloadServiceInterface はホワイトペーパーのダウンロード受付に必要なサービスインターフェース。
type DownloadServiceInterface interface {
	// Download はPDFのURLを返す。ゲート付きの場合はリード情報を保存する。
	Download(ctx context.Context, slug string, in content.LeadInput) (*content.DownloadResult, error)
}

// DownloadHandler はホワイトペーパーのダウンロード要求を処理する。
type DownloadHandler struct {
	service DownloadServiceInterface
}

// NewDownloadHandler はDownloadHandlerを生成する。
func NewDownloadHandler(service DownloadServiceInterface) *DownloadHandler {
	return &DownloadHandler{
		service: service,
	}
}

// Download はダウンロード要求を受け付ける。ゲートなしの場合は空のボディでよい。
// POST /api/whitepapers/{slug}/download
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var in content.LeadInput
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Download(r.Context(), chi.URLParam(r, "slug"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, result)
}
