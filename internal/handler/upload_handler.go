package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/sitepress/internal/model"
	"github.com/hitoshi/sitepress/internal/storage"
)

// multipartMemory はParseMultipartFormがメモリに保持する上限。超過分は一時ファイルに書き出される。
const multipartMemory = 4 << 20

// sniffLen はContent-Type判定に読む先頭バイト数。
const sniffLen = 512

// UploadHandler は画像・PDFのアップロードを処理する。
type UploadHandler struct {
	store    storage.Store
	maxBytes int64
	now      func() time.Time
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(store storage.Store, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		store:    store,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

type uploadResponse struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Upload はmultipartの"file"フィールドを保存し、公開URLを返す。
// POST /api/uploads
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// multipartのヘッダー分の余裕を持たせる
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, h.tooLarge())
			return
		}
		handleServiceError(w, model.NewValidationError("Request must be multipart/form-data"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		handleServiceError(w, model.NewValidationError("",
			model.FieldError{Field: "file", Message: "is required"}))
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		handleServiceError(w, h.tooLarge())
		return
	}
	if header.Size == 0 {
		handleServiceError(w, model.NewValidationError("",
			model.FieldError{Field: "file", Message: "must not be empty"}))
		return
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		handleServiceError(w, err)
		return
	}
	head = head[:n]

	contentType, ext, ok := storage.DetectType(head)
	if !ok {
		handleServiceError(w, model.NewValidationError("",
			model.FieldError{Field: "file", Message: "must be a JPEG, PNG, GIF, WebP or PDF file"}))
		return
	}

	key := storage.NewKey(h.now(), ext)
	body := io.MultiReader(bytes.NewReader(head), file)
	url, err := h.store.Put(r.Context(), key, contentType, body, header.Size)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("file uploaded",
		slog.String("key", key),
		slog.String("content_type", contentType),
		slog.Int64("size", header.Size),
	)

	writeData(w, http.StatusCreated, uploadResponse{
		URL:         url,
		Key:         key,
		ContentType: contentType,
		Size:        header.Size,
	})
}

func (h *UploadHandler) tooLarge() *model.APIError {
	return model.NewValidationError("",
		model.FieldError{Field: "file", Message: "exceeds the maximum upload size"})
}

// NewStaticHandler はdir配下のファイルを配信するハンドラーを返す。
// ディレクトリ一覧は返さない。
func NewStaticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
