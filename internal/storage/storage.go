// Package storage はアップロードされたファイルの保存先を提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/sitepress/internal/config"
)

// Store はアップロードファイルの保存先インターフェース。
type Store interface {
	// Put はbodyをkeyで保存し、公開URLを返す。
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// allowedTypes はアップロードを許可するContent-Typeと拡張子。
var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// DetectType は先頭バイト列からContent-Typeを判定する。
// 許可されていない形式の場合はokがfalseになる。
func DetectType(head []byte) (contentType, ext string, ok bool) {
	contentType = http.DetectContentType(head)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	ext, ok = allowedTypes[contentType]
	return contentType, ext, ok
}

// NewKey は yyyy/mm/<uuid><ext> 形式の保存キーを生成する。
func NewKey(now time.Time, ext string) string {
	now = now.UTC()
	return fmt.Sprintf("%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), ext)
}

// cleanKey はキーを正規化し、保存先の外を指すキーを拒否する。
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != key {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return cleaned, nil
}

// New は設定に応じたStoreを生成する。
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.UploadBackend {
	case config.UploadS3:
		return NewS3Store(ctx, S3Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	case config.UploadLocal, "":
		return NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix)
	default:
		return nil, fmt.Errorf("unsupported upload backend: %q", cfg.UploadBackend)
	}
}

var (
	_ Store = (*LocalStore)(nil)
	_ Store = (*S3Store)(nil)
)
