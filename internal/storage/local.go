package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore はローカルディレクトリに保存し、静的ファイルとして配信する。
type LocalStore struct {
	dir       string
	urlPrefix string
}

// NewLocalStore は保存ディレクトリを作成してLocalStoreを返す。
func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
	}, nil
}

// Dir は保存ディレクトリを返す。
func (s *LocalStore) Dir() string {
	return s.dir
}

// URLPrefix は配信パスのプレフィックスを返す。
func (s *LocalStore) URLPrefix() string {
	return s.urlPrefix
}

// Put はファイルを一時ファイルに書き込んでからリネームする。
func (s *LocalStore) Put(ctx context.Context, key, _ string, body io.Reader, size int64) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("upload size mismatch: wrote %d of %d bytes", written, size)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	return s.urlPrefix + "/" + key, nil
}
