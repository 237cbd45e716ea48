package repository

import "errors"

// リポジトリ層のセンチネルエラー。
var (
	// ErrNotFound は対象レコードが存在しないことを示す。
	ErrNotFound = errors.New("record not found")
	// ErrConflict は一意制約（slug、email）に違反したことを示す。
	ErrConflict = errors.New("record already exists")
	// ErrUnsupported はバックエンドが要求された操作を提供しないことを示す。
	ErrUnsupported = errors.New("operation not supported by storage backend")
)
