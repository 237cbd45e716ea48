package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileCollection は1レコード種別を1つのJSON配列ドキュメントとして保持する。
// 変更のたびに一時ファイル経由で書き戻す。serveとworkerなど複数プロセスが
// 同じディレクトリを使うため、読み書きの前にファイルの更新を確認して読み直す。
type fileCollection[T any] struct {
	mu    sync.RWMutex
	path  string
	items []T
	stamp fileStamp
}

// fileStamp は最後に読み書きしたときのファイルの状態。
type fileStamp struct {
	modTime time.Time
	size    int64
}

func (s fileStamp) equal(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

func openCollection[T any](dir, name string) (*fileCollection[T], error) {
	c := &fileCollection[T]{
		path:  filepath.Join(dir, name+".json"),
		items: make([]T, 0),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// load はファイルが前回の読み書きから変わっていれば読み直す。
// 呼び出し側が書き込みロックを保持していること。
func (c *fileCollection[T]) load() error {
	info, err := os.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.items = make([]T, 0)
		c.stamp = fileStamp{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", c.path, err)
	}

	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}
	if stamp.equal(c.stamp) {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.path, err)
	}
	items := make([]T, 0)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("failed to decode %s: %w", c.path, err)
		}
	}

	c.items = items
	c.stamp = stamp
	return nil
}

// refresh は読み取りの前に他プロセスによる変更を取り込む。
func (c *fileCollection[T]) refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// persist は現在の内容をファイルに書き込む。呼び出し側が書き込みロックを保持していること。
func (c *fileCollection[T]) persist() error {
	data, err := json.MarshalIndent(c.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", c.path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", c.path, err)
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", c.path, err)
	}
	c.stamp = fileStamp{modTime: info.ModTime(), size: info.Size()}
	return nil
}

// clone はJSONを経由してレコードを深くコピーする。
// 呼び出し側がメモリ上の保持データを直接書き換えないようにする。
func clone[T any](v T) T {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("file store: failed to clone record: %v", err))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("file store: failed to clone record: %v", err))
	}
	return out
}
