package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hitoshi/sitepress/internal/model"
)

// FileContentRepo はJSONドキュメントを使うコンテンツリポジトリ。
// 全件走査による線形フィルタのみ対応し、全文検索と関連検索はErrUnsupportedを返す。
type FileContentRepo[T any] struct {
	c *fileCollection[T]
	f *family[T]
}

// FileWhitepaperRepo はダウンロード数カウンタを持つホワイトペーパーリポジトリ。
type FileWhitepaperRepo struct {
	*FileContentRepo[*model.Whitepaper]
}

// IncrementDownloadCount はダウンロード数を1加算する。
func (r *FileWhitepaperRepo) IncrementDownloadCount(ctx context.Context, id string) error {
	return r.mutate(id, func(w *model.Whitepaper) { w.DownloadCount++ })
}

func (r *FileContentRepo[T]) matches(rec T, filter ContentFilter) bool {
	m := r.f.meta(rec)
	if filter.PublicOnly {
		if !m.IsPublic() {
			return false
		}
	} else if filter.Status != "" && m.Status != filter.Status {
		return false
	}
	if filter.Facet != "" && !slices.Contains(r.f.listValues(rec, r.f.primaryFacet), filter.Facet) {
		return false
	}
	if filter.Tag != "" && !slices.Contains(r.f.listValues(rec, "tags"), filter.Tag) {
		return false
	}
	return true
}

// comparePublished は published_at の降順（NULLは末尾）、次に created_at の降順で比較する。
func comparePublished(a, b *model.ContentMeta) int {
	switch {
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return 1
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return -1
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return b.PublishedAt.Compare(*a.PublishedAt)
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}

// List は条件に一致するレコードと総件数を返す。
func (r *FileContentRepo[T]) List(ctx context.Context, filter ContentFilter) ([]T, int, error) {
	if strings.TrimSpace(filter.Search) != "" {
		return nil, 0, ErrUnsupported
	}

	if err := r.c.refresh(); err != nil {
		return nil, 0, err
	}
	r.c.mu.RLock()
	matched := make([]T, 0)
	for _, rec := range r.c.items {
		if r.matches(rec, filter) {
			matched = append(matched, clone(rec))
		}
	}
	r.c.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b T) int {
		return comparePublished(r.f.meta(a), r.f.meta(b))
	})

	total := len(matched)
	if filter.Limit > 0 {
		start := min(filter.Offset, total)
		end := min(start+filter.Limit, total)
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (r *FileContentRepo[T]) find(pred func(*model.ContentMeta) bool) (T, error) {
	if err := r.c.refresh(); err != nil {
		var zero T
		return zero, err
	}
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	for _, rec := range r.c.items {
		if pred(r.f.meta(rec)) {
			return clone(rec), nil
		}
	}
	var zero T
	return zero, ErrNotFound
}

// FindByID は指定IDのレコードを取得する。
func (r *FileContentRepo[T]) FindByID(ctx context.Context, id string) (T, error) {
	return r.find(func(m *model.ContentMeta) bool { return m.ID == id })
}

// FindBySlug はslugでレコードを取得する。
func (r *FileContentRepo[T]) FindBySlug(ctx context.Context, slug string) (T, error) {
	return r.find(func(m *model.ContentMeta) bool { return m.Slug == slug })
}

// Create はレコードを作成する。
func (r *FileContentRepo[T]) Create(ctx context.Context, rec T) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	m := r.f.meta(rec)
	for _, existing := range r.c.items {
		em := r.f.meta(existing)
		if em.ID == m.ID || em.Slug == m.Slug {
			return ErrConflict
		}
	}

	r.c.items = append(r.c.items, clone(rec))
	if err := r.c.persist(); err != nil {
		r.c.items = r.c.items[:len(r.c.items)-1]
		return err
	}
	return nil
}

// Update はカウンタ以外の項目を更新する。
func (r *FileContentRepo[T]) Update(ctx context.Context, rec T) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	m := r.f.meta(rec)
	idx := -1
	for i, existing := range r.c.items {
		em := r.f.meta(existing)
		if em.ID == m.ID {
			idx = i
			continue
		}
		if em.Slug == m.Slug {
			return ErrConflict
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	prev := r.c.items[idx]
	next := clone(rec)
	nm, pm := r.f.meta(next), r.f.meta(prev)
	nm.ViewCount = pm.ViewCount
	nm.CreatedAt = pm.CreatedAt
	if r.f.counterTargets != nil {
		for i, dst := range r.f.counterTargets(next) {
			*(dst.(*int64)) = *(r.f.counterTargets(prev)[i].(*int64))
		}
	}

	r.c.items[idx] = next
	if err := r.c.persist(); err != nil {
		r.c.items[idx] = prev
		return err
	}
	return nil
}

// Delete は指定IDのレコードを削除する。
func (r *FileContentRepo[T]) Delete(ctx context.Context, id string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	idx := slices.IndexFunc(r.c.items, func(rec T) bool { return r.f.meta(rec).ID == id })
	if idx < 0 {
		return ErrNotFound
	}

	prev := r.c.items
	r.c.items = slices.Delete(slices.Clone(r.c.items), idx, idx+1)
	if err := r.c.persist(); err != nil {
		r.c.items = prev
		return err
	}
	return nil
}

// IncrementViewCount は閲覧数を1加算する。
// 読み込みから書き戻しまでをミューテックスで直列化する。
func (r *FileContentRepo[T]) IncrementViewCount(ctx context.Context, id string) error {
	return r.mutate(id, func(rec T) { r.f.meta(rec).ViewCount++ })
}

func (r *FileContentRepo[T]) mutate(id string, fn func(T)) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	for i, rec := range r.c.items {
		if r.f.meta(rec).ID != id {
			continue
		}
		prev := clone(rec)
		fn(rec)
		if err := r.c.persist(); err != nil {
			r.c.items[i] = prev
			return err
		}
		return nil
	}
	return ErrNotFound
}

// Related はファイルバックエンドでは提供しない。
func (r *FileContentRepo[T]) Related(ctx context.Context, q RelatedQuery) ([]T, error) {
	return nil, ErrUnsupported
}

// FacetValues は公開済みレコードのリスト列の値を重複なし・昇順で返す。
func (r *FileContentRepo[T]) FacetValues(ctx context.Context, column string) ([]string, error) {
	if !r.f.hasListColumn(column) {
		return nil, fmt.Errorf("%s has no list column %q", r.f.table, column)
	}

	if err := r.c.refresh(); err != nil {
		return nil, err
	}
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	var lists [][]string
	for _, rec := range r.c.items {
		if r.f.meta(rec).IsPublic() {
			lists = append(lists, r.f.listValues(rec, column))
		}
	}
	return unionSorted(lists), nil
}

// compile-time interface check
var (
	_ ArticleRepository    = (*FileContentRepo[*model.Article])(nil)
	_ CaseStudyRepository  = (*FileContentRepo[*model.CaseStudy])(nil)
	_ WhitepaperRepository = (*FileWhitepaperRepo)(nil)
)
