package repository

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/sitepress/internal/model"
)

// FileUserRepo はJSONドキュメントを使うユーザーリポジトリ。
type FileUserRepo struct {
	c *fileCollection[*model.User]
}

func (r *FileUserRepo) find(pred func(*model.User) bool) (*model.User, error) {
	if err := r.c.refresh(); err != nil {
		return nil, err
	}
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()

	for _, u := range r.c.items {
		if pred(u) {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

// FindByID は指定IDのユーザーを取得する。
func (r *FileUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

// FindByEmail はメールアドレスでユーザーを検索する。
func (r *FileUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return strings.EqualFold(u.Email, email) })
}

// List は全ユーザーを作成日時の昇順で返す。
func (r *FileUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if err := r.c.refresh(); err != nil {
		return nil, err
	}
	r.c.mu.RLock()
	users := make([]*model.User, 0, len(r.c.items))
	for _, u := range r.c.items {
		users = append(users, clone(u))
	}
	r.c.mu.RUnlock()

	slices.SortStableFunc(users, func(a, b *model.User) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return users, nil
}

// Create はユーザーを作成する。
func (r *FileUserRepo) Create(ctx context.Context, user *model.User) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	for _, u := range r.c.items {
		if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) {
			return ErrConflict
		}
	}

	r.c.items = append(r.c.items, clone(user))
	if err := r.c.persist(); err != nil {
		r.c.items = r.c.items[:len(r.c.items)-1]
		return err
	}
	return nil
}

// Update はユーザー情報を更新する。作成日時と最終ログイン日時は保持する。
func (r *FileUserRepo) Update(ctx context.Context, user *model.User) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	idx := -1
	for i, u := range r.c.items {
		if u.ID == user.ID {
			idx = i
			continue
		}
		if strings.EqualFold(u.Email, user.Email) {
			return ErrConflict
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	prev := r.c.items[idx]
	next := clone(user)
	next.CreatedAt = prev.CreatedAt
	next.LastLoginAt = prev.LastLoginAt

	r.c.items[idx] = next
	if err := r.c.persist(); err != nil {
		r.c.items[idx] = prev
		return err
	}
	return nil
}

// UpdateLastLogin は最終ログイン日時を記録する。
func (r *FileUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	for i, u := range r.c.items {
		if u.ID != id {
			continue
		}
		prev := u.LastLoginAt
		t := at.UTC()
		r.c.items[i].LastLoginAt = &t
		if err := r.c.persist(); err != nil {
			r.c.items[i].LastLoginAt = prev
			return err
		}
		return nil
	}
	return ErrNotFound
}

// Delete は指定IDのユーザーを削除する。
func (r *FileUserRepo) Delete(ctx context.Context, id string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	idx := slices.IndexFunc(r.c.items, func(u *model.User) bool { return u.ID == id })
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

// FileLeadRepo はJSONドキュメントを使うリードリポジトリ。
type FileLeadRepo struct {
	c *fileCollection[*model.Lead]
}

// Create はリードを保存する。
func (r *FileLeadRepo) Create(ctx context.Context, lead *model.Lead) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return err
	}

	r.c.items = append(r.c.items, clone(lead))
	if err := r.c.persist(); err != nil {
		r.c.items = r.c.items[:len(r.c.items)-1]
		return err
	}
	return nil
}

// DeleteOlderThan は指定日時より前に作成されたリードを削除し、削除件数を返す。
func (r *FileLeadRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if err := r.c.load(); err != nil {
		return 0, err
	}

	prev := r.c.items
	kept := make([]*model.Lead, 0, len(prev))
	for _, l := range prev {
		if l.CreatedAt.Before(before) {
			continue
		}
		kept = append(kept, l)
	}

	deleted := int64(len(prev) - len(kept))
	if deleted == 0 {
		return 0, nil
	}

	r.c.items = kept
	if err := r.c.persist(); err != nil {
		r.c.items = prev
		return 0, err
	}
	return deleted, nil
}

// compile-time interface check
var (
	_ UserRepository = (*FileUserRepo)(nil)
	_ LeadRepository = (*FileLeadRepo)(nil)
)
