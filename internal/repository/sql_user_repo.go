package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/sitepress/internal/model"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, is_active,
	avatar, bio, last_login_at, created_at, updated_at`

// SQLUserRepo はSQLバックエンド共通のユーザーリポジトリ。
type SQLUserRepo struct {
	db *sql.DB
	d  *Dialect
}

// NewSQLUserRepo はSQLUserRepoを生成する。
func NewSQLUserRepo(db *sql.DB, d *Dialect) *SQLUserRepo {
	return &SQLUserRepo{db: db, d: d}
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
		&u.IsActive, &u.Avatar, &u.Bio, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.LastLoginAt = timePtr(lastLogin)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *SQLUserRepo) findOne(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+column+" = "+r.d.placeholder(1),
		value,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by %s: %w", column, err)
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。
func (r *SQLUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "id", id)
}

// FindByEmail はメールアドレスでユーザーを検索する。
func (r *SQLUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email", email)
}

// List は全ユーザーを作成日時の昇順で返す。
func (r *SQLUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。
func (r *SQLUserRepo) Create(ctx context.Context, u *model.User) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ("+placeholders(r.d, 12)+")",
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.IsActive,
		u.Avatar, u.Bio, nullTime(u.LastLoginAt), u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		if r.d.uniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update はユーザー情報を更新する。
func (r *SQLUserRepo) Update(ctx context.Context, u *model.User) error {
	if !validID(u.ID) {
		return ErrNotFound
	}

	q := newQueryBuilder(r.d)
	query := "UPDATE users SET email = " + q.arg(u.Email) +
		", password_hash = " + q.arg(u.PasswordHash) +
		", first_name = " + q.arg(u.FirstName) +
		", last_name = " + q.arg(u.LastName) +
		", role = " + q.arg(u.Role) +
		", is_active = " + q.arg(u.IsActive) +
		", avatar = " + q.arg(u.Avatar) +
		", bio = " + q.arg(u.Bio) +
		", updated_at = " + q.arg(u.UpdatedAt.UTC()) +
		" WHERE id = " + q.arg(u.ID)

	result, err := r.db.ExecContext(ctx, query, q.args...)
	if err != nil {
		if r.d.uniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireAffected(result)
}

// UpdateLastLogin は最終ログイン日時を記録する。
func (r *SQLUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return ErrNotFound
	}
	q := newQueryBuilder(r.d)
	query := "UPDATE users SET last_login_at = " + q.arg(at.UTC()) + " WHERE id = " + q.arg(id)
	result, err := r.db.ExecContext(ctx, query, q.args...)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireAffected(result)
}

// Delete は指定IDのユーザーを削除する。
func (r *SQLUserRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = "+r.d.placeholder(1), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ UserRepository = (*SQLUserRepo)(nil)
