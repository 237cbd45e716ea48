// Package model はドメインモデルを定義する。
package model

import (
	"slices"
	"time"
)

// ユーザーロール。
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// ValidRole はロール文字列が既知の値かどうかを返す。
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleEditor
}

// User は管理画面にログインするスタッフユーザーを表す。
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"isActive"`
	Avatar       string     `json:"avatar"`
	Bio          string     `json:"bio"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Identity は検証済みトークンから得られたリクエスト主体を表す。
// ロールはトークンではなくユーザーレコードから取得する。
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// HasRole はIdentityが指定ロールのいずれかを持つかどうかを返す。
// nilのIdentityは常にfalse。
func (i *Identity) HasRole(roles ...string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(roles, i.Role)
}

// IsStaff は管理者または編集者かどうかを返す。
func (i *Identity) IsStaff() bool {
	return i.HasRole(RoleAdmin, RoleEditor)
}

// CanModify は作成者本人または管理者かどうかを返す。
func (i *Identity) CanModify(authorID string) bool {
	if i == nil {
		return false
	}
	return i.Role == RoleAdmin || i.UserID == authorID
}

// Author はコンテンツ詳細に埋め込む著者情報。
type Author struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar"`
	Bio       string `json:"bio"`
}

// AuthorOf はユーザーから著者情報を射影する。
func AuthorOf(u *User) *Author {
	if u == nil {
		return nil
	}
	return &Author{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		Bio:       u.Bio,
	}
}
