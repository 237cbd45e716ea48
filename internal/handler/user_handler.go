package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/sitepress/internal/auth"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	ListUsers(ctx context.Context) ([]*model.User, error)
	// UpdateUser は管理者がロール・有効フラグ・氏名を変更する。
	UpdateUser(ctx context.Context, actor *model.Identity, id string, in auth.UserUpdateInput) (*model.User, error)
	// DeleteUser はユーザーを削除する。自分自身は削除できない。
	DeleteUser(ctx context.Context, actor *model.Identity, id string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// ListUsers はユーザー一覧を返す。
// GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeData(w, http.StatusOK, out)
}

// UpdateUser はユーザー情報を更新する。
// PUT /api/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.IdentityFromContext(r.Context())
	if actor == nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	var in auth.UserUpdateInput
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}

// DeleteUser はユーザーを削除する。
// DELETE /api/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.IdentityFromContext(r.Context())
	if actor == nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	if err := h.service.DeleteUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "User deleted successfully")
}
