package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/sitepress/internal/auth"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login はメールアドレスとパスワードを検証し、トークンを発行する。
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	// Register は新しいユーザーを登録する。
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Me(ctx context.Context, userID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, in auth.ProfileInput) (*model.User, error)
	// ChangePassword は現在のパスワードを確認してから新しいパスワードに変更する。
	ChangePassword(ctx context.Context, userID string, in auth.ChangePasswordInput) error
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// Login はログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	var fields []model.FieldError
	if req.Email == "" {
		fields = append(fields, model.FieldError{Field: "email", Message: "is required"})
	}
	if req.Password == "" {
		fields = append(fields, model.FieldError{Field: "password", Message: "is required"})
	}
	if len(fields) > 0 {
		handleServiceError(w, model.NewValidationError("", fields...))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

// Register は管理者によるユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusCreated, toUserResponse(user))
}

// Me はログイン中のユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}

// UpdateProfile はログイン中のユーザーのプロフィールを更新する。
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	var in auth.ProfileInput
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}

// ChangePassword はパスワードを変更する。
// PUT /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	var in auth.ChangePasswordInput
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, in); err != nil {
		handleServiceError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Password changed successfully")
}
