// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/sitepress/internal/fieldnorm"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

// envelope は成功レスポンスの統一フォーマット。
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// pagination は一覧レスポンスのページ情報。
type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// listResponse は一覧レスポンスのdata部。
type listResponse[T any] struct {
	Items      []T        `json:"items"`
	Pagination pagination `json:"pagination"`
}

// userResponse はパスワードハッシュを除いたユーザー情報。
type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	Avatar      string     `json:"avatar"`
	Bio         string     `json:"bio"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		IsActive:    u.IsActive,
		Avatar:      u.Avatar,
		Bio:         u.Bio,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeData はdataを含む成功レスポンスを書き込む。
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeMessage はメッセージのみの成功レスポンスを書き込む。
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

// decodeJSON はリクエストボディをdstにデコードする。
// snake_caseのキーはcamelCaseに変換してから読み込み、空のボディは空オブジェクトとして扱う。
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return model.NewValidationError("Failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return model.NewValidationError("Request body is too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	body, err = fieldnorm.CamelizeKeys(body)
	if err != nil {
		return model.NewValidationError("Request body must be valid JSON")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return model.NewValidationError("",
				model.FieldError{Field: typeErr.Field, Message: "has an invalid type"})
		}
		return model.NewValidationError("Request body must be a JSON object")
	}
	return nil
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外は内部エラーとしてログに記録し、汎用メッセージのみ返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
