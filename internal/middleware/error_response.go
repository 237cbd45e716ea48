package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/sitepress/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 検証エラーの場合は項目ごとのメッセージを含む。
type ErrorResponseBody struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Code    string             `json:"code"`
	Errors  []model.FieldError `json:"errors,omitempty"`
}

// StatusCode はエラーコードに対応するHTTPステータスを返す。
func StatusCode(code string) int {
	switch code {
	case model.ErrCodeValidation, model.ErrCodeEmailTaken:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeConflict:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ステータスはエラーコードから決まる。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(apiErr.Code))
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success: false,
		Message: apiErr.Message,
		Code:    apiErr.Code,
		Errors:  apiErr.Fields,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, model.NewInternalError())
}
