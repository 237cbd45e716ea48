package model

import "fmt"

// FieldError は入力項目単位の検証エラー。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError は統一エラーフォーマットを表す。
// CodeからHTTPステータスが決まる。
type APIError struct {
	Code    string
	Message string
	Fields  []FieldError
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string, fields ...FieldError) *APIError {
	if message == "" {
		message = "Validation failed"
	}
	return &APIError{Code: ErrCodeValidation, Message: message, Fields: fields}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: "Authentication required"}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無にかかわらず同一のメッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{Code: ErrCodeInvalidCredentials, Message: "Invalid credentials"}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{Code: ErrCodeForbidden, Message: "You do not have permission to perform this action"}
}

// NewNotFoundError は対象リソース未検出エラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewConflictError は一意制約違反エラーを生成する。
func NewConflictError(field string) *APIError {
	return &APIError{
		Code:    ErrCodeConflict,
		Message: fmt.Sprintf("A record with this %s already exists", field),
		Fields:  []FieldError{{Field: field, Message: "already exists"}},
	}
}

// NewEmailTakenError はユーザー登録時のメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailTaken,
		Message: "User already exists with this email",
		Fields:  []FieldError{{Field: "email", Message: "already registered"}},
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{Code: ErrCodeRateLimited, Message: "Too many requests, please try again later"}
}

// NewInternalError はクライアントに返す汎用の内部エラーを生成する。
// 詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{Code: ErrCodeInternal, Message: "Internal server error"}
}
