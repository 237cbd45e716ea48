// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/sitepress/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	identityContextKey     = contextKey("identity")
	requestStateContextKey = contextKey("request_state")
)

// requestState はリクエストログに出力する値を内側のミドルウェアから受け取る。
type requestState struct {
	userID string
}

// TokenVerifier はBearerトークンを検証してリクエスト主体を返す。
// auth.Serviceの部分集合として定義する。
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*model.Identity, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// リクエスト主体をコンテキストに注入するミドルウェアを返す。
// トークンがない、または無効な場合は401を返す。ストア障害などの検証失敗は500。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.VerifyToken(r.Context(), bearerToken(r))
			if err != nil {
				writeVerifyError(w, r, err)
				return
			}
			if identity == nil {
				WriteErrorResponse(w, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// NewOptionalAuthMiddleware はトークンがあれば検証してリクエスト主体を注入するミドルウェアを返す。
// トークンがない、または無効な場合は匿名として処理を続ける。
// ストア障害などトークンの有効性を判断できない場合は500を返す。
func NewOptionalAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := verifier.VerifyToken(r.Context(), token)
			var apiErr *model.APIError
			if err != nil && !errors.As(err, &apiErr) {
				writeVerifyError(w, r, err)
				return
			}
			if err != nil || identity == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// writeVerifyError はトークン検証エラーをレスポンスに変換する。
// APIErrorはそのまま返し、それ以外は内部エラーとしてログに記録する。
func writeVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, apiErr)
		return
	}
	slog.Error("token verification failed",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
	)
	WriteInternalServerError(w)
}

// RequireRole は指定ロールのいずれかを持たないリクエストを拒否するミドルウェアを返す。
// NewAuthMiddlewareの後に配置する。未認証は401、ロール不一致は403。
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				WriteErrorResponse(w, model.NewUnauthorizedError())
				return
			}
			if !identity.HasRole(roles...) {
				WriteErrorResponse(w, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IdentityFromContext はリクエストコンテキストからリクエスト主体を取得する。
// 匿名のリクエストではnilを返す。
func IdentityFromContext(ctx context.Context) *model.Identity {
	identity, _ := ctx.Value(identityContextKey).(*model.Identity)
	return identity
}

// ContextWithIdentity はコンテキストにリクエスト主体を注入する。
// ロギングミドルウェアの内側で呼ばれた場合はログ出力用のユーザーIDも記録する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	if state, ok := ctx.Value(requestStateContextKey).(*requestState); ok && identity != nil {
		state.userID = identity.UserID
	}
	return context.WithValue(ctx, identityContextKey, identity)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity := IdentityFromContext(ctx)
	if identity == nil || identity.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.UserID, nil
}
