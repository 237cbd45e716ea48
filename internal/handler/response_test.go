package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/sitepress/internal/middleware"
	"github.com/hitoshi/sitepress/internal/model"
)

// --- テストヘルパー ---

// withIdentity はテスト用に認証済みの主体をコンテキストに注入する。
func withIdentity(r *http.Request, identity *model.Identity) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), identity))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入する。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// testEnvelope はレスポンスボディの検証用構造体。
type testEnvelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Message string             `json:"message"`
	Code    string             `json:"code"`
	Errors  []model.FieldError `json:"errors"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func decodeData(t *testing.T, env testEnvelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data %s: %v", env.Data, err)
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	adminIdentity  = &model.Identity{UserID: "admin-1", Email: "admin@example.com", Role: model.RoleAdmin}
	editorIdentity = &model.Identity{UserID: "editor-1", Email: "editor@example.com", Role: model.RoleEditor}
)

// --- decodeJSON ---

func TestDecodeJSON_ConvertsSnakeCaseKeys(t *testing.T) {
	var dst struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}

	req := jsonRequest(http.MethodPost, "/", `{"first_name":"Hanako","lastName":"Yamada"}`)
	if err := decodeJSON(req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.FirstName != "Hanako" || dst.LastName != "Yamada" {
		t.Errorf("decoded = %+v", dst)
	}
}

func TestDecodeJSON_EmptyBodyIsEmptyObject(t *testing.T) {
	var dst struct {
		Email string `json:"email"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := decodeJSON(req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeJSON_InvalidJSON(t *testing.T) {
	var dst struct{}
	err := decodeJSON(jsonRequest(http.MethodPost, "/", `{"title":`), &dst)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestDecodeJSON_TypeMismatchReportsField(t *testing.T) {
	var dst struct {
		PageCount int `json:"pageCount"`
	}
	err := decodeJSON(jsonRequest(http.MethodPost, "/", `{"page_count":"ten"}`), &dst)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if len(apiErr.Fields) != 1 || apiErr.Fields[0].Field != "pageCount" {
		t.Errorf("fields = %+v, want pageCount", apiErr.Fields)
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	body := `{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	var dst struct{}
	if err := decodeJSON(jsonRequest(http.MethodPost, "/", body), &dst); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

// --- handleServiceError ---

func TestHandleServiceError_APIError(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, fmt.Errorf("wrapped: %w", model.NewNotFoundError("Article")))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	env := decodeEnvelope(t, w)
	if env.Success || env.Code != model.ErrCodeNotFound || env.Message != "Article not found" {
		t.Errorf("body = %+v", env)
	}
}

func TestHandleServiceError_InternalErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("pq: connection refused to 10.0.0.5"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := w.Body.String()
	if strings.Contains(body, "10.0.0.5") {
		t.Errorf("internal details leaked: %s", body)
	}
	if !strings.Contains(body, model.ErrCodeInternal) {
		t.Errorf("body = %s, want %s", body, model.ErrCodeInternal)
	}
}

func TestHandleServiceError_ValidationFields(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, model.NewValidationError("",
		model.FieldError{Field: "title", Message: "is required"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, w)
	if len(env.Errors) != 1 || env.Errors[0].Field != "title" {
		t.Errorf("errors = %+v", env.Errors)
	}
}

func TestWriteData_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeData(w, http.StatusCreated, map[string]string{"id": "x"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Error("success = false")
	}
	var data map[string]string
	decodeData(t, env, &data)
	if data["id"] != "x" {
		t.Errorf("data = %v", data)
	}
}

func TestToUserResponse_OmitsPasswordHash(t *testing.T) {
	u := &model.User{ID: "u1", Email: "a@example.com", PasswordHash: "$2a$12$secret", Role: model.RoleEditor}

	raw, err := json.Marshal(toUserResponse(u))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret") || strings.Contains(string(raw), "password") {
		t.Errorf("password hash leaked: %s", raw)
	}
}
